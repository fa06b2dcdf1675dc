package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

// DeclareTopology declares the exchange and queues so tasks published before any worker starts are kept.
func (p *Publisher) DeclareTopology(cfg ConsumerConfig) error {
	return DeclareTopology(p.channel, cfg)
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

// TaskEnqueuer publishes named summarization tasks onto the job queue.
type TaskEnqueuer struct {
	pub *Publisher
}

func NewTaskEnqueuer(pub *Publisher) *TaskEnqueuer {
	return &TaskEnqueuer{pub: pub}
}

func (e *TaskEnqueuer) Enqueue(ctx context.Context, task string, payload []byte, timeout time.Duration) error {
	err := e.pub.channel.PublishWithContext(ctx,
		e.pub.exchange,
		JobsRoutingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         task,
			MessageId:    uuid.NewString(),
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				TimeoutHeader: int64(timeout / time.Second),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task, err)
	}
	return nil
}

type StatusPublisher struct {
	pub        *Publisher
	routingKey string
}

func NewStatusPublisher(pub *Publisher) *StatusPublisher {
	return &StatusPublisher{pub: pub, routingKey: StatusRoutingKey}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	return sp.pub.channel.PublishWithContext(ctx,
		sp.pub.exchange,
		sp.routingKey,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		},
	)
}

type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	return dp.pub.channel.PublishWithContext(ctx,
		"",
		dp.queue,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         msg,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				DLQReasonHeader: reason,
			},
		},
	)
}
