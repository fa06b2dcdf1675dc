package rabbitmq

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/karanamabhishek1402/VDSM/internal/infra/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	JobsRoutingKey   = "summary.jobs"
	StatusRoutingKey = "summary.status"
	TimeoutHeader    = "x-job-timeout-seconds"
	DLQReasonHeader  = "x-dlq-reason"
)

type MessageHandler func(ctx context.Context, body []byte) error

type Consumer struct {
	conn           *amqp.Connection
	channel        *amqp.Channel
	queue          string
	dlq            string
	workerCount    int
	baseDelay      time.Duration
	defaultTimeout time.Duration
	handlers       map[string]MessageHandler
	logger         *zap.Logger
	wg             sync.WaitGroup
}

type ConsumerConfig struct {
	URL            string
	Queue          string
	Exchange       string
	DLQ            string
	StatusQueue    string
	Prefetch       int
	WorkerCount    int
	BaseDelayMs    int
	DefaultTimeout time.Duration
}

// NewConsumer declares the topology and returns a consumer dispatching on the message Type.
func NewConsumer(cfg ConsumerConfig, handlers map[string]MessageHandler, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := DeclareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:           conn,
		channel:        ch,
		queue:          cfg.Queue,
		dlq:            cfg.DLQ,
		workerCount:    cfg.WorkerCount,
		baseDelay:      time.Duration(cfg.BaseDelayMs) * time.Millisecond,
		defaultTimeout: cfg.DefaultTimeout,
		handlers:       handlers,
		logger:         logger,
	}, nil
}

// DeclareTopology declares the exchange, the job, status and dead-letter queues, and their bindings.
func DeclareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}
	if err := ch.QueueBind(cfg.Queue, JobsRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind job queue: %w", err)
	}
	if err := ch.QueueBind(cfg.StatusQueue, StatusRoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind status queue: %w", err)
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("starting worker pool",
		zap.Int("workers", c.workerCount),
		zap.String("queue", c.queue),
	)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for workers to finish")
	c.wg.Wait()
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.processDelivery(ctx, d, log)
		}
	}
}

func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	log = log.With(zap.String("task", d.Type), zap.Uint64("delivery_tag", d.DeliveryTag))

	handler, ok := c.handlers[d.Type]
	if !ok {
		log.Error("no handler for task, dead-lettering")
		if err := c.deadLetter(ctx, d, "unknown_task: "+d.Type); err != nil {
			log.Error("dead-letter failed, requeueing", zap.Error(err))
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	timeout := timeoutFromHeaders(d.Headers, c.defaultTimeout)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	err := handler(jobCtx, d.Body)
	cancel()

	if err != nil {
		log.Warn("message processing failed, nacking", zap.Error(err))

		attempt := c.getAttemptFromHeaders(d)
		delay := c.calculateBackoff(attempt)
		log.Info("backoff before requeue", zap.Duration("delay", delay), zap.Int("attempt", attempt))
		metrics.RedeliveriesTotal.WithLabelValues(d.Type).Inc()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			_ = d.Nack(false, true)
			return
		}

		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, reason string) error {
	return c.channel.PublishWithContext(ctx, "", c.dlq, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		Type:         d.Type,
		Body:         d.Body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{DLQReasonHeader: reason},
	})
}

// timeoutFromHeaders reads the per-task wall-clock limit, falling back to def.
func timeoutFromHeaders(h amqp.Table, def time.Duration) time.Duration {
	var secs float64
	switch v := h[TimeoutHeader].(type) {
	case int:
		secs = float64(v)
	case int32:
		secs = float64(v)
	case int64:
		secs = float64(v)
	case float32:
		secs = float64(v)
	case float64:
		secs = v
	}
	if secs <= 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

func (c *Consumer) getAttemptFromHeaders(d amqp.Delivery) int {
	if d.Headers == nil {
		return 1
	}
	if xDeath, ok := d.Headers["x-death"]; ok {
		if deaths, ok := xDeath.([]interface{}); ok && len(deaths) > 0 {
			return len(deaths)
		}
	}
	return 1
}

func (c *Consumer) calculateBackoff(attempt int) time.Duration {
	delay := c.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > 60*time.Second {
		delay = 60 * time.Second
	}
	return delay
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
