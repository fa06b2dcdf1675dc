package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

func TestTimeoutFromHeaders(t *testing.T) {
	def := 4 * time.Hour
	assert.Equal(t, def, timeoutFromHeaders(nil, def))
	assert.Equal(t, def, timeoutFromHeaders(amqp.Table{TimeoutHeader: "soon"}, def))
	assert.Equal(t, def, timeoutFromHeaders(amqp.Table{TimeoutHeader: int64(0)}, def))
	assert.Equal(t, 90*time.Second, timeoutFromHeaders(amqp.Table{TimeoutHeader: int64(90)}, def))
	assert.Equal(t, 30*time.Second, timeoutFromHeaders(amqp.Table{TimeoutHeader: int32(30)}, def))
	assert.Equal(t, 1500*time.Millisecond, timeoutFromHeaders(amqp.Table{TimeoutHeader: 1.5}, def))
}

func TestCalculateBackoff(t *testing.T) {
	c := &Consumer{baseDelay: time.Second}
	assert.Equal(t, time.Second, c.calculateBackoff(1))
	assert.Equal(t, 4*time.Second, c.calculateBackoff(3))
	assert.Equal(t, 60*time.Second, c.calculateBackoff(10))
}

func TestGetAttemptFromHeaders(t *testing.T) {
	c := &Consumer{}
	assert.Equal(t, 1, c.getAttemptFromHeaders(amqp.Delivery{}))
	d := amqp.Delivery{Headers: amqp.Table{"x-death": []interface{}{amqp.Table{}, amqp.Table{}}}}
	assert.Equal(t, 2, c.getAttemptFromHeaders(d))
}

func TestConsumerDispatchesByTask(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	cfg := ConsumerConfig{
		URL:            rmqURL,
		Queue:          "summary.jobs",
		Exchange:       "vdsm.summary",
		DLQ:            "summary.jobs.dlq",
		StatusQueue:    "summary.status",
		Prefetch:       1,
		WorkerCount:    1,
		BaseDelayMs:    10,
		DefaultTimeout: time.Hour,
	}

	type received struct {
		body     string
		deadline time.Duration
	}
	got := make(chan received, 1)
	handlers := map[string]MessageHandler{
		"summarize.text_prompt": func(ctx context.Context, body []byte) error {
			dl, _ := ctx.Deadline()
			got <- received{body: string(body), deadline: time.Until(dl)}
			return nil
		},
	}

	consumer, err := NewConsumer(cfg, handlers, zap.NewNop())
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()
	go func() { _ = consumer.Start(consumerCtx) }()

	conn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer conn.Close()

	pub, err := NewPublisher(conn, cfg.Exchange)
	require.NoError(t, err)
	defer pub.Close()
	enqueuer := NewTaskEnqueuer(pub)

	require.NoError(t, enqueuer.Enqueue(ctx, "summarize.text_prompt", []byte(`{"job_id":"x"}`), 2*time.Minute))
	select {
	case r := <-got:
		assert.Equal(t, `{"job_id":"x"}`, r.body)
		assert.LessOrEqual(t, r.deadline, 2*time.Minute)
		assert.Greater(t, r.deadline, time.Minute)
	case <-time.After(time.Minute):
		t.Fatal("timeout waiting for handler")
	}

	require.NoError(t, enqueuer.Enqueue(ctx, "summarize.unknown", []byte(`{}`), time.Minute))

	dlqCh, err := conn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	var dlqMsg amqp.Delivery
	require.Eventually(t, func() bool {
		msg, ok, err := dlqCh.Get(cfg.DLQ, true)
		if err != nil || !ok {
			return false
		}
		dlqMsg = msg
		return true
	}, 30*time.Second, 200*time.Millisecond)
	assert.Equal(t, "summarize.unknown", dlqMsg.Type)
	assert.Contains(t, dlqMsg.Headers[DLQReasonHeader], "unknown_task")

	status := NewStatusPublisher(pub)
	require.NoError(t, status.PublishStatus(ctx, []byte(`{"status":"completed"}`)))
	require.Eventually(t, func() bool {
		msg, ok, err := dlqCh.Get(cfg.StatusQueue, true)
		return err == nil && ok && string(msg.Body) == `{"status":"completed"}`
	}, 30*time.Second, 200*time.Millisecond)
}
