package port

import (
	"context"
	"time"
)

// TaskQueue dispatches a named task with a JSON payload and a wall-clock timeout.
type TaskQueue interface {
	Enqueue(ctx context.Context, task string, payload []byte, timeout time.Duration) error
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, msg []byte) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
