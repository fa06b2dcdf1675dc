package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
)

// JobRepository persists summarization jobs. Every read and delete is scoped by owner.
type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	// Update writes the job's mutable fields only while the stored row is still processing.
	// It returns entity.ErrJobTerminal when the stored row is already terminal.
	Update(ctx context.Context, job *entity.Job) error
	FindForUser(ctx context.Context, id uuid.UUID, userID string) (*entity.Job, error)
	ListByVideo(ctx context.Context, videoID, userID string) ([]*entity.Job, error)
	Delete(ctx context.Context, id uuid.UUID, userID string) error
	// FailStale fails processing jobs not updated since before and returns them.
	FailStale(ctx context.Context, before time.Time, message string) ([]*entity.Job, error)
}
