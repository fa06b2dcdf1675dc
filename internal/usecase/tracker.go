package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/domain/port"
)

// Tracker applies job state transitions and persists them. The store rejects any write to a terminal row.
type Tracker struct {
	repo port.JobRepository
}

func NewTracker(repo port.JobRepository) *Tracker {
	return &Tracker{repo: repo}
}

func (t *Tracker) Get(ctx context.Context, id uuid.UUID, userID string) (*entity.Job, error) {
	return t.repo.FindForUser(ctx, id, userID)
}

// BeginAttempt counts one more delivery of a processing job. When the job is already
// terminal, or another writer closes it first, it returns the job with ErrJobTerminal.
func (t *Tracker) BeginAttempt(ctx context.Context, id uuid.UUID, userID string) (*entity.Job, error) {
	job, err := t.repo.FindForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, entity.ErrJobTerminal
	}
	job.BeginAttempt()
	if err := t.repo.Update(ctx, job); err != nil {
		if errors.Is(err, entity.ErrJobTerminal) {
			if stored, gerr := t.repo.FindForUser(ctx, id, userID); gerr == nil {
				return stored, err
			}
			return job, err
		}
		return nil, err
	}
	return job, nil
}

func (t *Tracker) Advance(ctx context.Context, id uuid.UUID, userID string, percent int) error {
	job, err := t.repo.FindForUser(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := job.Advance(percent); err != nil {
		return err
	}
	return t.repo.Update(ctx, job)
}

func (t *Tracker) Complete(ctx context.Context, id uuid.UUID, userID string, out entity.Output) (*entity.Job, error) {
	return t.finish(ctx, id, userID, entity.JobStatusCompleted, func(j *entity.Job) error {
		return j.Complete(out)
	})
}

func (t *Tracker) Fail(ctx context.Context, id uuid.UUID, userID, message string) (*entity.Job, error) {
	return t.finish(ctx, id, userID, entity.JobStatusFailed, func(j *entity.Job) error {
		return j.Fail(message)
	})
}

// finish is a no-op when the job already sits in target, including when another writer got there first.
func (t *Tracker) finish(ctx context.Context, id uuid.UUID, userID string, target entity.JobStatus, apply func(*entity.Job) error) (*entity.Job, error) {
	job, err := t.repo.FindForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if job.Status == target {
		return job, nil
	}
	if err := apply(job); err != nil {
		return nil, err
	}
	if err := t.repo.Update(ctx, job); err != nil {
		if errors.Is(err, entity.ErrJobTerminal) {
			if stored, gerr := t.repo.FindForUser(ctx, id, userID); gerr == nil && stored.Status == target {
				return stored, nil
			}
		}
		return nil, err
	}
	return job, nil
}
