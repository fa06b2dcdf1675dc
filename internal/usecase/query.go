package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/karanamabhishek1402/VDSM/internal/domain/category"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/domain/port"
	"go.uber.org/zap"
)

const DownloadURLTTL = 24 * time.Hour

var ErrSummaryNotReady = errors.New("summary is not completed")

type Progress struct {
	JobID           uuid.UUID        `json:"job_id"`
	Status          entity.JobStatus `json:"status"`
	ProgressPercent int              `json:"progress_percent"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

type CategoryInfo struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SummaryQueryUseCase struct {
	repo       port.JobRepository
	storage    port.BlobStore
	bucket     string
	vocabulary *category.Vocabulary
	logger     *zap.Logger
}

func NewSummaryQueryUseCase(repo port.JobRepository, storage port.BlobStore, summaryBucket string, vocabulary *category.Vocabulary, logger *zap.Logger) *SummaryQueryUseCase {
	return &SummaryQueryUseCase{repo: repo, storage: storage, bucket: summaryBucket, vocabulary: vocabulary, logger: logger}
}

func (uc *SummaryQueryUseCase) Get(ctx context.Context, id uuid.UUID, userID string) (*entity.Job, error) {
	return uc.repo.FindForUser(ctx, id, userID)
}

// List returns the user's summaries of one video, newest first.
func (uc *SummaryQueryUseCase) List(ctx context.Context, videoID, userID string) ([]*entity.Job, error) {
	return uc.repo.ListByVideo(ctx, videoID, userID)
}

func (uc *SummaryQueryUseCase) Progress(ctx context.Context, id uuid.UUID, userID string) (Progress, error) {
	job, err := uc.repo.FindForUser(ctx, id, userID)
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		JobID:           job.ID,
		Status:          job.Status,
		ProgressPercent: job.ProgressPercent,
		ErrorMessage:    job.ErrorMessage,
	}, nil
}

// DownloadURL signs a time-limited link to a completed summary.
func (uc *SummaryQueryUseCase) DownloadURL(ctx context.Context, id uuid.UUID, userID string) (string, error) {
	job, err := uc.repo.FindForUser(ctx, id, userID)
	if err != nil {
		return "", err
	}
	if job.Status != entity.JobStatusCompleted || job.StoragePath == "" {
		return "", fmt.Errorf("%w: status %s", ErrSummaryNotReady, job.Status)
	}
	return uc.storage.SignedURL(ctx, uc.bucket, job.StoragePath, DownloadURLTTL)
}

// Delete removes the job row. A missing or unreachable object does not block it.
func (uc *SummaryQueryUseCase) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	job, err := uc.repo.FindForUser(ctx, id, userID)
	if err != nil {
		return err
	}
	if job.StoragePath != "" {
		if err := uc.storage.Delete(ctx, uc.bucket, job.StoragePath); err != nil {
			uc.logger.Warn("failed to delete summary object",
				zap.String("job_id", id.String()), zap.String("key", job.StoragePath), zap.Error(err))
		}
	}
	return uc.repo.Delete(ctx, id, userID)
}

func (uc *SummaryQueryUseCase) Categories() []CategoryInfo {
	return ListCategories(uc.vocabulary)
}

// ListCategories describes every vocabulary key, sorted by key.
func ListCategories(v *category.Vocabulary) []CategoryInfo {
	keys := v.Keys()
	out := make([]CategoryInfo, 0, len(keys))
	for _, k := range keys {
		desc, _ := v.Description(k)
		out = append(out, CategoryInfo{Key: k, Name: category.DisplayName(k), Description: desc})
	}
	return out
}
