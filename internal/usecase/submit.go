package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/karanamabhishek1402/VDSM/internal/domain/category"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/domain/port"
	"github.com/karanamabhishek1402/VDSM/internal/infra/metrics"
	"go.uber.org/zap"
)

const maxTitlePromptRunes = 50

type SubmitRequest struct {
	VideoID               string
	VideoKey              string
	UserID                string
	UserEmail             string
	Title                 string
	RequestType           entity.RequestType
	RequestData           entity.RequestData
	TargetDurationSeconds float64
}

type SubmitSummaryUseCase struct {
	repo        port.JobRepository
	queue       port.TaskQueue
	vocabulary  *category.Vocabulary
	logger      *zap.Logger
	maxAttempts int
	jobTimeout  time.Duration
}

type SubmitConfig struct {
	MaxAttempts int
	JobTimeout  time.Duration
}

func NewSubmitSummaryUseCase(repo port.JobRepository, queue port.TaskQueue, vocabulary *category.Vocabulary, logger *zap.Logger, cfg SubmitConfig) *SubmitSummaryUseCase {
	return &SubmitSummaryUseCase{
		repo:        repo,
		queue:       queue,
		vocabulary:  vocabulary,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		jobTimeout:  cfg.JobTimeout,
	}
}

// Execute validates the request, stores a processing job and enqueues its task.
func (uc *SubmitSummaryUseCase) Execute(ctx context.Context, req SubmitRequest) (*entity.Job, error) {
	if req.VideoID == "" || req.VideoKey == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: video id, video key and user id are required", entity.ErrInvalidRequest)
	}
	if req.TargetDurationSeconds < 0 {
		return nil, fmt.Errorf("%w: target duration must not be negative", entity.ErrInvalidRequest)
	}
	if err := entity.ValidateRequest(req.RequestType, req.RequestData, uc.vocabulary.Has); err != nil {
		return nil, err
	}

	job := entity.NewJob(req.VideoID, req.UserID, req.VideoKey, req.RequestType, req.RequestData, uc.maxAttempts)
	job.Title = req.Title
	if job.Title == "" {
		job.Title = defaultTitle(req.RequestType, req.RequestData)
	}
	job.TargetDurationSeconds = req.TargetDurationSeconds

	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("request_type", string(job.RequestType)))

	payload, _ := json.Marshal(entity.SummarizationMessage{JobID: job.ID, UserID: job.UserID, UserEmail: req.UserEmail})
	if err := uc.queue.Enqueue(ctx, entity.TaskFor(job.RequestType), payload, uc.jobTimeout); err != nil {
		log.Error("failed to enqueue job", zap.Error(err))
		if ferr := job.Fail("enqueue failed: " + err.Error()); ferr == nil {
			if uerr := uc.repo.Update(context.WithoutCancel(ctx), job); uerr != nil {
				log.Error("failed to mark unqueued job failed", zap.Error(uerr))
			}
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.JobsSubmittedTotal.WithLabelValues(string(job.RequestType)).Inc()
	log.Info("summary job submitted")
	return job, nil
}

func defaultTitle(t entity.RequestType, data entity.RequestData) string {
	switch t {
	case entity.RequestTypeCategory:
		return "Summary: " + category.DisplayName(data.Category)
	case entity.RequestTypeTimeRange:
		return fmt.Sprintf("Summary: %d time ranges", len(data.TimeRanges))
	default:
		prompt := data.Prompt
		if utf8.RuneCountInString(prompt) > maxTitlePromptRunes {
			prompt = string([]rune(prompt)[:maxTitlePromptRunes]) + "..."
		}
		return "Summary: " + prompt
	}
}
