package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/karanamabhishek1402/VDSM/internal/domain/port"
	"github.com/karanamabhishek1402/VDSM/internal/infra/metrics"
	"go.uber.org/zap"
)

// Reconciler fails jobs left in processing by a worker that died, and drops any summary they uploaded.
type Reconciler struct {
	repo       port.JobRepository
	storage    port.BlobStore
	bucket     string
	publisher  port.StatusPublisher
	logger     *zap.Logger
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
}

type ReconcilerConfig struct {
	SummaryBucket string
	StaleAfter    time.Duration
	Interval      time.Duration
}

func NewReconciler(repo port.JobRepository, storage port.BlobStore, publisher port.StatusPublisher, logger *zap.Logger, cfg ReconcilerConfig) *Reconciler {
	return &Reconciler{
		repo:       repo,
		storage:    storage,
		bucket:     cfg.SummaryBucket,
		publisher:  publisher,
		logger:     logger,
		staleAfter: cfg.StaleAfter,
		interval:   cfg.Interval,
		now:        time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("reconcile sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep fails every processing job untouched for longer than staleAfter.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	reason := fmt.Sprintf("abandoned: no progress for %s", r.staleAfter)
	jobs, err := r.repo.FailStale(ctx, r.now().Add(-r.staleAfter), reason)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	for _, job := range jobs {
		log := r.logger.With(zap.String("job_id", job.ID.String()))
		log.Warn("failed stale job", zap.Time("updated_at", job.UpdatedAt))
		if r.storage != nil {
			if err := r.storage.Delete(ctx, r.bucket, SummaryKey(job.ID)); err != nil {
				log.Debug("no summary object removed", zap.Error(err))
			}
		}
		publishStatus(ctx, r.publisher, job, log)
		metrics.StaleJobsFailedTotal.Inc()
		metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
	}
	return len(jobs), nil
}
