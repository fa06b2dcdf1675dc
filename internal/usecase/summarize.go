package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/karanamabhishek1402/VDSM/internal/domain/category"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/domain/port"
	"github.com/karanamabhishek1402/VDSM/internal/domain/sampling"
	"github.com/karanamabhishek1402/VDSM/internal/domain/scene"
	"github.com/karanamabhishek1402/VDSM/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Progress checkpoints for the similarity pipelines.
const (
	ProgressDownloading = 10
	ProgressSampling    = 20
	ProgressEmbedding   = 40
	ProgressMatching    = 60
	ProgressComposing   = 80
	ProgressUploading   = 90
)

// Progress checkpoints for the time-range pipeline.
const (
	ProgressRangeDownloading = 10
	ProgressRangeProbing     = 30
	ProgressRangeComposing   = 60
	ProgressRangeUploading   = 80
)

const finalizeTimeout = 30 * time.Second

// errJobFinalized stops a run whose job was closed by another writer.
var errJobFinalized = errors.New("job finalized elsewhere")

type SummarizeVideoUseCase struct {
	tracker    *Tracker
	storage    port.BlobStore
	media      port.MediaTool
	sampler    *sampling.Sampler
	embedder   port.Embedder
	vocabulary *category.Vocabulary
	publisher  port.StatusPublisher
	dlq        port.DLQPublisher
	notifier   port.FailureNotifier
	logger     *zap.Logger
	cfg        SummarizeConfig
}

type SummarizeConfig struct {
	TempDir               string
	VideoBucket           string
	SummaryBucket         string
	SampleStride          int
	SimilarityThreshold   float64
	TargetDurationSeconds float64
	EmbedBatchSize        int
}

func NewSummarizeVideoUseCase(
	repo port.JobRepository,
	storage port.BlobStore,
	media port.MediaTool,
	embedder port.Embedder,
	vocabulary *category.Vocabulary,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg SummarizeConfig,
) *SummarizeVideoUseCase {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	return &SummarizeVideoUseCase{
		tracker:    NewTracker(repo),
		storage:    storage,
		media:      media,
		sampler:    sampling.NewSampler(media, media, cfg.SampleStride, logger),
		embedder:   embedder,
		vocabulary: vocabulary,
		publisher:  publisher,
		dlq:        dlq,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// Execute runs one delivery. A nil return acks the message; an error requeues it.
func (uc *SummarizeVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "SummarizeVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.SummarizationMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.UserID == "" {
		uc.logger.Error("message without user id", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: missing user_id")
		return nil
	}

	span.SetAttributes(attribute.String("job.id", msg.JobID.String()))
	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("user_id", msg.UserID))

	job, err := uc.tracker.BeginAttempt(ctx, msg.JobID, msg.UserID)
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		log.Warn("job not found, sending to DLQ")
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "job_not_found")
		return nil
	case errors.Is(err, entity.ErrJobTerminal):
		if job != nil {
			log = log.With(zap.String("status", string(job.Status)))
		}
		log.Info("job already finished, skipping")
		return nil
	case err != nil:
		log.Error("failed to load job", zap.Error(err))
		return fmt.Errorf("begin attempt: %w", err)
	}
	span.SetAttributes(attribute.String("job.request_type", string(job.RequestType)), attribute.Int("job.attempt", job.Attempt))

	if !job.CanRetry() {
		log.Warn("job exhausted attempts, sending to DLQ")
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "max attempts exceeded")
		return uc.failJob(ctx, job, msg, "max attempts exceeded", log)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	out, err := uc.run(ctx, job, log)
	if errors.Is(err, errJobFinalized) {
		log.Info("job finalized during processing, abandoning run")
		return nil
	}
	if err != nil {
		// A cancelled context means the worker is shutting down; the message goes back to the queue.
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Warn("summarization interrupted, requeueing", zap.Error(err))
			return fmt.Errorf("interrupted: %w", err)
		}
		reason := err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("job timed out: %v", err)
		}
		log.Error("summarization failed", zap.Error(err))
		return uc.failJob(ctx, job, msg, reason, log)
	}

	return uc.completeJob(ctx, job, out, totalTimer, log)
}

func (uc *SummarizeVideoUseCase) run(ctx context.Context, job *entity.Job, log *zap.Logger) (entity.Output, error) {
	workDir := filepath.Join(uc.cfg.TempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return entity.Output{}, fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if job.RequestType == entity.RequestTypeTimeRange {
		return uc.runTimeRanges(ctx, job, workDir, log)
	}
	return uc.runSimilarity(ctx, job, workDir, log)
}

func (uc *SummarizeVideoUseCase) runSimilarity(ctx context.Context, job *entity.Job, workDir string, log *zap.Logger) (entity.Output, error) {
	if err := uc.advance(ctx, job, ProgressDownloading, log); err != nil {
		return entity.Output{}, err
	}
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(job.VideoKey))
	if err := uc.download(ctx, job, videoPath); err != nil {
		return entity.Output{}, err
	}

	if err := uc.advance(ctx, job, ProgressSampling, log); err != nil {
		return entity.Output{}, err
	}
	var frames []entity.FrameEmbedding
	if err := runStage(ctx, StageSample, func(ctx context.Context) error {
		var err error
		frames, err = uc.sampleAndEmbed(ctx, videoPath, log)
		return err
	}); err != nil {
		return entity.Output{}, err
	}

	if err := uc.advance(ctx, job, ProgressEmbedding, log); err != nil {
		return entity.Output{}, err
	}
	var target entity.Embedding
	var label string
	if err := runStage(ctx, StageEmbed, func(ctx context.Context) error {
		text := job.RequestData.Prompt
		label = text
		if job.RequestType == entity.RequestTypeCategory {
			desc, ok := uc.vocabulary.Description(job.RequestData.Category)
			if !ok {
				return fmt.Errorf("%w: unknown category %q", entity.ErrInvalidRequest, job.RequestData.Category)
			}
			text = desc
			label = job.RequestData.Category
		}
		var err error
		target, err = uc.embedder.EmbedText(ctx, text)
		return err
	}); err != nil {
		return entity.Output{}, err
	}

	if err := uc.advance(ctx, job, ProgressMatching, log); err != nil {
		return entity.Output{}, err
	}
	var candidates []entity.Scene
	if err := runStage(ctx, StageMatch, func(context.Context) error {
		var res scene.MatchResult
		var err error
		if job.RequestType == entity.RequestTypeCategory {
			res, err = scene.MatchCategory(frames, target, uc.cfg.SimilarityThreshold, label)
		} else {
			res, err = scene.Match(frames, target, uc.cfg.SimilarityThreshold, label)
		}
		if err != nil {
			return err
		}
		if res.Empty() {
			return fmt.Errorf("%w: %s", entity.ErrNoScenes, res.Reason)
		}
		candidates = res.Scenes
		return nil
	}); err != nil {
		return entity.Output{}, err
	}

	var selected []entity.Scene
	if err := runStage(ctx, StageSelect, func(context.Context) error {
		selected = scene.Select(candidates, uc.targetDuration(job))
		if len(selected) == 0 {
			return fmt.Errorf("%w: no candidate scene has a usable duration", entity.ErrNoScenes)
		}
		return nil
	}); err != nil {
		return entity.Output{}, err
	}
	log.Info("scenes selected", zap.Int("candidates", len(candidates)), zap.Int("selected", len(selected)))

	if err := uc.advance(ctx, job, ProgressComposing, log); err != nil {
		return entity.Output{}, err
	}
	outputPath, err := uc.compose(ctx, videoPath, selected, workDir)
	if err != nil {
		return entity.Output{}, err
	}

	if err := uc.advance(ctx, job, ProgressUploading, log); err != nil {
		return entity.Output{}, err
	}
	return uc.upload(ctx, job, outputPath, selected)
}

func (uc *SummarizeVideoUseCase) runTimeRanges(ctx context.Context, job *entity.Job, workDir string, log *zap.Logger) (entity.Output, error) {
	if err := uc.advance(ctx, job, ProgressRangeDownloading, log); err != nil {
		return entity.Output{}, err
	}
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(job.VideoKey))
	if err := uc.download(ctx, job, videoPath); err != nil {
		return entity.Output{}, err
	}

	if err := uc.advance(ctx, job, ProgressRangeProbing, log); err != nil {
		return entity.Output{}, err
	}
	var selected []entity.Scene
	if err := runStage(ctx, StageProbe, func(ctx context.Context) error {
		info, err := uc.media.Probe(ctx, videoPath)
		if err != nil {
			return err
		}
		if info.Duration <= 0 {
			return fmt.Errorf("video reports no duration")
		}
		selected, err = scene.FromTimeRanges(job.RequestData.TimeRanges, info.Duration)
		return err
	}); err != nil {
		return entity.Output{}, err
	}

	if err := uc.advance(ctx, job, ProgressRangeComposing, log); err != nil {
		return entity.Output{}, err
	}
	outputPath, err := uc.compose(ctx, videoPath, selected, workDir)
	if err != nil {
		return entity.Output{}, err
	}

	if err := uc.advance(ctx, job, ProgressRangeUploading, log); err != nil {
		return entity.Output{}, err
	}
	return uc.upload(ctx, job, outputPath, selected)
}

// sampleAndEmbed streams sampled frames into batched embedding calls.
func (uc *SummarizeVideoUseCase) sampleAndEmbed(ctx context.Context, videoPath string, log *zap.Logger) ([]entity.FrameEmbedding, error) {
	plan, err := uc.sampler.Plan(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	log.Info("sampling video",
		zap.Float64("duration", plan.Info.Duration),
		zap.Float64("fps", plan.Info.FPS),
		zap.Float64("interval", plan.Interval),
	)

	var (
		stats    sampling.Stats
		batch    []entity.FrameSample
		embedded []entity.FrameEmbedding
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		vecs, err := uc.embedder.EmbedFrames(ctx, batch)
		if err != nil {
			return fmt.Errorf("embed frames: %w", err)
		}
		embedded = append(embedded, vecs...)
		batch = nil
		return nil
	}

	for frame, err := range uc.sampler.Frames(ctx, videoPath, plan, &stats) {
		if err != nil {
			return nil, err
		}
		batch = append(batch, frame)
		if len(batch) >= uc.cfg.EmbedBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	metrics.FramesSampledTotal.Add(float64(stats.Decoded))
	metrics.FramesSkippedTotal.Add(float64(stats.Skipped))
	log.Info("frames embedded", zap.Int("decoded", stats.Decoded), zap.Int("skipped", stats.Skipped))
	return embedded, nil
}

func (uc *SummarizeVideoUseCase) download(ctx context.Context, job *entity.Job, videoPath string) error {
	return runStage(ctx, StageDownload, func(ctx context.Context) error {
		return uc.storage.Download(ctx, uc.cfg.VideoBucket, job.VideoKey, videoPath)
	})
}

func (uc *SummarizeVideoUseCase) compose(ctx context.Context, videoPath string, scenes []entity.Scene, workDir string) (string, error) {
	outputPath := filepath.Join(workDir, "summary."+entity.DefaultOutputFormat)
	err := runStage(ctx, StageCompose, func(ctx context.Context) error {
		return uc.media.Compose(ctx, videoPath, scenes, outputPath)
	})
	return outputPath, err
}

func (uc *SummarizeVideoUseCase) upload(ctx context.Context, job *entity.Job, outputPath string, scenes []entity.Scene) (entity.Output, error) {
	key := SummaryKey(job.ID)
	var size int64
	if err := runStage(ctx, StageUpload, func(ctx context.Context) error {
		var err error
		size, err = uc.storage.Upload(ctx, uc.cfg.SummaryBucket, outputPath, key, "video/mp4")
		return err
	}); err != nil {
		return entity.Output{}, err
	}
	return entity.Output{
		StoragePath:     key,
		FileSize:        size,
		DurationSeconds: int(entity.TotalDuration(scenes)),
		Scenes:          scenes,
	}, nil
}

// advance reports progress without failing the run, except when the job was already closed.
func (uc *SummarizeVideoUseCase) advance(ctx context.Context, job *entity.Job, percent int, log *zap.Logger) error {
	err := uc.tracker.Advance(ctx, job.ID, job.UserID, percent)
	switch {
	case err == nil:
		job.ProgressPercent = percent
		return nil
	case errors.Is(err, entity.ErrJobTerminal):
		return errJobFinalized
	case errors.Is(err, entity.ErrProgressRegression):
		log.Debug("ignoring progress regression", zap.Int("percent", percent))
	default:
		log.Warn("failed to record progress", zap.Int("percent", percent), zap.Error(err))
	}
	return ctx.Err()
}

func (uc *SummarizeVideoUseCase) targetDuration(job *entity.Job) float64 {
	if job.TargetDurationSeconds > 0 {
		return job.TargetDurationSeconds
	}
	return uc.cfg.TargetDurationSeconds
}

func (uc *SummarizeVideoUseCase) completeJob(ctx context.Context, job *entity.Job, out entity.Output, started time.Time, log *zap.Logger) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	done, err := uc.tracker.Complete(fctx, job.ID, job.UserID, out)
	if err != nil {
		log.Error("failed to record completion, removing uploaded summary", zap.Error(err))
		if derr := uc.storage.Delete(fctx, uc.cfg.SummaryBucket, out.StoragePath); derr != nil {
			log.Error("failed to remove orphaned summary", zap.String("key", out.StoragePath), zap.Error(derr))
		}
		if errors.Is(err, entity.ErrJobTerminal) {
			return nil
		}
		return fmt.Errorf("complete job: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.ScenesSelectedTotal.Add(float64(len(out.Scenes)))
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(started).Seconds())
	publishStatus(fctx, uc.publisher, done, log)

	log.Info("summary completed",
		zap.String("storage_path", done.StoragePath),
		zap.Int64("file_size", done.FileSize),
		zap.Int("duration_seconds", done.SummaryDurationSeconds),
		zap.Int("scenes", len(done.SelectedScenes)),
	)
	return nil
}

// failJob records a terminal failure. It runs on a detached context so a timed out run can still be closed.
func (uc *SummarizeVideoUseCase) failJob(ctx context.Context, job *entity.Job, msg entity.SummarizationMessage, reason string, log *zap.Logger) error {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	failed, err := uc.tracker.Fail(fctx, job.ID, job.UserID, reason)
	if errors.Is(err, entity.ErrJobTerminal) {
		log.Info("job already completed, not marking failed")
		return nil
	}
	if err != nil {
		log.Error("failed to mark job failed", zap.Error(err))
		return fmt.Errorf("fail job: %w", err)
	}

	metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
	publishStatus(fctx, uc.publisher, failed, log)

	if msg.UserEmail != "" && uc.notifier != nil {
		if err := uc.notifier.NotifyFailure(fctx, msg.UserEmail, job.ID.String(), job.VideoID, failed.ErrorMessage); err != nil {
			log.Warn("failed to send failure notification", zap.Error(err))
		}
	}
	return nil
}
