package usecase

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/karanamabhishek1402/VDSM/internal/domain/category"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/infra/ffmpeg"
	miniostorage "github.com/karanamabhishek1402/VDSM/internal/infra/minio"
	"github.com/karanamabhishek1402/VDSM/internal/infra/postgres"
	"github.com/karanamabhishek1402/VDSM/internal/infra/rabbitmq"
	"github.com/karanamabhishek1402/VDSM/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

func TestTimeRangeSummaryEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Start PostgreSQL container
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("vdsm"),
		tcpostgres.WithUsername("vdsm"),
		tcpostgres.WithPassword("vdsm"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(pgConnStr))

	// Start RabbitMQ container
	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Start MinIO container
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:  minioEndpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Buckets:   []string{"videos", "summaries"},
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	// Ten second synthetic source video
	dir := t.TempDir()
	source := filepath.Join(dir, "source.mp4")
	gen := exec.CommandContext(ctx, "ffmpeg", "-y", "-f", "lavfi", "-i", "testsrc=duration=10:size=320x240:rate=10",
		"-c:v", "libx264", "-g", "10", "-pix_fmt", "yuv420p", source)
	out, err := gen.CombinedOutput()
	require.NoError(t, err, string(out))

	videoKey := "user-1/source.mp4"
	_, err = storage.Upload(ctx, "videos", source, videoKey, "video/mp4")
	require.NoError(t, err)

	log, err := logger.New("debug")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()
	repo := postgres.NewJobRepository(pool)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "vdsm.summary")
	require.NoError(t, err)
	defer pub.Close()

	consumerCfg := rabbitmq.ConsumerConfig{
		URL:            rmqURL,
		Queue:          "summary.jobs",
		Exchange:       "vdsm.summary",
		DLQ:            "summary.jobs.dlq",
		StatusQueue:    "summary.status",
		Prefetch:       1,
		WorkerCount:    1,
		BaseDelayMs:    100,
		DefaultTimeout: time.Minute,
	}
	require.NoError(t, pub.DeclareTopology(consumerCfg))

	vocabulary := category.Default()
	summarize := NewSummarizeVideoUseCase(
		repo, storage, ffmpeg.NewTool("ffmpeg", "ffprobe", log), &fakeEmbedder{}, vocabulary,
		rabbitmq.NewStatusPublisher(pub), rabbitmq.NewDLQPublisher(pub, consumerCfg.DLQ), &recordingNotifier{},
		log,
		SummarizeConfig{
			TempDir:               filepath.Join(dir, "work"),
			VideoBucket:           "videos",
			SummaryBucket:         "summaries",
			SampleStride:          10,
			SimilarityThreshold:   0.25,
			TargetDurationSeconds: 60,
		},
	)
	submit := NewSubmitSummaryUseCase(repo, rabbitmq.NewTaskEnqueuer(pub), vocabulary, log, SubmitConfig{
		MaxAttempts: 3,
		JobTimeout:  time.Minute,
	})

	consumer, err := rabbitmq.NewConsumer(consumerCfg, map[string]rabbitmq.MessageHandler{
		entity.TaskSummarizeTimeRange: summarize.Execute,
	}, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()
	go func() { _ = consumer.Start(consumerCtx) }()

	job, err := submit.Execute(ctx, SubmitRequest{
		VideoID:     "video-1",
		VideoKey:    videoKey,
		UserID:      "user-1",
		RequestType: entity.RequestTypeTimeRange,
		RequestData: entity.RequestData{TimeRanges: []entity.TimeRange{{Start: 10, End: 30}, {Start: 60, End: 80}}},
	})
	require.NoError(t, err)

	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	var status entity.JobStatusMessage
	require.Eventually(t, func() bool {
		msg, ok, err := statusCh.Get(consumerCfg.StatusQueue, true)
		if err != nil || !ok {
			return false
		}
		return json.Unmarshal(msg.Body, &status) == nil && status.JobID == job.ID
	}, 3*time.Minute, 500*time.Millisecond)

	require.Equal(t, entity.JobStatusCompleted, status.Status, status.ErrorMessage)
	assert.Equal(t, 2, status.SceneCount)

	stored, err := repo.FindForUser(ctx, job.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.ProgressPercent)
	assert.Equal(t, 4, stored.SummaryDurationSeconds)
	assert.Equal(t, SummaryKey(job.ID), stored.StoragePath)

	summary := filepath.Join(dir, "summary.mp4")
	require.NoError(t, storage.Download(ctx, "summaries", stored.StoragePath, summary))
	fi, err := os.Stat(summary)
	require.NoError(t, err)
	assert.Equal(t, stored.FileSize, fi.Size())

	info, err := ffmpeg.NewTool("ffmpeg", "ffprobe", log).Probe(ctx, summary)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, info.Duration, 1.0)
}
