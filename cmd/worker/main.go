package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karanamabhishek1402/VDSM/internal/domain/category"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/infra/clip"
	"github.com/karanamabhishek1402/VDSM/internal/infra/config"
	"github.com/karanamabhishek1402/VDSM/internal/infra/email"
	"github.com/karanamabhishek1402/VDSM/internal/infra/ffmpeg"
	"github.com/karanamabhishek1402/VDSM/internal/infra/metrics"
	miniostorage "github.com/karanamabhishek1402/VDSM/internal/infra/minio"
	"github.com/karanamabhishek1402/VDSM/internal/infra/rabbitmq"
	"github.com/karanamabhishek1402/VDSM/internal/infra/store"
	"github.com/karanamabhishek1402/VDSM/internal/infra/tracing"
	"github.com/karanamabhishek1402/VDSM/internal/usecase"
	"github.com/karanamabhishek1402/VDSM/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting vdsm summary worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if the collector is unavailable)
	tp, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName: "vdsm-worker",
		Endpoint:    cfg.JaegerEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	jobs, err := store.Open(ctx, cfg, log)
	fatalOnErr(err, "open job store")
	defer jobs.Close()

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Buckets:   []string{cfg.MinIOVideoBucket, cfg.MinIOSummaryBucket},
	})
	fatalOnErr(err, "create minio storage")
	fatalOnErr(storage.EnsureBuckets(ctx), "ensure minio buckets")

	rmqConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for publisher")
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
	fatalOnErr(err, "create rabbitmq publisher")
	defer pub.Close()

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)

	vocabulary, err := category.Load(cfg.CategoryFile)
	fatalOnErr(err, "load category vocabulary")

	// The model loads once per process, before any delivery is accepted.
	embedder, err := clip.Shared(clip.ModelConfig{
		LibraryPath: cfg.ONNXRuntimeLibrary,
		VisualPath:  cfg.CLIPVisualModel,
		TextualPath: cfg.CLIPTextualModel,
		VocabPath:   cfg.CLIPVocabFile,
		ImageInput:  cfg.CLIPImageInputName,
		ImageOutput: cfg.CLIPImageOutputName,
		TextOutput:  cfg.CLIPTextOutputName,
		BatchSize:   cfg.EmbedBatchSize,
	}, log)
	fatalOnErr(err, "load clip model")
	defer embedder.Close()

	media := ffmpeg.NewTool(cfg.FFmpegPath, cfg.FFprobePath, log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	summarize := usecase.NewSummarizeVideoUseCase(
		jobs.Jobs, storage, media, embedder, vocabulary,
		statusPub, dlqPub, notifier,
		log,
		usecase.SummarizeConfig{
			TempDir:               cfg.TempDir,
			VideoBucket:           cfg.MinIOVideoBucket,
			SummaryBucket:         cfg.MinIOSummaryBucket,
			SampleStride:          cfg.SampleStride,
			SimilarityThreshold:   cfg.SimilarityThreshold,
			TargetDurationSeconds: cfg.TargetDurationSeconds,
			EmbedBatchSize:        cfg.EmbedBatchSize,
		},
	)

	reconciler := usecase.NewReconciler(jobs.Jobs, storage, statusPub, log, usecase.ReconcilerConfig{
		SummaryBucket: cfg.MinIOSummaryBucket,
		StaleAfter:    cfg.StaleAfter,
		Interval:      cfg.ReconcileInterval,
	})
	go reconciler.Run(ctx)

	metricsSrv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, map[string]metrics.ReadyCheck{
		"store":   jobs.Ping,
		"storage": storage.Ping,
	}, log)

	// Consumer (worker pool)
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:            cfg.RabbitMQURL,
		Queue:          cfg.RabbitMQSummaryQueue,
		Exchange:       cfg.RabbitMQExchange,
		DLQ:            cfg.RabbitMQDLQ,
		StatusQueue:    cfg.RabbitMQStatusQueue,
		Prefetch:       cfg.RabbitMQPrefetch,
		WorkerCount:    cfg.WorkerCount,
		BaseDelayMs:    cfg.RetryBaseDelayMs,
		DefaultTimeout: cfg.JobTimeout,
	}, map[string]rabbitmq.MessageHandler{
		entity.TaskSummarizeTextPrompt: summarize.Execute,
		entity.TaskSummarizeCategory:   summarize.Execute,
		entity.TaskSummarizeTimeRange:  summarize.Execute,
	}, log)
	fatalOnErr(err, "create consumer")

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("vdsm summary worker started, consuming messages")

	if err := consumer.Start(ctx); err != nil {
		log.Error("consumer error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	consumer.Close()
	log.Info("vdsm summary worker stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
