package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/karanamabhishek1402/VDSM/internal/domain/category"
	"github.com/karanamabhishek1402/VDSM/internal/infra/config"
	miniostorage "github.com/karanamabhishek1402/VDSM/internal/infra/minio"
	"github.com/karanamabhishek1402/VDSM/internal/infra/rabbitmq"
	"github.com/karanamabhishek1402/VDSM/internal/infra/store"
	"github.com/karanamabhishek1402/VDSM/internal/usecase"
	"github.com/karanamabhishek1402/VDSM/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	userID   string
	logLevel string
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "vdsmctl",
	Short:        "vdsmctl - submit and inspect video summaries",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", os.Getenv("VDSM_USER"), "owner of the summaries (default $VDSM_USER)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(urlCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(categoriesCmd())
}

// app holds the use cases a command runs against. close releases every connection it opened.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	submit *usecase.SubmitSummaryUseCase
	query  *usecase.SummaryQueryUseCase
	close  func()
}

func newApp(ctx context.Context, withQueue bool) (*app, error) {
	if userID == "" {
		return nil, fmt.Errorf("a user is required: pass --user or set VDSM_USER")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(logLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	var closers []func()
	a := &app{cfg: cfg, log: log, close: func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		log.Sync()
	}}

	jobs, err := store.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	closers = append(closers, jobs.Close)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		UseSSL:    cfg.MinIOUseSSL,
		Buckets:   []string{cfg.MinIOVideoBucket, cfg.MinIOSummaryBucket},
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create minio storage: %w", err)
	}

	vocabulary, err := category.Load(cfg.CategoryFile)
	if err != nil {
		a.close()
		return nil, err
	}
	a.query = usecase.NewSummaryQueryUseCase(jobs.Jobs, storage, cfg.MinIOSummaryBucket, vocabulary, log)

	if withQueue {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		closers = append(closers, func() { conn.Close() })

		pub, err := rabbitmq.NewPublisher(conn, cfg.RabbitMQExchange)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := pub.DeclareTopology(rabbitmq.ConsumerConfig{
			Queue:       cfg.RabbitMQSummaryQueue,
			Exchange:    cfg.RabbitMQExchange,
			DLQ:         cfg.RabbitMQDLQ,
			StatusQueue: cfg.RabbitMQStatusQueue,
		}); err != nil {
			a.close()
			return nil, err
		}
		a.submit = usecase.NewSubmitSummaryUseCase(jobs.Jobs, rabbitmq.NewTaskEnqueuer(pub), vocabulary, log, usecase.SubmitConfig{
			MaxAttempts: cfg.MaxAttempts,
			JobTimeout:  cfg.JobTimeout,
		})
	}
	return a, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
