package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/karanamabhishek1402/VDSM/internal/domain/port"
	"github.com/karanamabhishek1402/VDSM/internal/infra/config"
	"github.com/karanamabhishek1402/VDSM/internal/infra/postgres"
	"github.com/karanamabhishek1402/VDSM/internal/infra/sqlite"
	"go.uber.org/zap"
)

// Store is an opened job repository with its health check and release func.
type Store struct {
	Jobs  port.JobRepository
	Ping  func(ctx context.Context) error
	Close func()
}

// Open connects the configured job store and brings its schema up to date.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite job store", zap.String("path", cfg.SQLitePath))
		return &Store{
			Jobs:  sqlite.NewJobRepository(db),
			Ping:  db.PingContext,
			Close: func() { db.Close() },
		}, nil
	default:
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("using postgres job store")
		return &Store{
			Jobs:  postgres.NewJobRepository(pool),
			Ping:  pool.Ping,
			Close: pool.Close,
		}, nil
	}
}
