// Package repository persists ingest records and their children behind
// GORM. Postgres is the production target, reached through a pgx pool;
// an empty DSN falls back to an embedded SQLite file.
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	gormpg "gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/entity"
)

// Open connects per the config, runs migrations, and returns the GORM
// handle plus the pgx pool when Postgres is in use (nil for SQLite).
func Open(ctx context.Context, cfg common.DatabaseConfig, log *slog.Logger) (*gorm.DB, *pgxpool.Pool, error) {
	if cfg.DSN == "" {
		log.Info("opening embedded database", "path", cfg.Path)
		db, err := gorm.Open(gormsqlite.Open(cfg.Path+"?_busy_timeout=5000&_foreign_keys=on"), gormConfig())
		if err != nil {
			log.Error("failed to open embedded database", "error", err)
			return nil, nil, common.NewAppError("DB_OPEN", "opening sqlite database", err)
		}
		if err := migrate(db); err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	log.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		log.Error("failed to parse database config", "error", err)
		return nil, nil, common.NewAppError("DB_CONFIG", "parsing database DSN", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "cutflow"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return nil, nil, common.NewAppError("DB_CONNECT", "connecting to database", err)
	}

	// Wrap the pool as *sql.DB for GORM.
	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(gormpg.New(gormpg.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		pool.Close()
		log.Error("failed to initialize orm", "error", err)
		return nil, nil, common.NewAppError("DB_CONNECT", "initializing orm", err)
	}
	if err := migrate(db); err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info("successfully connected to database")
	return db, pool, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&entity.IngestRecord{},
		&entity.ExtractionRecord{},
		&entity.MetadataEntry{},
	)
	if err != nil {
		return common.NewAppError("DB_MIGRATE", "running schema migration", err)
	}
	return nil
}

// Close closes the database connections gracefully.
func Close(db *gorm.DB, pool *pgxpool.Pool, log *slog.Logger) {
	log.Info("closing database connections")
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error("failed to close database handle", "error", err)
			}
		}
	}
	if pool != nil {
		pool.Close()
	}
	log.Info("database connections closed")
}

// HealthCheck pings the underlying connection to catch DSN issues early.
func HealthCheck(ctx context.Context, db *gorm.DB, timeout time.Duration, log *slog.Logger) error {
	log.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return common.NewAppError("DB_PING", "resolving database handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		return common.NewAppError("DB_PING", "database unreachable", err)
	}
	return nil
}
