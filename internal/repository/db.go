package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver           string // "sqlite" (default) or "postgres"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DriverFromDSN guesses the driver from a DSN: postgres URLs use pgx, anything else sqlite.
func DriverFromDSN(dsn string) string {
	d := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// Open connects and wraps the connection in an ent SQL driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*entsql.Driver, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverFromDSN(cfg.DSN)
	}
	switch cfg.Driver {
	case "postgres":
		return openPostgres(ctx, cfg, logger)
	case "sqlite":
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*entsql.Driver, func(), error) {
	logger.Info("connecting to database", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "sds-namer"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("database ping failed", "error", err)
		return nil, nil, err
	}

	// Wrap pool as *sql.DB for ent
	db := stdlib.OpenDBFromPool(pool)
	drv := entsql.OpenDB(dialect.Postgres, db)

	closeFn := func() {
		logger.Info("closing database connections")
		if err := drv.Close(); err != nil {
			logger.Error("failed to close ent driver", "error", err)
		}
		pool.Close()
	}
	logger.Info("successfully connected to database")
	return drv, closeFn, nil
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*entsql.Driver, func(), error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "file:sds.db"
	}
	logger.Info("connecting to database", "driver", "sqlite", "dsn", dsn)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}
	// a single writer avoids SQLITE_BUSY between batch workers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("database ping failed", "error", err)
		return nil, nil, err
	}

	drv := entsql.OpenDB(dialect.SQLite, db)
	closeFn := func() {
		if err := drv.Close(); err != nil {
			logger.Error("failed to close ent driver", "error", err)
		}
	}
	return drv, closeFn, nil
}

// HealthCheck pings the database.
func HealthCheck(ctx context.Context, drv *entsql.Driver, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return drv.DB().PingContext(ctx)
}
