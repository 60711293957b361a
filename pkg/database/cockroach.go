package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamodi15-code/SecureTalk/pkg/env"
	"github.com/hamodi15-code/SecureTalk/pkg/logger"
)

// CockroachConfig holds connection settings for the CockroachDB cluster.
type CockroachConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// CockroachConfigFromEnv builds the config from environment variables.
func CockroachConfigFromEnv() CockroachConfig {
	return CockroachConfig{
		URL:             env.GetStringFromFile("DATABASE_URL", "postgresql://root@localhost:26257/securetalk?sslmode=disable"),
		MaxConns:        int32(env.GetInt("DB_MAX_CONNS", 25)),
		MinConns:        int32(env.GetInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime: env.GetDuration("DB_MAX_CONN_LIFETIME", time.Hour),
		MaxConnIdleTime: env.GetDuration("DB_MAX_CONN_IDLE_TIME", 30*time.Minute),
	}
}

// NewCockroachPool creates a pgx connection pool and verifies connectivity.
func NewCockroachPool(ctx context.Context, cfg CockroachConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Log.Info("connected to cockroachdb",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)
	return pool, nil
}
