package retry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamodi15-code/SecureTalk/pkg/logger"
)

// Config bounds a retry loop. Retries are only appropriate for operations
// that are idempotent (upserts, reads); anything that would duplicate
// state on a blind repeat must not go through here.
type Config struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig matches the store/network retry policy: three capped
// attempts with exponential backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Do runs fn up to cfg.MaxAttempts times, backing off between failures.
// Returns nil on the first success, the last error otherwise, and stops
// early when ctx is done.
func Do(ctx context.Context, operation string, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}

	interval := cfg.InitialInterval
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		logger.Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", interval),
			zap.Error(lastErr),
		)

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}

		interval *= 2
		if interval > cfg.MaxInterval {
			interval = cfg.MaxInterval
		}
	}

	return lastErr
}
