// Package retry runs an operation again with exponential backoff.
//
// Kiroku does not retry on the request path. Retries are reserved for
// startup probes against collaborators that may still be booting, such as a
// local ollama daemon that is loading its embedding model.
//
//	err := retry.Do(ctx, retry.Config{Op: "embedder probe", MaxAttempts: 5}, func() error {
//	    _, err := embedder.Embed(ctx, "probe")
//	    return err
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// Op names the operation in debug logs.
	Op string
	// MaxAttempts is the total number of attempts including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. Later waits double
	// up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Permanent reports errors that must not be retried. Nil retries all.
	Permanent func(err error) bool
}

// DefaultConfig suits short-lived network probes.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

func (c Config) normalised() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultConfig.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultConfig.MaxDelay
	}
	if c.Permanent == nil {
		c.Permanent = func(error) bool { return false }
	}
	return c
}

// Do calls fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. The last error from fn is returned, joined with
// the context error when cancellation cut the loop short.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.normalised()
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn()
		if lastErr == nil || cfg.Permanent(lastErr) || attempt >= cfg.MaxAttempts {
			return lastErr
		}

		slog.Debug("retry: attempt failed",
			"op", cfg.Op, "attempt", attempt, "max", cfg.MaxAttempts,
			"err", lastErr, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay = min(delay*2, cfg.MaxDelay)
	}
}
