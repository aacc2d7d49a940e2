package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// fallbackProvider answers from primary and, when primary fails, retries
// the same request once on secondary.
type fallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *slog.Logger
}

// WithFallback wraps primary so that its failures are retried on secondary.
// Cancellation and deadline errors are returned as is.
func WithFallback(primary, secondary Provider, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackProvider{primary: primary, secondary: secondary, logger: logger}
}

func (p *fallbackProvider) Name() string {
	return p.primary.Name() + "+" + p.secondary.Name()
}

func (p *fallbackProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	p.logger.Warn("llm: primary provider failed, switching to fallback",
		"primary", p.primary.Name(), "fallback", p.secondary.Name(), "err", err)

	resp, fbErr := p.secondary.Complete(ctx, req)
	if fbErr != nil {
		return nil, fmt.Errorf("llm: fallback %s: %w", p.secondary.Name(), errors.Join(err, fbErr))
	}
	return resp, nil
}
