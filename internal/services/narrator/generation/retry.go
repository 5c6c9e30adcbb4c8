package generation

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	apperrors "github.com/louisbranch/gmloop/internal/platform/errors"
)

// RetryConfig bounds retries of transient backend failures.
type RetryConfig struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying retries BACKEND_UNAVAILABLE failures with exponential backoff.
type Retrying struct {
	next Backend
	cfg  RetryConfig
}

// WithRetry wraps next. MaxAttempts below one means a single attempt.
func WithRetry(next Backend, cfg RetryConfig) *Retrying {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return &Retrying{next: next, cfg: cfg}
}

// Generate implements Backend.
func (r *Retrying) Generate(ctx context.Context, prompt Prompt) (Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialInterval
	policy.MaxInterval = r.cfg.MaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (Response, error) {
		attempt++
		resp, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		if !apperrors.IsCode(err, apperrors.CodeBackendUnavailable) {
			return Response{}, backoff.Permanent(err)
		}
		log.Printf("generation: attempt %d failed: %v", attempt, err)
		return Response{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(r.cfg.MaxAttempts))
}
