package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/truffle-ai/saiki-sub004/types"
)

// Policy defines retry behavior for provider calls. Backoff grows linearly:
// delay(n) = InitialDelay + (n-1)*Increment, capped at MaxDelay.
type Policy struct {
	MaxAttempts  int           // total attempts including the first (min 1)
	InitialDelay time.Duration // delay before the second attempt
	Increment    time.Duration // linear step added per further attempt
	MaxDelay     time.Duration // upper bound on any single delay

	// OnRetry is invoked before each re-attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy suits most LLM API calls: three attempts, one second base
// delay growing by a second per attempt.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		Increment:    1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Retryer re-runs an operation under a Policy. The callback receives the
// 1-based attempt number and whether this is the final attempt, letting
// callers degrade their request (for example, withholding tools) before
// giving up.
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// New creates a Retryer, normalizing nonsensical policy values.
func New(policy Policy, logger *zap.Logger) *Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.Increment < 0 {
		policy.Increment = 0
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	return &Retryer{policy: policy, logger: logger}
}

// Do runs fn until it succeeds, a non-retryable error occurs, the context is
// cancelled, or attempts are exhausted.
func (r *Retryer) Do(ctx context.Context, fn func(attempt int, final bool) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.delay(attempt)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = fn(attempt, attempt == r.policy.MaxAttempts)
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}
		if !types.IsRetryable(lastErr) {
			r.logger.Debug("error not retryable", zap.Error(lastErr))
			return lastErr
		}
	}

	r.logger.Warn("retry attempts exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr))
	return fmt.Errorf("failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}

// delay computes the linear backoff before the given attempt (attempt >= 2).
func (r *Retryer) delay(attempt int) time.Duration {
	d := r.policy.InitialDelay + time.Duration(attempt-2)*r.policy.Increment
	if d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	return d
}
