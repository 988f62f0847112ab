package mistral

import (
	"context"
	"math/rand"
	"time"

	"dococr/internal/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second

	maxJitter = time.Second
)

// Retrier re-runs a call while it fails with a rate-limit signal, sleeping
// BaseDelay*2^attempt plus a random jitter below one second in between.
// Any other failure is returned at once.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration

	// Jitter and Sleep are replaceable for tests.
	Jitter func() time.Duration
	Sleep  func(ctx context.Context, d time.Duration) error

	Recorder Recorder
}

// NewRetrier returns a Retrier, using the defaults for a negative retry count
// or a non-positive delay.
func NewRetrier(maxRetries int, baseDelay time.Duration) *Retrier {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{MaxRetries: maxRetries, BaseDelay: baseDelay}
}

// Do calls fn up to MaxRetries+1 times. When every attempt was rate limited
// the result is a *RateLimitError.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	log := logger.WithComponent("mistral")
	maxAttempts := r.MaxRetries + 1

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRateLimited(err) {
			return err
		}
		if attempt+1 >= maxAttempts {
			return &RateLimitError{Operation: operation, Attempts: attempt + 1, Err: err}
		}

		delay := r.delay(attempt)
		log.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Int64("delay_ms", delay.Milliseconds()).
			Msg("Rate limited, backing off")
		if r.Recorder != nil {
			r.Recorder.RateLimitRetry(operation)
		}

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (r *Retrier) delay(attempt int) time.Duration {
	jitter := r.Jitter
	if jitter == nil {
		jitter = randomJitter
	}
	return r.BaseDelay<<attempt + jitter()
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func randomJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(maxJitter)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
