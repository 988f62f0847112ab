package mistral_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dococr/internal/mistral"
)

type recordingSleep struct {
	delays []time.Duration
}

func (s *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

type countingRecorder struct {
	mu       sync.Mutex
	retries  map[string]int
	outcomes map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{retries: map[string]int{}, outcomes: map[string]int{}}
}

func (r *countingRecorder) UpstreamRequest(call, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[call+"/"+outcome]++
}

func (r *countingRecorder) RateLimitRetry(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries[call]++
}

func newTestRetrier(s *recordingSleep) *mistral.Retrier {
	r := mistral.NewRetrier(3, time.Second)
	r.Jitter = func() time.Duration { return 250 * time.Millisecond }
	r.Sleep = s.sleep
	return r
}

func rateLimited() error {
	return &mistral.HTTPStatusError{Operation: "ocr", StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"}
}

func TestRetrier_ExhaustsOnRateLimit(t *testing.T) {
	s := &recordingSleep{}
	r := newTestRetrier(s)
	rec := newCountingRecorder()
	r.Recorder = rec

	attempts := 0
	err := r.Do(context.Background(), "ocr", func(context.Context) error {
		attempts++
		return rateLimited()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, mistral.ErrRateLimitExceeded)
	assert.Contains(t, err.Error(), "consider upgrading your Mistral API plan")
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 3, rec.retries["ocr"])

	var rlErr *mistral.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 4, rlErr.Attempts)

	want := []time.Duration{
		1250 * time.Millisecond,
		2250 * time.Millisecond,
		4250 * time.Millisecond,
	}
	assert.Equal(t, want, s.delays)
	for i := 1; i < len(s.delays); i++ {
		assert.GreaterOrEqual(t, s.delays[i], s.delays[i-1])
	}
}

func TestRetrier_RecoversAfterRateLimit(t *testing.T) {
	s := &recordingSleep{}
	r := newTestRetrier(s)

	attempts := 0
	err := r.Do(context.Background(), "upload", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("request failed with status code 429")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, s.delays, 2)
}

func TestRetrier_OtherErrorsAreNotRetried(t *testing.T) {
	s := &recordingSleep{}
	r := newTestRetrier(s)

	boom := &mistral.HTTPStatusError{Operation: "ocr", StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error"}
	attempts := 0
	err := r.Do(context.Background(), "ocr", func(context.Context) error {
		attempts++
		return boom
	})

	assert.Same(t, boom, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, s.delays)
}

func TestRetrier_ZeroRetries(t *testing.T) {
	s := &recordingSleep{}
	r := newTestRetrier(s)
	r.MaxRetries = 0

	attempts := 0
	err := r.Do(context.Background(), "ocr", func(context.Context) error {
		attempts++
		return rateLimited()
	})

	assert.ErrorIs(t, err, mistral.ErrRateLimitExceeded)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, s.delays)
}

func TestRetrier_DefaultSleepHonoursContext(t *testing.T) {
	r := mistral.NewRetrier(3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	err := r.Do(ctx, "ocr", func(context.Context) error {
		cancel()
		return rateLimited()
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, mistral.IsRateLimited(rateLimited()))
	assert.True(t, mistral.IsRateLimited(errors.New("upstream said 429")))
	assert.True(t, mistral.IsRateLimited(fmt.Errorf("signed url: %w", rateLimited())))

	notFound := &mistral.HTTPStatusError{
		Operation:  "signed_url",
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
		Body:       `{"message":"file 7f3a4291-aa not found"}`,
	}
	assert.Contains(t, notFound.Error(), "429")
	assert.False(t, mistral.IsRateLimited(notFound))
	assert.False(t, mistral.IsRateLimited(fmt.Errorf("signed url: %w", notFound)))
	assert.False(t, mistral.IsRateLimited(errors.New("connection reset")))
	assert.False(t, mistral.IsRateLimited(nil))
}
