package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(&ClientConfig{Model: "claude-sonnet-4-5-20250929"})
	assert.Error(t, err, "missing API key should fail")

	_, err = NewClient(&ClientConfig{APIKey: "sk-test"})
	assert.Error(t, err, "missing model should fail")

	c, err := NewClient(&ClientConfig{APIKey: "sk-test", Model: "claude-sonnet-4-5-20250929"})
	require.NoError(t, err)
	assert.NotNil(t, c.breaker)
	assert.NotNil(t, c.sem, "default config caps concurrency")
}

func TestRetryConfig_PartialConfigKeepsSetFields(t *testing.T) {
	c, err := NewClient(&ClientConfig{
		APIKey: "sk-test",
		Model:  "m",
		Retry:  RetryConfig{MaxRetries: 5, Timeout: 10 * time.Second},
	})
	require.NoError(t, err)

	assert.Equal(t, 5, c.retry.MaxRetries, "caller-set fields survive defaulting")
	assert.Equal(t, 10*time.Second, c.retry.Timeout)
	assert.Equal(t, time.Second, c.retry.InitialBackoff, "unset fields take defaults")
	assert.Equal(t, 30*time.Second, c.retry.MaxBackoff)
	assert.Equal(t, 5, c.retry.FailureThreshold)
	assert.Equal(t, 3, c.retry.MaxConcurrentCalls)
	assert.NotNil(t, c.sem)
}

func TestRetryConfig_NegativeConcurrencyMeansUnlimited(t *testing.T) {
	c, err := NewClient(&ClientConfig{
		APIKey: "sk-test",
		Model:  "m",
		Retry:  RetryConfig{MaxConcurrentCalls: -1},
	})
	require.NoError(t, err)
	assert.Nil(t, c.sem)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := newCircuitBreaker(3, 2, 50*time.Millisecond)

	require.NoError(t, cb.allow())
	cb.recordFailure()
	cb.recordFailure()
	require.NoError(t, cb.allow(), "still closed below threshold")
	cb.recordFailure()

	assert.ErrorIs(t, cb.allow(), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := newCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.recordFailure()
	require.ErrorIs(t, cb.allow(), ErrCircuitOpen)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.allow(), "open timeout elapsed, trial call allowed")

	cb.recordSuccess()
	cb.recordSuccess()
	assert.NoError(t, cb.allow(), "closed after success threshold")
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := newCircuitBreaker(1, 2, 10*time.Millisecond)

	cb.recordFailure()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.allow())

	cb.recordFailure()
	assert.ErrorIs(t, cb.allow(), ErrCircuitOpen)
}

func TestWithRetry_NonRetriableStopsImmediately(t *testing.T) {
	c, err := NewClient(&ClientConfig{APIKey: "sk-test", Model: "m"})
	require.NoError(t, err)

	calls := 0
	err = c.withRetry(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("401 unauthorized")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "auth errors must not be retried")
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	c, err := NewClient(&ClientConfig{APIKey: "sk-test", Model: "m", Retry: cfg})
	require.NoError(t, err)

	calls := 0
	err = c.withRetry(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 2
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	c, err := NewClient(&ClientConfig{APIKey: "sk-test", Model: "m", Retry: cfg})
	require.NoError(t, err)

	calls := 0
	err = c.withRetry(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		err       error
		retriable bool
	}{
		{nil, false},
		{errors.New("429 too many requests"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("500 internal server error"), true},
		{errors.New("bad gateway"), true},
		{errors.New("connection refused"), true},
		{context.DeadlineExceeded, true},
		{errors.New("400 bad request"), false},
		{errors.New("401 unauthorized"), false},
		{errors.New("invalid model name"), false},
	}
	for _, tt := range tests {
		if got := isRetriable(tt.err); got != tt.retriable {
			t.Errorf("isRetriable(%v) = %v, want %v", tt.err, got, tt.retriable)
		}
	}
}
