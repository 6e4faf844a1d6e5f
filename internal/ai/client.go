package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
)

// RetryConfig holds retry behavior for completion calls.
type RetryConfig struct {
	MaxRetries        int           // Maximum number of retries (default: 3)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-request timeout (default: 60s)

	// Circuit breaker settings.
	FailureThreshold int           // Failures before opening circuit (default: 5)
	SuccessThreshold int           // Successes in half-open before closing (default: 2)
	OpenTimeout      time.Duration // How long to keep circuit open (default: 30s)

	MaxConcurrentCalls int // Maximum concurrent completion calls (default: 3, negative = unlimited)
}

// withDefaults fills each unset field from DefaultRetryConfig, leaving
// caller-set fields alone.
func (rc RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if rc.MaxRetries == 0 {
		rc.MaxRetries = def.MaxRetries
	}
	if rc.InitialBackoff == 0 {
		rc.InitialBackoff = def.InitialBackoff
	}
	if rc.MaxBackoff == 0 {
		rc.MaxBackoff = def.MaxBackoff
	}
	if rc.BackoffMultiplier == 0 {
		rc.BackoffMultiplier = def.BackoffMultiplier
	}
	if rc.Timeout == 0 {
		rc.Timeout = def.Timeout
	}
	if rc.FailureThreshold == 0 {
		rc.FailureThreshold = def.FailureThreshold
	}
	if rc.SuccessThreshold == 0 {
		rc.SuccessThreshold = def.SuccessThreshold
	}
	if rc.OpenTimeout == 0 {
		rc.OpenTimeout = def.OpenTimeout
	}
	if rc.MaxConcurrentCalls == 0 {
		rc.MaxConcurrentCalls = def.MaxConcurrentCalls
	}
	return rc
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:         3,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		BackoffMultiplier:  2.0,
		Timeout:            60 * time.Second,
		FailureThreshold:   5,
		SuccessThreshold:   2,
		OpenTimeout:        30 * time.Second,
		MaxConcurrentCalls: 3,
	}
}

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("completion circuit breaker is open")

// circuitState represents the state of the circuit breaker.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker blocks completion calls after repeated transport failures
// so a dead upstream fails fast instead of burning retries per event.
type circuitBreaker struct {
	mu sync.Mutex

	state            circuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

func newCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		state:            circuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

func (cb *circuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return nil
	case circuitOpen:
		if time.Since(cb.lastFailureTime) > cb.openTimeout {
			cb.state = circuitHalfOpen
			cb.successCount = 0
			return nil
		}
		return ErrCircuitOpen
	case circuitHalfOpen:
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		cb.failureCount = 0
	case circuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = circuitClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case circuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = circuitOpen
		}
	case circuitHalfOpen:
		cb.state = circuitOpen
		cb.successCount = 0
	}
}

// Client sends structured prompts to the Anthropic API. It is stateless per
// call apart from retry bookkeeping and safe for concurrent use.
type Client struct {
	api     *anthropic.Client
	model   string
	retry   RetryConfig
	breaker *circuitBreaker
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// ClientConfig holds completion client configuration.
type ClientConfig struct {
	APIKey string // Anthropic API key (required)
	Model  string // Model identifier (required)
	Retry  RetryConfig
	Logger *slog.Logger // Defaults to slog.Default()
}

// NewClient creates a new completion client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	retry := cfg.Retry.withDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))

	var sem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	return &Client{
		api:     &api,
		model:   cfg.Model,
		retry:   retry,
		breaker: newCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout),
		sem:     sem,
		logger:  logger,
	}, nil
}

// Complete sends a single-turn user prompt and returns the concatenated
// text blocks of the response. Transport failures are retried with
// exponential backoff; the returned error is transport-level only.
func (c *Client) Complete(ctx context.Context, operation, prompt string) (string, error) {
	var response *anthropic.Message
	err := c.withRetry(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := c.api.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: 4096,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("completion %s failed: %w", operation, err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// withRetry executes fn with backoff, circuit breaking, and the concurrency
// cap applied.
func (c *Client) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquiring completion slot for %s: %w", operation, err)
		}
		defer c.sem.Release(1)
	}

	var lastErr error
	backoff := c.retry.InitialBackoff

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := c.breaker.allow(); err != nil {
			return fmt.Errorf("%s blocked: %w", operation, err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			c.breaker.recordSuccess()
			if attempt > 0 {
				c.logger.Info("completion succeeded after retries",
					"operation", operation, "attempts", attempt+1)
			}
			return nil
		}

		lastErr = err

		if !isRetriable(err) {
			c.logger.Warn("completion failed with non-retriable error",
				"operation", operation, "error", err)
			return err
		}
		c.breaker.recordFailure()

		if attempt == c.retry.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", operation, ctx.Err())
		}

		c.logger.Debug("completion failed, retrying",
			"operation", operation, "attempt", attempt+1, "backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * c.retry.BackoffMultiplier)
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, c.retry.MaxRetries+1, lastErr)
}

// isRetriable reports whether an API error is transient.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()

	// Rate limits and server errors are retriable.
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return true
	}
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return true
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") {
		return true
	}

	// Remaining 4xx client errors won't succeed on retry.
	return false
}
