// Package retry provides bounded retry with pluggable backoff for asset fetches.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/assetflow/assetflow/pkg/errors"
)

// Strategy selects the backoff schedule between attempts.
type Strategy string

const (
	// StrategyExponential grows the delay as base * 2^retry.
	StrategyExponential Strategy = "exponential"
	// StrategyFibonacci grows the delay as base * fib(retry).
	StrategyFibonacci Strategy = "fibonacci"
)

// Config defines retry behavior configuration.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `yaml:"base_delay" json:"base_delay"`

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Strategy selects the backoff schedule.
	Strategy Strategy `yaml:"strategy" json:"strategy"`

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool `yaml:"jitter" json:"jitter"`

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`
}

// DefaultConfig returns a sensible default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Strategy:   StrategyExponential,
		Jitter:     true,
	}
}

// Retryer wraps one logical fetch with bounded retries and backoff.
type Retryer struct {
	config Config
}

// New creates a new Retryer with the given configuration.
func New(config Config) *Retryer {
	// Apply defaults for zero values
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}
	if config.Strategy != StrategyFibonacci {
		config.Strategy = StrategyExponential
	}

	return &Retryer{config: config}
}

// Do executes the given function with retry logic.
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(ctx context.Context) error {
		return fn()
	})
}

// DoWithContext executes fn with retry logic and context support. Only
// retryable errors trigger another attempt; non-retryable errors fail
// fast. On exhausting retries the last error is returned wrapped as
// RETRY_EXHAUSTED, tagged with the number of attempts made.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	maxAttempts := r.config.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return errors.NewError(errors.ErrCodeOperationCanceled, "fetch canceled").
				WithAttempts(attempt - 1).WithCause(ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !errors.IsRetryable(err) {
			return err
		}

		if attempt < maxAttempts {
			delay := r.delayFor(attempt)

			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return errors.NewError(errors.ErrCodeOperationCanceled, "fetch canceled during backoff").
					WithAttempts(attempt).WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return errors.NewError(errors.ErrCodeRetryExhausted, "retries exhausted").
		WithAttempts(maxAttempts).WithCause(lastErr)
}

// delayFor calculates the backoff delay before retry number `retry` (1-based).
func (r *Retryer) delayFor(retry int) time.Duration {
	var delay float64
	switch r.config.Strategy {
	case StrategyFibonacci:
		delay = float64(r.config.BaseDelay) * float64(fib(retry))
	default:
		delay = float64(r.config.BaseDelay) * math.Pow(2, float64(retry-1))
	}

	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}

	if r.config.Jitter {
		// ±20% to spread simultaneous retries
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
		if delay > float64(r.config.MaxDelay) {
			delay = float64(r.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// fib returns the nth Fibonacci number (fib(1) = fib(2) = 1), saturating
// to avoid overflow on pathological retry counts.
func fib(n int) int64 {
	if n <= 2 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 3; i <= n; i++ {
		next := a + b
		if next < b { // overflow
			return math.MaxInt64
		}
		a, b = b, next
	}
	return b
}

// WithMaxRetries returns a new Retryer with a modified retry bound.
func (r *Retryer) WithMaxRetries(retries int) *Retryer {
	newConfig := r.config
	newConfig.MaxRetries = retries
	return New(newConfig)
}

// WithOnRetry returns a new Retryer with a retry callback.
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	newConfig := r.config
	newConfig.OnRetry = callback
	return New(newConfig)
}
