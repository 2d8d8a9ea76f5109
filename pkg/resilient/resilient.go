// Package resilient wraps outbound calls to external registries with failure
// classification, retry with exponential backoff and jitter, and call logging.
package resilient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/finref/refdataapi/pkg/utils/zaplogger"
)

// Classification buckets an outbound-call failure for retry decisions.
type Classification string

const (
	ClassRateLimited        Classification = "RATE_LIMITED"
	ClassTransientServer    Classification = "TRANSIENT_SERVER"
	ClassTransientTransport Classification = "TRANSIENT_TRANSPORT"
	ClassNonRetryable       Classification = "NON_RETRYABLE"
)

// Operation performs one network request.
type Operation func(ctx context.Context) error

// StatusError is an HTTP failure carrying the response status code so the
// client can classify it.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// ExhaustedError is raised when all retry attempts are spent. It preserves the
// classification of the last underlying failure.
type ExhaustedError struct {
	Name     string
	Attempts int
	Class    Classification
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts (%s): %v", e.Name, e.Attempts, e.Class, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Config holds the retry policy for a client.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
	Jitter        float64 // fractional, 0.2 means +/-20%, 0 disables
	RetryStatuses []int
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      60 * time.Second,
		Jitter:        0.2,
		RetryStatuses: []int{500, 502, 503, 504},
	}
}

// Client retries transient failures with exponential backoff. It holds no
// mutable state, so concurrent callers keep independent attempt counters.
type Client struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a client with the given config, filling zero fields from the
// defaults.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.RetryStatuses == nil {
		cfg.RetryStatuses = def.RetryStatuses
	}
	return &Client{cfg: cfg, sleep: sleepCtx}
}

// Call runs op, retrying rate-limited and transient failures up to the
// configured attempt count. Non-retryable failures propagate immediately.
// The backoff sleep honors ctx cancellation and holds no locks.
func (c *Client) Call(ctx context.Context, name string, op Operation) error {
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			zaplogger.Info("external call succeeded", zaplogger.Fields{
				"call":     name,
				"attempt":  attempt,
				"duration": time.Since(start).String(),
			})
			return nil
		}

		class := c.Classify(err)
		lastErr = err

		if class == ClassNonRetryable {
			zaplogger.Error("external call failed", zaplogger.Fields{
				"call":           name,
				"attempt":        attempt,
				"classification": string(class),
				"duration":       time.Since(start).String(),
				"error":          err.Error(),
			})
			return err
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.Delay(attempt)
		zaplogger.Warn("external call failed, retrying", zaplogger.Fields{
			"call":           name,
			"attempt":        attempt,
			"classification": string(class),
			"delay":          delay.String(),
			"error":          err.Error(),
		})
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}

	exhausted := &ExhaustedError{
		Name:     name,
		Attempts: c.cfg.MaxAttempts,
		Class:    c.Classify(lastErr),
		Last:     lastErr,
	}
	zaplogger.Error("external call exhausted retries", zaplogger.Fields{
		"call":           name,
		"attempts":       exhausted.Attempts,
		"classification": string(exhausted.Class),
		"duration":       time.Since(start).String(),
		"error":          lastErr.Error(),
	})
	return exhausted
}

// Delay returns the backoff delay before the attempt following `attempt`,
// with jitter applied when configured. MaxDelay bounds the final delay, so
// jitter never pushes past the cap.
func (c *Client) Delay(attempt int) time.Duration {
	d := float64(c.cfg.InitialDelay) * math.Pow(c.cfg.BackoffFactor, float64(attempt-1))
	if c.cfg.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*c.cfg.Jitter
	}
	if d > float64(c.cfg.MaxDelay) {
		d = float64(c.cfg.MaxDelay)
	}
	return time.Duration(d)
}

// Classify maps an error to its retry classification.
func (c *Client) Classify(err error) Classification {
	if err == nil {
		return ClassNonRetryable
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == 429 {
			return ClassRateLimited
		}
		for _, code := range c.cfg.RetryStatuses {
			if statusErr.StatusCode == code {
				return ClassTransientServer
			}
		}
		return ClassNonRetryable
	}

	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return ClassRateLimited
	}

	// ctx cancellation is the caller giving up, not a transient failure
	if errors.Is(err, context.Canceled) {
		return ClassNonRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransientTransport
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransientTransport
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassTransientTransport
	}

	return ClassNonRetryable
}

// IsExhausted reports whether err is a retries-exhausted failure and returns
// the preserved classification of its last underlying error.
func IsExhausted(err error) (Classification, bool) {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return ex.Class, true
	}
	return "", false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
