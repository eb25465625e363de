// Package httpx provides HTTP client construction and a bounded retry
// policy for calls against provider REST APIs.
package httpx

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"time"

	"triggerhub/internal/common/logging"
)

// ClientConfig holds HTTP client configuration
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Transport           http.RoundTripper
}

// DefaultClientConfig returns default HTTP client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// ClientOption is a function that modifies ClientConfig
type ClientOption func(*ClientConfig)

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithTransport sets a custom transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *ClientConfig) {
		c.Transport = transport
	}
}

// NewClient creates a new HTTP client with the given options
func NewClient(opts ...ClientOption) *http.Client {
	cfg := DefaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// RetryConfig controls retry behavior for idempotent requests
type RetryConfig struct {
	MaxAttempts          int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	BackoffFactor        float64
	JitterFactor         float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns sensible defaults for provider API retries
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
		RetryableStatusCodes: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (c *RetryConfig) isRetryableStatus(code int) bool {
	for _, candidate := range c.RetryableStatusCodes {
		if candidate == code {
			return true
		}
	}
	return false
}

func (c *RetryConfig) delayFor(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.BackoffFactor
	}
	if max := float64(c.MaxDelay); delay > max {
		delay = max
	}
	if c.JitterFactor > 0 {
		delay += delay * c.JitterFactor * rand.Float64()
	}
	return time.Duration(delay)
}

// Doer executes HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoIdempotent executes a request with bounded retry and backoff. The
// caller asserts the request is safe to repeat; network errors and
// retryable status codes are retried until MaxAttempts is exhausted.
// Non-idempotent calls (webhook creation and the like) must go through
// client.Do directly instead.
func DoIdempotent(ctx context.Context, client Doer, req *http.Request, cfg *RetryConfig) (*http.Response, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	// Buffer the body so the request can be replayed.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.delayFor(attempt - 1)):
			}
			logging.Debug("retrying idempotent request",
				logging.Field{Key: "url", Value: req.URL.String()},
				logging.Field{Key: "attempt", Value: attempt + 1},
			)
		}

		attemptReq := req.Clone(ctx)
		if bodyBytes != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := client.Do(attemptReq)
		if err != nil {
			lastErr = err
			continue
		}

		if cfg.isRetryableStatus(resp.StatusCode) && attempt < cfg.MaxAttempts-1 {
			resp.Body.Close()
			lastErr = nil
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}
