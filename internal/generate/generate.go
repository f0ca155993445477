// Package generate submits assembled prompts to the language model, adding
// the reliability layer the raw provider lacks: per-call timeouts, bounded
// retry with exponential backoff, rate limiting, and a circuit breaker.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ragpipe/ragpipe/internal/provider"
)

// Config tunes the reliability behavior around generation calls.
type Config struct {
	MaxRetries        int           // retry attempts after the first call
	InitialInterval   time.Duration // first backoff delay
	MaxInterval       time.Duration // backoff ceiling
	Timeout           time.Duration // per-attempt deadline
	RequestsPerSecond float64       // upstream request rate cap
	Burst             int           // rate limiter burst size
	Breaker           CircuitBreakerConfig
}

// DefaultConfig returns defaults suited to LLM API calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialInterval:   500 * time.Millisecond,
		MaxInterval:       10 * time.Second,
		Timeout:           60 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// Client wraps a provider.Generator with retry, rate limiting, and circuit
// breaking. Safe for concurrent use.
type Client struct {
	generator provider.Generator
	breaker   *CircuitBreaker
	limiter   *rate.Limiter
	cfg       Config
	logger    *slog.Logger
}

// New creates a Client. Zero config fields take the DefaultConfig values.
func New(generator provider.Generator, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}

	return &Client{
		generator: generator,
		breaker:   NewCircuitBreaker(cfg.Breaker),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:       cfg,
		logger:    logger,
	}
}

// Generate runs the generation request and returns the full response text.
// When stream is non-nil it receives each text increment as it arrives.
//
// Retryable upstream failures (rate limit, timeout, network) are retried with
// exponential backoff; auth failures and caller cancellation are not. Once
// any increment has been streamed the call is never retried, so the caller
// sees each increment at most once.
func (c *Client) Generate(ctx context.Context, req provider.GenerateRequest, stream provider.StreamFunc) (string, error) {
	if err := c.breaker.Allow(); err != nil {
		return "", err
	}

	var (
		lastErr  error
		streamed atomic.Bool
	)
	delay := c.cfg.InitialInterval
	start := time.Now()

	wrapped := stream
	if stream != nil {
		wrapped = func(ctx context.Context, text string) error {
			streamed.Store(true)
			return stream(ctx, text)
		}
	}

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		// Rate limit each attempt, retries included.
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}

		text, err := c.attempt(ctx, req, wrapped)
		if err == nil {
			c.breaker.Success()
			c.logger.Debug("generation succeeded",
				"attempts", attempt+1, "elapsed", time.Since(start))
			return text, nil
		}

		// Caller cancellation is not an upstream failure.
		if ctx.Err() != nil {
			return "", fmt.Errorf("generation canceled: %w", ctx.Err())
		}

		c.breaker.Failure()
		lastErr = err

		var upstream *provider.UpstreamError
		retryable := errors.As(err, &upstream) && upstream.Retryable()
		if !retryable {
			return "", err
		}
		if streamed.Load() {
			// Partial output already reached the caller.
			return "", fmt.Errorf("generation failed mid-stream: %w", err)
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		c.logger.Debug("retrying generation",
			"attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("generation canceled during backoff: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.cfg.MaxInterval)
		}
	}

	return "", fmt.Errorf("generation failed after %d retries (elapsed %v): %w",
		c.cfg.MaxRetries, time.Since(start), lastErr)
}

// attempt runs one generation call under the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, req provider.GenerateRequest, stream provider.StreamFunc) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	text, err := c.generator.Generate(attemptCtx, req, stream)
	if err != nil {
		// A deadline on the attempt context, with the caller still live, is
		// an upstream timeout.
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return "", &provider.UpstreamError{
				Op:   "generate",
				Kind: provider.KindTimeout,
				Err:  err,
			}
		}
		return "", provider.Classify("generate", err)
	}
	return text, nil
}

// BreakerState exposes the circuit state for logging and health reporting.
func (c *Client) BreakerState() CircuitState {
	return c.breaker.State()
}
