// Package resilience wraps an llm.Provider with an attempt timeout,
// classified retries, and a circuit breaker.
//
// The layering is fixed: the timeout bounds each individual attempt, the
// retry loop wraps only the transport attempt, and the breaker gates the
// whole wrapped call. A call that exhausts its retries therefore counts
// as a single breaker failure, however many attempts it made.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lgc202/ai-kit/httpx"
	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/metrics"
)

// RetryConfig controls the retry loop around a single provider call.
// Eligibility is decided by error class alone: only Transient errors
// (rate limit, 5xx, timeout, network) are retried.
type RetryConfig struct {
	// MaxAttempts includes the initial attempt. If <= 1, retries are
	// disabled.
	MaxAttempts int

	// Backoff computes the sleep duration before the next retry.
	// If nil, httpx.DefaultBackoff() is used.
	Backoff httpx.Backoff

	// RespectRetryAfter uses the backend's retry hint (Retry-After) as
	// the backoff when the failed attempt carried one.
	RespectRetryAfter bool

	// MaxRetryAfter caps the backend's hint. If zero, no cap is applied.
	MaxRetryAfter time.Duration
}

// DefaultRetryConfig is the starting point for tuning; adjust fields
// rather than building a RetryConfig from scratch.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		Backoff:           httpx.DefaultBackoff(),
		RespectRetryAfter: true,
		MaxRetryAfter:     30 * time.Second,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c == (RetryConfig{}) {
		return DefaultRetryConfig()
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Backoff == nil {
		c.Backoff = httpx.DefaultBackoff()
	}
	return c
}

// Config assembles the pipeline for one wrapped provider.
type Config struct {
	// AttemptTimeout bounds each individual attempt. Zero leaves each
	// attempt bounded by the caller's context and the adapter's own
	// request timeout. Streaming calls ignore it, since cancelling the
	// attempt context would tear down the stream body.
	AttemptTimeout time.Duration

	Retry   RetryConfig
	Breaker BreakerConfig
}

func (c Config) withDefaults() Config {
	c.Retry = c.Retry.withDefaults()
	c.Breaker = c.Breaker.withDefaults()
	return c
}

// Error is the terminal error of a wrapped call. It reports how many
// attempts ran and the breaker state the call was admitted in (StateOpen
// when the breaker refused the call outright, with zero attempts).
type Error struct {
	Provider string
	Attempts int
	State    State
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resilience %s: %d attempts (breaker %s): %v", e.Provider, e.Attempts, e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider wraps an inner llm.Provider with the resilience pipeline.
// It implements llm.Provider itself, so routing composites can nest it.
type Provider struct {
	inner   llm.Provider
	cfg     Config
	breaker *Breaker
	logger  *slog.Logger
	met     *metrics.Metrics
}

var _ llm.Provider = (*Provider)(nil)

// Option customizes a wrapped provider.
type Option func(*Provider)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics collector. A nil collector records nothing.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) { p.met = m }
}

// Wrap builds the resilience pipeline around inner. The zero Config gets
// DefaultRetryConfig and default breaker thresholds.
func Wrap(inner llm.Provider, cfg Config, opts ...Option) *Provider {
	p := &Provider{
		inner:  inner,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.breaker = NewBreaker(p.cfg.Breaker)
	p.breaker.OnStateChange(func(s State) {
		p.met.BreakerStateChanged(inner.Name(), int(s))
		lvl := slog.LevelWarn
		if s == StateClosed {
			lvl = slog.LevelInfo
		}
		p.logger.Log(context.Background(), lvl, "circuit breaker state changed",
			"provider", inner.Name(), "state", s.String())
	})
	return p
}

// Name reports the wrapped provider's name. The pipeline is transparent
// in errors, logs, and metrics.
func (p *Provider) Name() string { return p.inner.Name() }

// BreakerState exposes the breaker for routing strategies that prefer
// healthy candidates.
func (p *Provider) BreakerState() State { return p.breaker.State() }

// Chat runs one gated call: the breaker admits it, the retry loop drives
// the attempts, and exactly one outcome is recorded back to the breaker.
// Failures are returned as *Error wrapping the last attempt's error.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := p.breaker.Allow(); err != nil {
		return llm.ChatResponse{}, p.refuse()
	}
	state := p.breaker.State()

	var resp llm.ChatResponse
	attempts, err := p.do(ctx, p.cfg.AttemptTimeout, func(actx context.Context) error {
		var cerr error
		resp, cerr = p.inner.Chat(actx, req)
		return cerr
	})
	p.breaker.Record(err)
	if err != nil {
		return llm.ChatResponse{}, &Error{Provider: p.Name(), Attempts: attempts, State: state, Err: err}
	}
	return resp, nil
}

// ChatStream gates and retries establishing the stream. The breaker
// records the establishment outcome; events already flowing do not feed
// back into it. The attempt timeout is not applied, since it would cancel
// the stream body after the deadline.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	if err := p.breaker.Allow(); err != nil {
		return nil, p.refuse()
	}
	state := p.breaker.State()

	var stream llm.Stream
	attempts, err := p.do(ctx, 0, func(actx context.Context) error {
		s, cerr := p.inner.ChatStream(actx, req)
		if cerr != nil {
			return cerr
		}
		stream = s
		return nil
	})
	p.breaker.Record(err)
	if err != nil {
		return nil, &Error{Provider: p.Name(), Attempts: attempts, State: state, Err: err}
	}
	return stream, nil
}

// ListModels delegates to the wrapped provider. Listing is served from
// the manifest catalog and carries no call-level resilience.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return p.inner.ListModels(ctx)
}

func (p *Provider) refuse() *Error {
	le := llm.WrapError(p.Name(), llm.ErrKindUnavailable, ErrOpen)
	return &Error{Provider: p.Name(), Attempts: 0, State: p.breaker.State(), Err: le}
}

// do runs call up to cfg.Retry.MaxAttempts times, sleeping between
// attempts, and returns how many attempts ran alongside the final error.
func (p *Provider) do(ctx context.Context, attemptTimeout time.Duration, call func(context.Context) error) (int, error) {
	rc := p.cfg.Retry
	attempts := 0
	var lastErr error

	for attempt := 1; attempt <= rc.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = llm.ClassifyTransport(p.Name(), err)
			}
			break
		}

		attempts++
		err := runAttempt(ctx, attemptTimeout, call)
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if attempt == rc.MaxAttempts || !llm.IsRetryable(err) {
			break
		}

		wait := rc.Backoff.Next(attempt)
		if rc.RespectRetryAfter {
			if le, ok := llm.AsLLMError(err); ok && le.RetryAfter > 0 {
				wait = le.RetryAfter
				if rc.MaxRetryAfter > 0 && wait > rc.MaxRetryAfter {
					wait = rc.MaxRetryAfter
				}
			}
		}

		p.met.RetryObserved(p.Name())
		p.logger.Debug("retrying provider call",
			"provider", p.Name(), "attempt", attempt, "wait", wait, "error", err)

		if err := sleep(ctx, wait); err != nil {
			// The caller gave up during backoff; the last attempt's
			// error is still the informative one.
			break
		}
	}
	return attempts, lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, call func(context.Context) error) error {
	if timeout <= 0 {
		return call(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(actx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
