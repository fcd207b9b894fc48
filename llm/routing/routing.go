// Package routing composes several llm.Providers behind the single-
// provider contract. A composite implements llm.Provider itself, so
// strategies nest: a Failover of RoundRobins is a valid candidate list.
//
// Candidate errors are classified before the walk advances: Transient and
// Client failures move on to the next candidate, Authentication stops the
// walk (another backend cannot repair a credential), and a canceled call
// stops it because the caller has gone.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/lgc202/ai-kit/llm"
)

// Strategy selects how a Plan's candidates are exercised.
type Strategy string

const (
	StrategyFailover   Strategy = "failover"
	StrategyRoundRobin Strategy = "round_robin"
)

// Plan is an ordered candidate list plus the strategy that walks it.
type Plan struct {
	Strategy   Strategy
	Candidates []llm.Provider
}

// New builds the composite a plan describes. An empty strategy means
// failover.
func New(plan Plan, opts ...Option) (llm.Provider, error) {
	switch plan.Strategy {
	case StrategyFailover, "":
		return NewFailover(plan.Candidates, opts...)
	case StrategyRoundRobin:
		return NewRoundRobin(plan.Candidates, opts...)
	default:
		return nil, fmt.Errorf("routing: unknown strategy %q", plan.Strategy)
	}
}

// Error is returned when every exercised candidate failed. It wraps the
// last candidate's error and reports how many were tried.
type Error struct {
	Strategy string
	Tried    int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("routing %s: %d candidates tried: %v", e.Strategy, e.Tried, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Option customizes a composite.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var errNoCandidates = errors.New("routing: at least one candidate is required")

func candidateNames(candidates []llm.Provider) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name()
	}
	return names
}

// advances reports whether the walk should move to the next candidate
// after err.
func advances(err error) bool {
	if le, ok := llm.AsLLMError(err); ok && le.Kind == llm.ErrKindCanceled {
		return false
	}
	switch llm.ClassOf(err) {
	case llm.ClassTransient, llm.ClassClient:
		return true
	default:
		return false
	}
}

// exercise walks candidates in the given order, returning the first
// success. Exhaustion returns the last error tagged with the number of
// candidates tried; a non-advancing error is returned as-is.
func exercise[T any](ctx context.Context, name string, logger *slog.Logger, candidates []llm.Provider, order []int, call func(llm.Provider) (T, error)) (T, error) {
	var zero T
	var lastErr error
	tried := 0

	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			break
		}
		c := candidates[idx]
		v, err := call(c)
		if err == nil {
			return v, nil
		}
		tried++
		lastErr = err
		if !advances(err) {
			return zero, err
		}
		logger.Warn("routing candidate failed",
			"strategy", name, "candidate", c.Name(), "error", err)
	}

	if lastErr == nil {
		lastErr = llm.ClassifyTransport(name, ctx.Err())
	}
	return zero, &Error{Strategy: name, Tried: tried, Err: lastErr}
}

// unionModels merges the candidates' model lists, deduplicated and
// sorted. Candidates that fail to list are skipped unless all fail.
func unionModels(ctx context.Context, candidates []llm.Provider) ([]string, error) {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	listed := false
	var lastErr error

	for _, c := range candidates {
		models, err := c.ListModels(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		listed = true
		for _, m := range models {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	if !listed && lastErr != nil {
		return nil, lastErr
	}
	sort.Strings(out)
	return out, nil
}
