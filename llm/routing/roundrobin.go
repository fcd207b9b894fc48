package routing

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/llm/resilience"
)

// RoundRobin rotates the starting candidate across successive top-level
// calls, so load spreads even when every candidate is healthy. Within one
// call it walks the rotated order with failover semantics.
//
// Candidates whose circuit breaker reports Open are skipped while a
// healthy candidate exists; when every candidate is open the full rotated
// order is used, so breakers still receive their trial calls.
type RoundRobin struct {
	name       string
	candidates []llm.Provider
	logger     *slog.Logger
	cursor     atomic.Uint64
}

var _ llm.Provider = (*RoundRobin)(nil)

// breakerStater is implemented by resilience-wrapped candidates.
type breakerStater interface {
	BreakerState() resilience.State
}

// NewRoundRobin builds a rotating composite over candidates.
func NewRoundRobin(candidates []llm.Provider, opts ...Option) (*RoundRobin, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}
	o := newOptions(opts)
	return &RoundRobin{
		name:       "round_robin[" + strings.Join(candidateNames(candidates), ",") + "]",
		candidates: candidates,
		logger:     o.logger,
	}, nil
}

func (r *RoundRobin) Name() string { return r.name }

// order returns the candidate indices for one call: rotated by the call
// cursor, with open-breaker candidates dropped when possible. Retries
// inside a candidate's resilience pipeline do not advance the cursor;
// only top-level calls do.
func (r *RoundRobin) order() []int {
	n := len(r.candidates)
	start := int((r.cursor.Add(1) - 1) % uint64(n))

	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		order = append(order, (start+i)%n)
	}

	healthy := make([]int, 0, n)
	for _, idx := range order {
		if bs, ok := r.candidates[idx].(breakerStater); ok && bs.BreakerState() == resilience.StateOpen {
			continue
		}
		healthy = append(healthy, idx)
	}
	if len(healthy) == 0 {
		return order
	}
	return healthy
}

func (r *RoundRobin) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	return exercise(ctx, r.name, r.logger, r.candidates, r.order(), func(c llm.Provider) (llm.ChatResponse, error) {
		return c.Chat(ctx, req)
	})
}

func (r *RoundRobin) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	return exercise(ctx, r.name, r.logger, r.candidates, r.order(), func(c llm.Provider) (llm.Stream, error) {
		return c.ChatStream(ctx, req)
	})
}

func (r *RoundRobin) ListModels(ctx context.Context) ([]string, error) {
	return unionModels(ctx, r.candidates)
}
