package routing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lgc202/ai-kit/llm"
)

// Failover tries candidates in declared order and returns the first
// success.
type Failover struct {
	name       string
	candidates []llm.Provider
	logger     *slog.Logger
}

var _ llm.Provider = (*Failover)(nil)

// NewFailover builds a sequential failover over candidates.
func NewFailover(candidates []llm.Provider, opts ...Option) (*Failover, error) {
	if len(candidates) == 0 {
		return nil, errNoCandidates
	}
	o := newOptions(opts)
	return &Failover{
		name:       "failover[" + strings.Join(candidateNames(candidates), ",") + "]",
		candidates: candidates,
		logger:     o.logger,
	}, nil
}

func (f *Failover) Name() string { return f.name }

func (f *Failover) order() []int {
	order := make([]int, len(f.candidates))
	for i := range order {
		order[i] = i
	}
	return order
}

func (f *Failover) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	return exercise(ctx, f.name, f.logger, f.candidates, f.order(), func(c llm.Provider) (llm.ChatResponse, error) {
		return c.Chat(ctx, req)
	})
}

func (f *Failover) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	return exercise(ctx, f.name, f.logger, f.candidates, f.order(), func(c llm.Provider) (llm.Stream, error) {
		return c.ChatStream(ctx, req)
	})
}

func (f *Failover) ListModels(ctx context.Context) ([]string, error) {
	return unionModels(ctx, f.candidates)
}
