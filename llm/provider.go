package llm

import "context"

// Provider is the interface an LLM backend must implement.
//
// Implementations are expected to:
// - treat the request as read-only
// - return an LLMError (or wrap one) for provider/HTTP errors
// - honor ctx cancellation
//
// Routing composites (failover, round-robin) and the resilience wrapper
// implement Provider themselves, so strategies can nest and a routed,
// retried call looks to the caller exactly like a direct one.
type Provider interface {
	// Name identifies the provider in errors, logs, and metrics.
	Name() string

	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)

	// ListModels returns the model names this provider can serve.
	ListModels(ctx context.Context) ([]string, error)
}
