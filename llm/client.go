package llm

import "context"

// Client is a provider-agnostic LLM SDK entrypoint.
//
// It is a thin veneer over a Provider (direct adapter, resilience wrapper, or
// routing composite) that fills in per-client defaults before each call.
type Client struct {
	provider     Provider
	defaultModel string
}

type ClientOption func(*Client)

// WithDefaultModel sets the model used when a request leaves Model empty.
func WithDefaultModel(model string) ClientOption {
	return func(c *Client) { c.defaultModel = model }
}

func New(provider Provider, opts ...ClientOption) *Client {
	c := &Client{provider: provider}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

var _ Provider = (*Client)(nil)

func (c *Client) Name() string { return c.provider.Name() }

func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return c.provider.Chat(ctx, c.withDefaults(req))
}

func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	return c.provider.ChatStream(ctx, c.withDefaults(req))
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return c.provider.ListModels(ctx)
}

// ChatText is a convenience for single-prompt calls: it sends one user
// message and returns the first choice's text content.
func (c *Client) ChatText(ctx context.Context, prompt string, opts ...RequestOption) (string, error) {
	req := BuildChatRequest(c.defaultModel, []Message{User(prompt)}, opts...)
	resp, err := c.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.FirstText(), nil
}

func (c *Client) Provider() Provider { return c.provider }

func (c *Client) withDefaults(req ChatRequest) ChatRequest {
	if req.Model == "" {
		req.Model = c.defaultModel
	}
	return req
}
