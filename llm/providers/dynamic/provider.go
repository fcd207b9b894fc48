// Package dynamic implements a manifest-driven llm.Provider.
//
// Unlike the per-vendor adapters, dynamic carries no backend knowledge in
// code: endpoint, auth, parameter mapping, response extraction and stream
// decoding are all read from a manifest.Provider entry. Adding a backend is
// a manifest edit, not a code change.
package dynamic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/lgc202/ai-kit/httpx"
	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/manifest"
	"github.com/lgc202/ai-kit/metrics"
	"github.com/lgc202/ai-kit/version"
)

const defaultRequestTimeout = 30 * time.Second

// Provider talks to one manifest-described backend.
type Provider struct {
	id   string
	spec *manifest.Provider
	man  *manifest.Manifest

	model      string
	credential string
	timeout    time.Duration

	httpc  *httpx.Client
	logger *slog.Logger
	met    *metrics.Metrics
}

var _ llm.Provider = (*Provider)(nil)

type Option func(*Provider) error

// WithCredential overrides the credential read from the provider's
// configured environment variable.
func WithCredential(credential string) Option {
	return func(p *Provider) error {
		p.credential = credential
		return nil
	}
}

// WithHTTPClient replaces the default transport. The client's base URL must
// already point at the backend.
func WithHTTPClient(c *httpx.Client) Option {
	return func(p *Provider) error {
		p.httpc = c
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) error {
		p.met = m
		return nil
	}
}

// WithRequestTimeout bounds each non-streaming call. Streaming calls are
// bounded by ctx only.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Provider) error {
		p.timeout = d
		return nil
	}
}

// WithDefaultModel sets the catalog key or model ID used when a request
// leaves Model empty.
func WithDefaultModel(model string) Option {
	return func(p *Provider) error {
		p.model = model
		return nil
	}
}

// New builds a Provider for man.Providers[providerID].
//
// The credential is read from the provider's auth env var unless
// WithCredential overrides it; a missing credential is a config error so
// misconfiguration surfaces at construction, not on the first call.
func New(man *manifest.Manifest, providerID string, opts ...Option) (*Provider, error) {
	if man == nil {
		return nil, llm.NewError(providerID, llm.ErrKindConfig, "nil manifest")
	}
	spec := man.Providers[providerID]
	if spec == nil {
		return nil, llm.NewError(providerID, llm.ErrKindConfig,
			fmt.Sprintf("provider %q not in manifest", providerID))
	}

	p := &Provider{
		id:         providerID,
		spec:       spec,
		man:        man,
		timeout:    defaultRequestTimeout,
		credential: os.Getenv(spec.Auth.CredentialEnv()),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.credential == "" {
		return nil, llm.NewError(providerID, llm.ErrKindConfig,
			fmt.Sprintf("credential env %s is empty", spec.Auth.CredentialEnv()))
	}
	if p.httpc == nil {
		// Client timeout stays 0 so streaming responses are not cut off
		// mid-body; non-streaming calls get a per-request deadline.
		c, err := httpx.New(
			httpx.WithBaseURL(p.spec.ResolveBaseURL()),
			httpx.WithTimeout(0),
			httpx.WithRetry(httpx.RetryConfig{MaxAttempts: 1}),
			httpx.WithUserAgent("ai-kit/"+version.Get().ShortString()),
		)
		if err != nil {
			return nil, llm.WrapError(providerID, llm.ErrKindConfig, err)
		}
		p.httpc = c
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

func (p *Provider) Name() string { return p.id }

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.chat(ctx, req)
	if err != nil {
		p.met.RequestObserved(p.id, "error", time.Since(start))
		return llm.ChatResponse{}, err
	}
	p.met.RequestObserved(p.id, "success", time.Since(start))
	return resp, nil
}

func (p *Provider) chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	modelID, err := p.resolveModel(req.Model)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	payload, err := p.buildPayload(req, modelID, false)
	if err != nil {
		return llm.ChatResponse{}, err
	}

	opts := []httpx.RequestOption{
		httpx.WithJSON(payload),
		httpx.WithHeader("Accept", "application/json"),
		httpx.WithRequestTimeout(p.timeout),
	}
	opts = append(opts, p.authOptions(req)...)

	hreq, err := p.httpc.NewRequest(ctx, http.MethodPost, p.spec.ChatPath(modelID), opts...)
	if err != nil {
		return llm.ChatResponse{}, llm.WrapError(p.id, llm.ErrKindBadRequest, err)
	}

	p.logger.Debug("chat request", "provider", p.id, "model", modelID)

	hresp, err := p.httpc.DoStatus(hreq)
	if err != nil {
		return llm.ChatResponse{}, p.mapError(err)
	}
	defer hresp.Body.Close()

	raw, err := io.ReadAll(hresp.Body)
	if err != nil {
		return llm.ChatResponse{}, llm.WrapError(p.id, llm.ErrKindNetwork, err)
	}
	return p.parseResponse(raw)
}

func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	modelID, err := p.resolveModel(req.Model)
	if err != nil {
		return nil, err
	}
	payload, err := p.buildPayload(req, modelID, true)
	if err != nil {
		return nil, err
	}

	opts := []httpx.RequestOption{
		httpx.WithJSON(payload),
		httpx.WithHeader("Accept", "text/event-stream"),
	}
	opts = append(opts, p.authOptions(req)...)

	hreq, err := p.httpc.NewRequest(ctx, http.MethodPost, p.spec.StreamPath(modelID), opts...)
	if err != nil {
		return nil, llm.WrapError(p.id, llm.ErrKindBadRequest, err)
	}

	p.logger.Debug("chat stream request", "provider", p.id, "model", modelID)

	// Do (not DoStatus) so the body stays open for incremental reads; a
	// non-2xx status is drained and classified here instead.
	hresp, err := p.httpc.Do(hreq)
	if err != nil {
		return nil, p.mapError(err)
	}
	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(hresp.Body, 64<<10))
		hresp.Body.Close()
		lerr := llm.ClassifyHTTP(p.id, hresp.StatusCode, body)
		if ra := retryAfter(hresp.Header); ra > 0 {
			lerr.RetryAfter = ra
		}
		return nil, lerr
	}

	return newStream(p.id, hresp, &p.spec.Streaming, p.met), nil
}

// ListModels returns the catalog keys bound to this provider, sorted.
// Disabled models are excluded.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for key, m := range p.man.Models {
		if m.Provider != p.id || m.Status == manifest.StatusDisabled {
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

// resolveModel maps a catalog key to the backend model ID. Names that are
// not catalog keys pass through untouched so callers can address backend
// models the manifest does not list.
func (p *Provider) resolveModel(model string) (string, error) {
	if model == "" {
		model = p.model
	}
	if model == "" {
		return "", llm.NewError(p.id, llm.ErrKindBadRequest, "model is required")
	}
	if m := p.man.Models[model]; m != nil && m.Provider == p.id && m.ModelID != "" {
		return m.ModelID, nil
	}
	return model, nil
}

func (p *Provider) authOptions(req llm.ChatRequest) []httpx.RequestOption {
	var opts []httpx.RequestOption
	switch p.spec.Auth.Type {
	case manifest.AuthBearer:
		opts = append(opts, httpx.WithBearerToken(p.credential))
	case manifest.AuthAPIKey:
		name := p.spec.Auth.HeaderName
		if name == "" {
			name = "X-Api-Key"
		}
		opts = append(opts, httpx.WithHeader(name, p.credential))
	case manifest.AuthQueryParam:
		opts = append(opts, httpx.WithQueryParam(p.spec.Auth.ParamName, p.credential))
	}
	for _, h := range p.spec.Auth.ExtraHeaders {
		opts = append(opts, httpx.WithHeader(h.Name, h.Value))
	}
	if req.Transport != nil {
		for key, vals := range req.Transport.Headers {
			for _, v := range vals {
				opts = append(opts, httpx.WithHeader(key, v))
			}
		}
	}
	return opts
}

// mapError converts transport-level failures to LLMErrors. HTTP statuses are
// classified from the recorded body; everything else goes through the
// transport classifier.
func (p *Provider) mapError(err error) error {
	if he, ok := httpx.AsError(err); ok {
		if he.StatusCode > 0 {
			lerr := llm.ClassifyHTTP(p.id, he.StatusCode, he.RawBody)
			if he.RetryAfter > 0 {
				lerr.RetryAfter = he.RetryAfter
			}
			return lerr
		}
		if he.Cause != nil {
			return llm.ClassifyTransport(p.id, he.Cause)
		}
	}
	return llm.ClassifyTransport(p.id, err)
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
