package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// Manifest is the root of the provider description document: the standard
// parameter schema shared by every backend, the provider wire descriptions,
// and the model catalog. A Manifest is immutable once loaded; updating means
// loading a new document and swapping it into the registry.
type Manifest struct {
	Version        string               `yaml:"version"`
	Metadata       *Metadata            `yaml:"metadata,omitempty"`
	StandardSchema StandardSchema       `yaml:"standard_schema"`
	Providers      map[string]*Provider `yaml:"providers"`
	Models         map[string]*Model    `yaml:"models"`
}

// Metadata carries optional document bookkeeping. It has no runtime effect.
type Metadata struct {
	Description string   `yaml:"description,omitempty"`
	LastUpdated string   `yaml:"last_updated,omitempty"`
	Authors     []string `yaml:"authors,omitempty"`
}

// StandardSchema declares the canonical generation parameters every request
// is validated against before any provider mapping happens.
type StandardSchema struct {
	Parameters map[string]*Parameter `yaml:"parameters"`
}

// ParamType enumerates the declared type of a standard parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamFloat   ParamType = "float"
	ParamBool    ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// Parameter is one standard_schema entry: a type plus its constraints.
// Constraints only apply where they make sense for the type (range/min/max
// for numbers, values/pattern for strings).
type Parameter struct {
	Type        ParamType `yaml:"type"`
	Range       []float64 `yaml:"range,omitempty"` // [lo, hi], inclusive
	Min         *float64  `yaml:"min,omitempty"`
	Max         *float64  `yaml:"max,omitempty"`
	Values      []string  `yaml:"values,omitempty"` // enum, string params
	Pattern     string    `yaml:"pattern,omitempty"`
	Default     any       `yaml:"default,omitempty"`
	Description string    `yaml:"description,omitempty"`

	pattern *regexp.Regexp // compiled during Load
}

// Validate checks value against the parameter's type and constraints.
// The returned error describes the violation in caller terms; it carries no
// classification — the adapter wraps it.
func (p *Parameter) Validate(name string, value any) error {
	switch p.Type {
	case ParamFloat:
		f, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("parameter %q: expected float, got %T", name, value)
		}
		return p.checkNumber(name, f)
	case ParamInteger:
		f, ok := asFloat(value)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("parameter %q: expected integer, got %v", name, value)
		}
		return p.checkNumber(name, f)
	case ParamString:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter %q: expected string, got %T", name, value)
		}
		if len(p.Values) > 0 && !containsString(p.Values, s) {
			return fmt.Errorf("parameter %q: %q not in allowed values %v", name, s, p.Values)
		}
		if p.pattern != nil && !p.pattern.MatchString(s) {
			return fmt.Errorf("parameter %q: %q does not match pattern %q", name, s, p.Pattern)
		}
		return nil
	case ParamBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("parameter %q: expected bool, got %T", name, value)
		}
		return nil
	case ParamArray:
		switch value.(type) {
		case []any, []string:
			return nil
		}
		return fmt.Errorf("parameter %q: expected array, got %T", name, value)
	case ParamObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("parameter %q: expected object, got %T", name, value)
		}
		return nil
	}
	return fmt.Errorf("parameter %q: unknown type %q", name, p.Type)
}

func (p *Parameter) checkNumber(name string, f float64) error {
	if len(p.Range) == 2 && (f < p.Range[0] || f > p.Range[1]) {
		return fmt.Errorf("parameter %q: %v outside range [%v, %v]", name, f, p.Range[0], p.Range[1])
	}
	if p.Min != nil && f < *p.Min {
		return fmt.Errorf("parameter %q: %v below minimum %v", name, f, *p.Min)
	}
	if p.Max != nil && f > *p.Max {
		return fmt.Errorf("parameter %q: %v above maximum %v", name, f, *p.Max)
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// AuthType discriminates the auth descriptor.
type AuthType string

const (
	AuthBearer     AuthType = "bearer"      // Authorization: Bearer <token>
	AuthAPIKey     AuthType = "api_key"     // <header_name>: <key>
	AuthQueryParam AuthType = "query_param" // ?<param_name>=<token>
)

// Auth describes how a provider authenticates. Credentials are never stored
// in the manifest: TokenEnv/KeyEnv name the environment variable holding the
// resolved value.
type Auth struct {
	Type AuthType `yaml:"type"`

	// TokenEnv is the credential source for bearer and query_param auth.
	TokenEnv string `yaml:"token_env,omitempty"`

	// KeyEnv and HeaderName configure api_key auth. HeaderName defaults
	// to "X-Api-Key".
	KeyEnv     string `yaml:"key_env,omitempty"`
	HeaderName string `yaml:"header_name,omitempty"`

	// ParamName is the query parameter for query_param auth.
	ParamName string `yaml:"param_name,omitempty"`

	// ExtraHeaders are attached to every request as-is.
	ExtraHeaders []Header `yaml:"extra_headers,omitempty"`
}

// CredentialEnv returns the environment variable the descriptor reads its
// credential from.
func (a Auth) CredentialEnv() string {
	if a.Type == AuthAPIKey {
		return a.KeyEnv
	}
	return a.TokenEnv
}

// Header is a literal header attached alongside auth.
type Header struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// PayloadFormat tags the request-body dialect a provider speaks. The adapter
// post-processes the mapped payload per the tag; "custom" means mapped fields
// only, no post-processing.
type PayloadFormat string

const (
	PayloadOpenAI    PayloadFormat = "openai_style"
	PayloadAnthropic PayloadFormat = "anthropic_style"
	PayloadGemini    PayloadFormat = "gemini_style"
	PayloadCohere    PayloadFormat = "cohere_native"
	PayloadCustom    PayloadFormat = "custom"
)

// Provider describes one backend's wire contract.
type Provider struct {
	// Version is the provider's own API version tag.
	Version string `yaml:"version,omitempty"`

	// BaseURL is the static endpoint root. Exactly one of BaseURL and
	// BaseURLTemplate must be set.
	BaseURL string `yaml:"base_url,omitempty"`

	// BaseURLTemplate supports {var} substitution from ConnectionVars,
	// for deployments like Azure OpenAI where the URL embeds a resource.
	BaseURLTemplate string            `yaml:"base_url_template,omitempty"`
	ConnectionVars  map[string]string `yaml:"connection_vars,omitempty"`

	Auth          Auth          `yaml:"auth"`
	PayloadFormat PayloadFormat `yaml:"payload_format"`

	// ChatEndpoint is the chat path appended to the base URL. It defaults
	// to "/chat/completions"; a "{model}" placeholder is replaced with the
	// resolved model ID, for backends that address models in the path.
	ChatEndpoint string `yaml:"chat_endpoint,omitempty"`

	// StreamEndpoint overrides ChatEndpoint for streaming calls, for
	// backends that serve streams from a separate path. Empty means the
	// chat endpoint handles both.
	StreamEndpoint string `yaml:"stream_endpoint,omitempty"`

	// ResponseFormat tags the non-streaming response dialect. Extraction
	// is driven by ResponsePaths; the tag is informational.
	ResponseFormat string `yaml:"response_format,omitempty"`

	// ParameterMappings maps standard parameter names to backend payload
	// paths, e.g. "max_tokens" -> "generationConfig.maxOutputTokens".
	ParameterMappings map[string]string `yaml:"parameter_mappings,omitempty"`

	// ResponsePaths maps canonical response fields to paths inside the
	// backend's response body. "content" is required; the rest are
	// optional. Recognized keys: content, reasoning, role, finish_reason,
	// usage, prompt_tokens, completion_tokens, total_tokens, id, model,
	// created, tool_calls.
	ResponsePaths map[string]string `yaml:"response_paths"`

	Streaming Streaming `yaml:"streaming,omitempty"`
}

// ChatPath returns the chat endpoint path with {model} resolved.
func (p *Provider) ChatPath(modelID string) string {
	ep := p.ChatEndpoint
	if ep == "" {
		ep = "/chat/completions"
	}
	return strings.ReplaceAll(ep, "{model}", modelID)
}

// StreamPath returns the streaming endpoint path with {model} resolved,
// falling back to ChatPath when no override is configured.
func (p *Provider) StreamPath(modelID string) string {
	if p.StreamEndpoint == "" {
		return p.ChatPath(modelID)
	}
	return strings.ReplaceAll(p.StreamEndpoint, "{model}", modelID)
}

// ResolveBaseURL returns the effective endpoint root: BaseURL when set,
// otherwise BaseURLTemplate with every {var} replaced from ConnectionVars.
// Load guarantees one of the two is set and all template vars resolve.
func (p *Provider) ResolveBaseURL() string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/")
	}
	url := p.BaseURLTemplate
	for name, value := range p.ConnectionVars {
		url = strings.ReplaceAll(url, "{"+name+"}", value)
	}
	return strings.TrimRight(url, "/")
}

// Streaming configures how a provider's stream is decoded and interpreted.
type Streaming struct {
	// Decoder describes the wire framing. Nil means SSE with a "data:"
	// prefix and "[DONE]" terminator.
	Decoder *Decoder `yaml:"decoder,omitempty"`

	// EventMap is the ordered list of match/extract rules. For each
	// delivered JSON object the first matching rule fires; objects
	// matching no rule are dropped.
	EventMap []EventRule `yaml:"event_map,omitempty"`

	// StopCondition optionally ends the stream when an object satisfies
	// it, for dialects without an explicit done signal.
	StopCondition string `yaml:"stop_condition,omitempty"`

	stop *MatchExpr // compiled during Load
}

// StopMatcher returns the compiled StopCondition, or nil when unset.
func (s *Streaming) StopMatcher() *MatchExpr { return s.stop }

// Decoder describes stream framing at the transport boundary.
type Decoder struct {
	Format     string `yaml:"format,omitempty"` // "sse" (default) or "jsonl"
	Prefix     string `yaml:"prefix,omitempty"`
	DoneSignal string `yaml:"done_signal,omitempty"`
}

// EventKind enumerates the event_map emit vocabulary.
type EventKind string

const (
	EmitPartialContentDelta EventKind = "PartialContentDelta"
	EmitPartialToolCall     EventKind = "PartialToolCall"
	EmitThinkingDelta       EventKind = "ThinkingDelta"
	EmitToolCallStarted     EventKind = "ToolCallStarted"
	EmitToolCallEnded       EventKind = "ToolCallEnded"
	EmitMetadata            EventKind = "Metadata"
	EmitFinish              EventKind = "Finish"
	EmitStreamEnd           EventKind = "StreamEnd"
)

func knownEventKind(k EventKind) bool {
	switch k {
	case EmitPartialContentDelta, EmitPartialToolCall, EmitThinkingDelta,
		EmitToolCallStarted, EmitToolCallEnded, EmitMetadata, EmitFinish,
		EmitStreamEnd:
		return true
	}
	return false
}

// EventRule is one event_map entry: when Match holds for a delivered object,
// emit an event of kind Emit with Fields extracted by path. Fields absent
// from the object are omitted from the event.
type EventRule struct {
	Match  string            `yaml:"match"`
	Emit   EventKind         `yaml:"emit"`
	Fields map[string]string `yaml:"fields,omitempty"`

	matcher *MatchExpr // compiled during Load
}

// Matcher returns the compiled match expression. It is non-nil on every rule
// of a loaded manifest.
func (r *EventRule) Matcher() *MatchExpr { return r.matcher }

// ModelStatus tracks catalog lifecycle. Disabled models stay resolvable but
// are excluded from listings.
type ModelStatus string

const (
	StatusActive       ModelStatus = "active"
	StatusDeprecated   ModelStatus = "deprecated"
	StatusExperimental ModelStatus = "experimental"
	StatusDisabled     ModelStatus = "disabled"
)

// Model is one catalog entry binding a provider to a concrete backend model.
type Model struct {
	// Provider references a key of Manifest.Providers.
	Provider string `yaml:"provider"`

	// ModelID is the identifier sent to the backend, which may differ
	// from the catalog key.
	ModelID string `yaml:"model_id"`

	DisplayName   string      `yaml:"display_name,omitempty"`
	ContextWindow int         `yaml:"context_window"`
	Capabilities  []string    `yaml:"capabilities,omitempty"`
	Pricing       *Pricing    `yaml:"pricing,omitempty"`
	Status        ModelStatus `yaml:"status,omitempty"`
	Tags          []string    `yaml:"tags,omitempty"`
}

// HasCapability reports whether the model declares cap (e.g. "chat",
// "tools", "vision", "streaming").
func (m *Model) HasCapability(cap string) bool {
	return containsString(m.Capabilities, cap)
}

// Pricing is an opaque hint; the runtime never computes cost from it.
type Pricing struct {
	InputPerToken  float64 `yaml:"input_per_token"`
	OutputPerToken float64 `yaml:"output_per_token"`
	Currency       string  `yaml:"currency,omitempty"`
	Unit           string  `yaml:"unit,omitempty"`
}
