package dynamic

import (
	"testing"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/manifest"
)

const payloadManifest = `
version: "1.0.0"
standard_schema:
  parameters:
    temperature: {type: float, range: [0.0, 2.0]}
    max_tokens: {type: integer, min: 1}
    top_p: {type: float, range: [0.0, 1.0]}
    stop: {type: array}
    seed: {type: integer}
providers:
  acme:
    base_url: "https://acme.test/v1"
    auth: {type: bearer, token_env: ACME_API_KEY}
    payload_format: openai_style
    parameter_mappings:
      temperature: temperature
      max_tokens: max_tokens
      stop: stop
      seed: seed
    response_paths:
      content: "choices[0].message.content"
  claude:
    base_url: "https://claude.test"
    auth: {type: api_key, key_env: CLAUDE_API_KEY, header_name: x-api-key}
    payload_format: anthropic_style
    parameter_mappings:
      temperature: temperature
      max_tokens: max_tokens
      stop: stop_sequences
    response_paths:
      content: "content[0].text"
  gem:
    base_url: "https://gem.test/v1beta"
    auth: {type: query_param, param_name: key, token_env: GEM_API_KEY}
    payload_format: gemini_style
    chat_endpoint: "/models/{model}:generateContent"
    parameter_mappings:
      temperature: "generationConfig.temperature"
      max_tokens: "generationConfig.maxOutputTokens"
    response_paths:
      content: "candidates[0].content.parts[0].text"
  cohere:
    base_url: "https://cohere.test/v2"
    auth: {type: bearer, token_env: COHERE_API_KEY}
    payload_format: cohere_native
    parameter_mappings:
      temperature: temperature
    response_paths:
      content: text
models:
  acme-large:
    provider: acme
    model_id: acme-large-001
    context_window: 128000
    capabilities: [chat, streaming]
`

func payloadProvider(t *testing.T, id string) *Provider {
	t.Helper()
	m, err := manifest.Parse([]byte(payloadManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := New(m, id, WithCredential("test-key"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func f64(v float64) *float64 { return &v }
func iptr(v int) *int        { return &v }

func TestBuildPayload_MappedFieldsOnly(t *testing.T) {
	p := payloadProvider(t, "acme")

	req := llm.ChatRequest{
		Messages:    []llm.Message{llm.User("hi")},
		Temperature: f64(0.7),
		MaxTokens:   iptr(100),
		Stop:        []string{"END"},
		// top_p has no mapping entry for acme and must not reach the wire.
		TopP: f64(0.9),
	}
	payload, err := p.buildPayload(req, "acme-large-001", false)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}

	want := map[string]bool{
		"model": true, "messages": true,
		"temperature": true, "max_tokens": true, "stop": true,
	}
	for k := range payload {
		if !want[k] {
			t.Fatalf("unexpected payload field %q", k)
		}
		delete(want, k)
	}
	for k := range want {
		t.Fatalf("payload missing field %q", k)
	}

	if payload["model"] != "acme-large-001" {
		t.Fatalf("model = %v", payload["model"])
	}
	if payload["temperature"] != 0.7 {
		t.Fatalf("temperature = %v", payload["temperature"])
	}
	if payload["max_tokens"] != 100 {
		t.Fatalf("max_tokens = %v", payload["max_tokens"])
	}
}

func TestBuildPayload_ParameterViolation(t *testing.T) {
	p := payloadProvider(t, "acme")

	req := llm.ChatRequest{
		Messages:    []llm.Message{llm.User("hi")},
		Temperature: f64(3.5),
	}
	_, err := p.buildPayload(req, "m", false)
	if err == nil {
		t.Fatalf("expected range violation")
	}
	le, ok := llm.AsLLMError(err)
	if !ok {
		t.Fatalf("expected LLMError, got %T", err)
	}
	if le.Kind != llm.ErrKindBadRequest || le.Class != llm.ClassClient {
		t.Fatalf("kind=%s class=%s", le.Kind, le.Class)
	}
	if le.Retryable {
		t.Fatalf("validation errors must not be retryable")
	}
}

func TestBuildPayload_AnthropicShape(t *testing.T) {
	p := payloadProvider(t, "claude")

	req := llm.ChatRequest{
		Messages: []llm.Message{
			llm.System("be brief"),
			llm.System("be kind"),
			llm.User("hi"),
			llm.Assistant("hello"),
		},
		Temperature: f64(1.8),
		MaxTokens:   iptr(256),
		Stop:        []string{"END"},
	}
	payload, err := p.buildPayload(req, "claude-3", false)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}

	if payload["system"] != "be brief\n\nbe kind" {
		t.Fatalf("system = %v", payload["system"])
	}
	msgs := payload["messages"].([]map[string]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want system lifted out", len(msgs))
	}
	if msgs[0]["role"] != "user" || msgs[1]["role"] != "assistant" {
		t.Fatalf("roles = %v, %v", msgs[0]["role"], msgs[1]["role"])
	}
	if payload["temperature"] != 1.0 {
		t.Fatalf("temperature = %v, want clamped to 1", payload["temperature"])
	}
	if _, ok := payload["stop_sequences"]; !ok {
		t.Fatalf("stop not remapped to stop_sequences")
	}
	if _, ok := payload["stop"]; ok {
		t.Fatalf("unmapped stop leaked into payload")
	}
}

func TestBuildPayload_AnthropicRequiresMaxTokens(t *testing.T) {
	p := payloadProvider(t, "claude")

	_, err := p.buildPayload(llm.ChatRequest{Messages: []llm.Message{llm.User("hi")}}, "claude-3", false)
	le, ok := llm.AsLLMError(err)
	if !ok || le.Kind != llm.ErrKindBadRequest {
		t.Fatalf("expected bad_request, got %v", err)
	}

	// An extension field can satisfy the requirement.
	req := llm.ChatRequest{
		Messages: []llm.Message{llm.User("hi")},
		Extra:    map[string]any{"max_tokens": 128},
	}
	if _, err := p.buildPayload(req, "claude-3", false); err != nil {
		t.Fatalf("buildPayload with extra max_tokens: %v", err)
	}
}

func TestBuildPayload_GeminiShape(t *testing.T) {
	p := payloadProvider(t, "gem")

	req := llm.ChatRequest{
		Messages: []llm.Message{
			llm.User("hi"),
			llm.Assistant("hello"),
		},
		Temperature: f64(0.5),
		MaxTokens:   iptr(64),
	}
	payload, err := p.buildPayload(req, "gem-pro", false)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}

	if _, ok := payload["model"]; ok {
		t.Fatalf("model must not appear in a gemini body")
	}
	if _, ok := payload["messages"]; ok {
		t.Fatalf("messages must be converted to contents")
	}
	gen := payload["generationConfig"].(map[string]any)
	if gen["temperature"] != 0.5 || gen["maxOutputTokens"] != 64 {
		t.Fatalf("generationConfig = %v", gen)
	}
	contents := payload["contents"].([]map[string]any)
	if len(contents) != 2 {
		t.Fatalf("contents = %d", len(contents))
	}
	if contents[0]["role"] != "user" || contents[1]["role"] != "model" {
		t.Fatalf("roles = %v, %v", contents[0]["role"], contents[1]["role"])
	}
	parts := contents[0]["parts"].([]map[string]any)
	if parts[0]["text"] != "hi" {
		t.Fatalf("parts = %v", parts)
	}
}

func TestBuildPayload_CohereSingleMessage(t *testing.T) {
	p := payloadProvider(t, "cohere")

	payload, err := p.buildPayload(llm.ChatRequest{Messages: []llm.Message{llm.User("hi")}}, "command-r", false)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if payload["message"] != "hi" {
		t.Fatalf("message = %v", payload["message"])
	}
	if _, ok := payload["messages"]; ok {
		t.Fatalf("single-turn must collapse to message")
	}

	multi := llm.ChatRequest{Messages: []llm.Message{llm.User("hi"), llm.Assistant("yo"), llm.User("bye")}}
	payload, err = p.buildPayload(multi, "command-r", false)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if _, ok := payload["messages"]; !ok {
		t.Fatalf("multi-turn must keep messages")
	}
}

func TestBuildPayload_ExtraMergedVerbatim(t *testing.T) {
	p := payloadProvider(t, "acme")

	req := llm.ChatRequest{
		Messages:    []llm.Message{llm.User("hi")},
		Temperature: f64(0.7),
		Extra: map[string]any{
			"temperature": 0.2,
			"top_k":       40,
		},
	}
	payload, err := p.buildPayload(req, "m", false)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if payload["temperature"] != 0.2 {
		t.Fatalf("extra must win: temperature = %v", payload["temperature"])
	}
	if payload["top_k"] != 40 {
		t.Fatalf("top_k = %v", payload["top_k"])
	}
}

func TestBuildPayload_ToolsUnsupportedFormat(t *testing.T) {
	p := payloadProvider(t, "claude")

	req := llm.ChatRequest{
		Messages:  []llm.Message{llm.User("hi")},
		MaxTokens: iptr(10),
		Tools:     []llm.ToolDefinition{{Name: "get_weather"}},
	}
	_, err := p.buildPayload(req, "claude-3", false)
	le, ok := llm.AsLLMError(err)
	if !ok || le.Kind != llm.ErrKindUnsupported {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if le.Class != llm.ClassClient {
		t.Fatalf("class = %s", le.Class)
	}
}

func TestBuildPayload_ToolsOpenAI(t *testing.T) {
	p := payloadProvider(t, "acme")

	req := llm.ChatRequest{
		Messages:   []llm.Message{llm.User("weather in oslo?")},
		Tools:      []llm.ToolDefinition{{Name: "get_weather", Description: "lookup"}},
		ToolChoice: &llm.ToolChoice{Mode: llm.ToolChoiceFunction, FunctionName: "get_weather"},
	}
	payload, err := p.buildPayload(req, "m", false)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	tools := payload["tools"].([]map[string]any)
	fn := tools[0]["function"].(map[string]any)
	if fn["name"] != "get_weather" {
		t.Fatalf("tools = %v", tools)
	}
	tc := payload["tool_choice"].(map[string]any)
	if tc["type"] != "function" {
		t.Fatalf("tool_choice = %v", tc)
	}
}

func TestBuildPayload_StreamFlags(t *testing.T) {
	p := payloadProvider(t, "acme")

	payload, err := p.buildPayload(llm.ChatRequest{Messages: []llm.Message{llm.User("hi")}}, "m", true)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if payload["stream"] != true {
		t.Fatalf("stream = %v", payload["stream"])
	}
	so := payload["stream_options"].(map[string]any)
	if so["include_usage"] != true {
		t.Fatalf("stream_options = %v", so)
	}

	// Gemini selects streaming by endpoint, not a body flag.
	gem := payloadProvider(t, "gem")
	payload, err = gem.buildPayload(llm.ChatRequest{Messages: []llm.Message{llm.User("hi")}}, "gem-pro", true)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if _, ok := payload["stream"]; ok {
		t.Fatalf("gemini body must not carry a stream flag")
	}
}

func TestBuildPayload_EmptyMessages(t *testing.T) {
	p := payloadProvider(t, "acme")

	_, err := p.buildPayload(llm.ChatRequest{}, "m", false)
	le, ok := llm.AsLLMError(err)
	if !ok || le.Kind != llm.ErrKindBadRequest {
		t.Fatalf("expected bad_request, got %v", err)
	}
}

func TestEncodeMessages_ToolFields(t *testing.T) {
	msgs := encodeMessages([]llm.Message{
		llm.ToolResult("call_1", "22C"),
	}, manifest.PayloadOpenAI)
	if msgs[0]["role"] != "tool" || msgs[0]["tool_call_id"] != "call_1" || msgs[0]["content"] != "22C" {
		t.Fatalf("tool message = %v", msgs[0])
	}

	assistant := llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_weather", ArgumentsText: `{"city":"oslo"}`}},
	}
	msgs = encodeMessages([]llm.Message{assistant}, manifest.PayloadOpenAI)
	calls := msgs[0]["tool_calls"].([]map[string]any)
	fn := calls[0]["function"].(map[string]any)
	if fn["arguments"] != `{"city":"oslo"}` {
		t.Fatalf("tool_calls = %v", calls)
	}
}

func TestResolveModel(t *testing.T) {
	p := payloadProvider(t, "acme")

	for _, tt := range []struct {
		in, want string
	}{
		{"acme-large", "acme-large-001"}, // catalog key resolves to backend id
		{"acme-large-001", "acme-large-001"},
		{"uncataloged", "uncataloged"}, // pass-through
	} {
		got, err := p.resolveModel(tt.in)
		if err != nil {
			t.Fatalf("resolveModel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("resolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := p.resolveModel(""); err == nil {
		t.Fatalf("empty model must fail without a default")
	}
}

