package dynamic

import (
	"strings"
	"testing"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/manifest"
)

const responseManifest = `
version: "1.0.0"
standard_schema:
  parameters: {}
providers:
  acme:
    base_url: "https://acme.test/v1"
    auth: {type: bearer, token_env: ACME_API_KEY}
    payload_format: openai_style
    response_paths:
      id: id
      model: model
      created: created
      content: "choices[0].message.content"
      role: "choices[0].message.role"
      finish_reason: "choices[0].finish_reason"
      tool_calls: "choices[0].message.tool_calls"
      usage: usage
  claude:
    base_url: "https://claude.test"
    auth: {type: api_key, key_env: CLAUDE_API_KEY}
    payload_format: anthropic_style
    response_paths:
      content: "content[0].text"
      finish_reason: stop_reason
      usage: usage
`

func responseProvider(t *testing.T, id string) *Provider {
	t.Helper()
	m, err := manifest.Parse([]byte(responseManifest))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := New(m, id, WithCredential("test-key"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestParseResponse_OpenAIShape(t *testing.T) {
	p := responseProvider(t, "acme")

	raw := []byte(`{
		"id": "chatcmpl-123",
		"model": "acme-large-001",
		"created": 1700000000,
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "Hello there"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
	}`)

	resp, err := p.parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if resp.ID != "chatcmpl-123" || resp.Model != "acme-large-001" {
		t.Fatalf("id=%q model=%q", resp.ID, resp.Model)
	}
	if resp.Created.Unix() != 1700000000 {
		t.Fatalf("created = %v", resp.Created)
	}
	if got := resp.FirstText(); got != "Hello there" {
		t.Fatalf("text = %q", got)
	}
	if resp.Choices[0].FinishReason != llm.FinishReasonStop {
		t.Fatalf("finish = %q", resp.Choices[0].FinishReason)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 12 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
	if len(resp.RawJSON) == 0 {
		t.Fatalf("raw body not retained")
	}
}

func TestParseResponse_UsageDetails(t *testing.T) {
	p := responseProvider(t, "acme")

	raw := []byte(`{
		"id": "chatcmpl-456",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "cached"}, "finish_reason": "stop"}],
		"usage": {
			"prompt_tokens": 100, "completion_tokens": 20, "total_tokens": 120,
			"prompt_cache_hit_tokens": 64, "prompt_cache_miss_tokens": 36,
			"completion_tokens_details": {"reasoning_tokens": 8}
		}
	}`)

	resp, err := p.parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	d := resp.Usage.Details
	if d == nil {
		t.Fatalf("usage details missing: %+v", resp.Usage)
	}
	if d.PromptCacheHitTokens != 64 || d.PromptCacheMissTokens != 36 || d.ReasoningTokens != 8 {
		t.Fatalf("details = %+v", d)
	}

	// A plain usage object leaves Details nil.
	resp, err = p.parseResponse([]byte(`{
		"id": "chatcmpl-789",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "plain"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
	}`))
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if resp.Usage == nil || resp.Usage.Details != nil {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestParseResponse_AnthropicShape(t *testing.T) {
	p := responseProvider(t, "claude")

	raw := []byte(`{
		"id": "msg_01",
		"content": [{"type": "text", "text": "Hi."}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 10, "output_tokens": 2}
	}`)

	resp, err := p.parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if got := resp.FirstText(); got != "Hi." {
		t.Fatalf("text = %q", got)
	}
	if resp.Choices[0].FinishReason != llm.FinishReasonStop {
		t.Fatalf("finish = %q, want stop for end_turn", resp.Choices[0].FinishReason)
	}
	u := resp.Usage
	if u == nil || u.PromptTokens != 10 || u.CompletionTokens != 2 || u.TotalTokens != 12 {
		t.Fatalf("usage = %+v", u)
	}

	// No id path is declared for claude, so one is synthesized.
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Fatalf("id = %q", resp.ID)
	}
}

func TestParseResponse_ToolCalls(t *testing.T) {
	p := responseProvider(t, "acme")

	raw := []byte(`{
		"id": "chatcmpl-9",
		"choices": [{
			"index": 0,
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"oslo\"}"}}]
			},
			"finish_reason": "tool_calls"
		}]
	}`)

	resp, err := p.parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", msg.ToolCalls)
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "get_weather" {
		t.Fatalf("tool call = %+v", tc)
	}
	if string(tc.Arguments) != `{"city":"oslo"}` {
		t.Fatalf("arguments = %s", tc.Arguments)
	}
	if resp.Choices[0].FinishReason != llm.FinishReasonToolCalls {
		t.Fatalf("finish = %q", resp.Choices[0].FinishReason)
	}
}

func TestParseResponse_BadJSON(t *testing.T) {
	p := responseProvider(t, "acme")

	_, err := p.parseResponse([]byte(`<html>bad gateway</html>`))
	le, ok := llm.AsLLMError(err)
	if !ok || le.Kind != llm.ErrKindParse {
		t.Fatalf("expected parse error, got %v", err)
	}
	if string(le.Raw) != `<html>bad gateway</html>` {
		t.Fatalf("raw = %q", le.Raw)
	}
}

func TestMapFinishReason(t *testing.T) {
	for in, want := range map[string]llm.FinishReason{
		"":              "",
		"stop":          llm.FinishReasonStop,
		"end_turn":      llm.FinishReasonStop,
		"stop_sequence": llm.FinishReasonStop,
		"STOP":          llm.FinishReasonStop,
		"length":        llm.FinishReasonLength,
		"max_tokens":    llm.FinishReasonLength,
		"MAX_TOKENS":    llm.FinishReasonLength,
		"tool_calls":    llm.FinishReasonToolCalls,
		"tool_use":      llm.FinishReasonToolCalls,
		"function_call": llm.FinishReasonToolCalls,
		"safety":        llm.FinishReasonUnknown,
	} {
		if got := mapFinishReason(in); got != want {
			t.Fatalf("mapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}
