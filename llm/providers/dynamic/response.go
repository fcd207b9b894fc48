package dynamic

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/manifest"
)

// parseResponse maps a backend body to the canonical response using the
// provider's response_paths. Only declared paths are read; a backend id is
// synthesized when the manifest maps none.
func (p *Provider) parseResponse(raw []byte) (llm.ChatResponse, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return llm.ChatResponse{}, &llm.LLMError{
			Provider:  p.id,
			Kind:      llm.ErrKindParse,
			Class:     llm.ClassClient,
			Message:   "failed to decode response",
			Raw:       append([]byte(nil), raw...),
			Cause:     err,
			Retryable: false,
		}
	}

	paths := p.spec.ResponsePaths

	resp := llm.ChatResponse{
		ID:      pathString(doc, paths["id"]),
		Model:   pathString(doc, paths["model"]),
		RawJSON: append([]byte(nil), raw...),
	}
	if resp.ID == "" {
		resp.ID = "chatcmpl-" + uuid.NewString()
	}
	if created, ok := pathFloat(doc, paths["created"]); ok {
		resp.Created = time.Unix(int64(created), 0).UTC()
	}

	role := pathString(doc, paths["role"])
	if role == "" {
		role = string(llm.RoleAssistant)
	}
	msg := llm.Message{Role: llm.Role(role)}
	if content := pathString(doc, paths["content"]); content != "" {
		msg.Parts = append(msg.Parts, llm.TextPart(content))
	}
	if reasoning := pathString(doc, paths["reasoning"]); reasoning != "" {
		msg.Parts = append(msg.Parts, llm.ReasoningPart(reasoning))
	}
	msg.ToolCalls = extractToolCalls(doc, paths["tool_calls"])

	resp.Choices = []llm.ChatChoice{{
		Index:        0,
		Message:      msg,
		FinishReason: mapFinishReason(pathString(doc, paths["finish_reason"])),
	}}
	resp.Usage = extractUsage(doc, paths)
	return resp, nil
}

// extractUsage reads the usage object and the optional per-field overrides.
// Both OpenAI-style and Anthropic-style token field names are recognized
// inside the usage object.
func extractUsage(doc any, paths map[string]string) *llm.Usage {
	var u llm.Usage
	found := false

	if obj, ok := pathObject(doc, paths["usage"]); ok {
		read := func(keys ...string) int {
			for _, k := range keys {
				if f, ok := obj[k].(float64); ok {
					found = true
					return int(f)
				}
			}
			return 0
		}
		u.PromptTokens = read("prompt_tokens", "input_tokens")
		u.CompletionTokens = read("completion_tokens", "output_tokens")
		u.TotalTokens = read("total_tokens")
		if u.Details = usageDetails(obj); u.Details != nil {
			found = true
		}
	}

	for key, dst := range map[string]*int{
		"prompt_tokens":     &u.PromptTokens,
		"completion_tokens": &u.CompletionTokens,
		"total_tokens":      &u.TotalTokens,
	} {
		if f, ok := pathFloat(doc, paths[key]); ok {
			*dst = int(f)
			found = true
		}
	}

	if !found {
		return nil
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return &u
}

// usageDetails reads optional breakdown fields from a usage object.
// DeepSeek reports prompt cache hits and misses at the top level; OpenAI
// nests reasoning tokens under completion_tokens_details.
func usageDetails(obj map[string]any) *llm.UsageDetails {
	var d llm.UsageDetails
	var found bool
	if f, ok := obj["prompt_cache_hit_tokens"].(float64); ok {
		d.PromptCacheHitTokens = int(f)
		found = true
	}
	if f, ok := obj["prompt_cache_miss_tokens"].(float64); ok {
		d.PromptCacheMissTokens = int(f)
		found = true
	}
	if det, ok := obj["completion_tokens_details"].(map[string]any); ok {
		if f, ok := det["reasoning_tokens"].(float64); ok {
			d.ReasoningTokens = int(f)
			found = true
		}
	}
	if !found {
		return nil
	}
	return &d
}

// extractToolCalls reads an OpenAI-shaped tool_calls array when the manifest
// declares a path for it.
func extractToolCalls(doc any, path string) []llm.ToolCall {
	if path == "" {
		return nil
	}
	v, ok := manifest.GetPath(doc, path)
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}

	var out []llm.ToolCall
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tc := llm.ToolCall{}
		tc.ID, _ = obj["id"].(string)
		if fn, ok := obj["function"].(map[string]any); ok {
			tc.Name, _ = fn["name"].(string)
			if args, ok := fn["arguments"].(string); ok {
				tc.ArgumentsText = args
				if json.Valid([]byte(args)) {
					tc.Arguments = json.RawMessage(args)
				}
			}
		}
		out = append(out, tc)
	}
	return out
}

// mapFinishReason normalizes the finish vocabulary across dialects.
func mapFinishReason(s string) llm.FinishReason {
	switch strings.ToLower(s) {
	case "":
		return ""
	case "stop", "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "length", "max_tokens":
		return llm.FinishReasonLength
	case "tool_calls", "function_call", "tool_use":
		return llm.FinishReasonToolCalls
	default:
		return llm.FinishReasonUnknown
	}
}

func pathString(doc any, path string) string {
	if path == "" {
		return ""
	}
	v, ok := manifest.GetPath(doc, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func pathFloat(doc any, path string) (float64, bool) {
	if path == "" {
		return 0, false
	}
	v, ok := manifest.GetPath(doc, path)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func pathObject(doc any, path string) (map[string]any, bool) {
	if path == "" {
		return nil, false
	}
	v, ok := manifest.GetPath(doc, path)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}
