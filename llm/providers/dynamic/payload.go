package dynamic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/manifest"
)

// buildPayload assembles the outgoing body: canonical model/messages, the
// mapped standard parameters, format post-processing, then extras merged
// verbatim. Only parameters named in parameter_mappings reach the wire, so
// the payload never carries a field the manifest does not declare.
func (p *Provider) buildPayload(req llm.ChatRequest, modelID string, stream bool) (map[string]any, error) {
	if len(req.Messages) == 0 {
		return nil, llm.NewError(p.id, llm.ErrKindBadRequest, "messages is required")
	}

	params, err := p.collectParams(req)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"model":    modelID,
		"messages": encodeMessages(req.Messages, p.spec.PayloadFormat),
	}
	p.applyMappings(payload, params)

	if err := p.applyTools(payload, req); err != nil {
		return nil, err
	}
	if err := p.applyResponseFormat(payload, req); err != nil {
		return nil, err
	}

	switch p.spec.PayloadFormat {
	case manifest.PayloadAnthropic:
		ensureAnthropic(payload)
	case manifest.PayloadGemini:
		ensureGemini(payload)
	case manifest.PayloadCohere:
		ensureCohere(payload)
	}

	if stream {
		applyStreamFlags(payload, p.spec.PayloadFormat, req.StreamOptions)
	}

	for k, v := range req.Extra {
		payload[k] = v
	}

	if err := p.validatePayload(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// collectParams gathers the generation parameters the caller set and checks
// each against standard_schema. A violation fails the call before any
// network traffic.
func (p *Provider) collectParams(req llm.ChatRequest) (map[string]any, error) {
	params := make(map[string]any)
	if req.Temperature != nil {
		params["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		params["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		params["max_tokens"] = *req.MaxTokens
	}
	if req.PresencePenalty != nil {
		params["presence_penalty"] = *req.PresencePenalty
	}
	if req.FrequencyPenalty != nil {
		params["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.Seed != nil {
		params["seed"] = *req.Seed
	}
	if len(req.Stop) > 0 {
		params["stop"] = req.Stop
	}
	if req.LogProbs != nil {
		params["logprobs"] = *req.LogProbs
	}
	if req.TopLogProbs != nil {
		params["top_logprobs"] = *req.TopLogProbs
	}

	schema := p.man.StandardSchema.Parameters
	for name, v := range params {
		decl := schema[name]
		if decl == nil {
			continue
		}
		if err := decl.Validate(name, v); err != nil {
			return nil, llm.NewError(p.id, llm.ErrKindBadRequest, err.Error())
		}
	}
	return params, nil
}

// applyMappings writes each collected parameter to its mapped path. Mapping
// entries whose parameter the caller left unset are skipped, never nulled.
func (p *Provider) applyMappings(payload map[string]any, params map[string]any) {
	names := make([]string, 0, len(p.spec.ParameterMappings))
	for name := range p.spec.ParameterMappings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := params[name]
		if !ok {
			continue
		}
		manifest.SetPath(payload, p.spec.ParameterMappings[name], v)
	}
}

func encodeMessages(msgs []llm.Message, format manifest.PayloadFormat) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		wm := map[string]any{
			"role":    string(m.Role),
			"content": m.Text(),
		}
		if m.Name != "" {
			wm["name"] = m.Name
		}
		if m.Role == llm.RoleTool && m.ToolCallID != "" {
			wm["tool_call_id"] = m.ToolCallID
		}
		if len(m.ToolCalls) > 0 && toolsSupported(format) {
			calls := make([]map[string]any, 0, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls = append(calls, map[string]any{
					"index": i,
					"id":    tc.ID,
					"type":  "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": firstNonEmpty(tc.ArgumentsText, string(tc.Arguments)),
					},
				})
			}
			wm["tool_calls"] = calls
		}
		out = append(out, wm)
	}
	return out
}

func toolsSupported(format manifest.PayloadFormat) bool {
	return format == manifest.PayloadOpenAI || format == manifest.PayloadCustom
}

func (p *Provider) applyTools(payload map[string]any, req llm.ChatRequest) error {
	if len(req.Tools) == 0 && req.ToolChoice == nil {
		return nil
	}
	if !toolsSupported(p.spec.PayloadFormat) {
		return llm.NewError(p.id, llm.ErrKindUnsupported,
			fmt.Sprintf("tools are not supported for payload_format %s", p.spec.PayloadFormat))
	}

	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.InputSchema,
				},
			})
		}
		payload["tools"] = tools
	}
	if req.ToolChoice != nil {
		payload["tool_choice"] = mapToolChoice(*req.ToolChoice)
	}
	return nil
}

func mapToolChoice(tc llm.ToolChoice) any {
	switch tc.Mode {
	case llm.ToolChoiceNone:
		return "none"
	case llm.ToolChoiceRequired:
		return "required"
	case llm.ToolChoiceFunction:
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": tc.FunctionName},
		}
	default:
		return "auto"
	}
}

func (p *Provider) applyResponseFormat(payload map[string]any, req llm.ChatRequest) error {
	rf := req.ResponseFormat
	if rf == nil {
		return nil
	}
	if !toolsSupported(p.spec.PayloadFormat) {
		if rf.Type == llm.ResponseFormatText {
			return nil
		}
		return llm.NewError(p.id, llm.ErrKindUnsupported,
			fmt.Sprintf("response_format %s is not supported for payload_format %s", rf.Type, p.spec.PayloadFormat))
	}

	out := map[string]any{"type": string(rf.Type)}
	if rf.Type == llm.ResponseFormatJSONSchema && len(rf.JSONSchema) > 0 {
		out["json_schema"] = rf.JSONSchema
	}
	payload["response_format"] = out
	return nil
}

// ensureAnthropic reshapes an OpenAI-ish payload into the Anthropic dialect:
// system messages move to the top-level system field, remaining roles are
// coerced to the user/assistant alternation, temperature is clamped to the
// backend's [0, 1] range.
func ensureAnthropic(payload map[string]any) {
	msgs, _ := payload["messages"].([]map[string]any)
	var system []string
	kept := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		role, _ := m["role"].(string)
		switch role {
		case "system":
			if s, ok := m["content"].(string); ok && s != "" {
				system = append(system, s)
			}
		case "assistant":
			kept = append(kept, m)
		default:
			m["role"] = "user"
			delete(m, "tool_call_id")
			delete(m, "name")
			kept = append(kept, m)
		}
	}
	if len(system) > 0 {
		payload["system"] = strings.Join(system, "\n\n")
	}
	payload["messages"] = kept

	if t, ok := payload["temperature"].(float64); ok {
		if t > 1 {
			payload["temperature"] = 1.0
		} else if t < 0 {
			payload["temperature"] = 0.0
		}
	}
}

// ensureGemini nests flat generation parameters under generationConfig and
// converts messages to the contents array. Gemini addresses the model in the
// URL, so the model field is dropped from the body.
func ensureGemini(payload map[string]any) {
	moves := [][2]string{
		{"temperature", "temperature"},
		{"max_tokens", "maxOutputTokens"},
		{"top_p", "topP"},
	}
	var gen map[string]any
	if g, ok := payload["generationConfig"].(map[string]any); ok {
		gen = g
	}
	for _, mv := range moves {
		v, ok := payload[mv[0]]
		if !ok {
			continue
		}
		if gen == nil {
			gen = make(map[string]any)
		}
		gen[mv[1]] = v
		delete(payload, mv[0])
	}
	if gen != nil {
		payload["generationConfig"] = gen
	}

	if msgs, ok := payload["messages"].([]map[string]any); ok {
		contents := make([]map[string]any, 0, len(msgs))
		for _, m := range msgs {
			role := "user"
			if r, _ := m["role"].(string); r == "assistant" {
				role = "model"
			}
			text, _ := m["content"].(string)
			contents = append(contents, map[string]any{
				"role":  role,
				"parts": []map[string]any{{"text": text}},
			})
		}
		payload["contents"] = contents
		delete(payload, "messages")
	}
	delete(payload, "model")
}

// ensureCohere collapses a single-message conversation to the message
// field the Cohere dialect expects; multi-turn keeps messages.
func ensureCohere(payload map[string]any) {
	msgs, ok := payload["messages"].([]map[string]any)
	if !ok || len(msgs) != 1 {
		return
	}
	if text, ok := msgs[0]["content"].(string); ok {
		payload["message"] = text
		delete(payload, "messages")
	}
}

func applyStreamFlags(payload map[string]any, format manifest.PayloadFormat, so *llm.StreamOptions) {
	if format == manifest.PayloadGemini {
		// Streaming is selected by the endpoint path, not a body flag.
		return
	}
	payload["stream"] = true
	if format == manifest.PayloadOpenAI {
		include := true
		if so != nil {
			include = so.IncludeUsage
		}
		if _, ok := payload["stream_options"]; !ok {
			payload["stream_options"] = map[string]any{"include_usage": include}
		}
	}
}

// validatePayload enforces each dialect's required fields so a structurally
// incomplete request fails before any network call.
func (p *Provider) validatePayload(payload map[string]any) error {
	missing := func(field string) error {
		return llm.NewError(p.id, llm.ErrKindBadRequest,
			fmt.Sprintf("payload_format %s requires %q", p.spec.PayloadFormat, field))
	}
	switch p.spec.PayloadFormat {
	case manifest.PayloadOpenAI:
		if _, ok := payload["model"]; !ok {
			return missing("model")
		}
		if _, ok := payload["messages"]; !ok {
			return missing("messages")
		}
	case manifest.PayloadAnthropic:
		if _, ok := payload["messages"]; !ok {
			return missing("messages")
		}
		if _, ok := payload["max_tokens"]; !ok {
			return missing("max_tokens")
		}
	case manifest.PayloadGemini:
		if _, ok := payload["contents"]; !ok {
			return missing("contents")
		}
	case manifest.PayloadCohere:
		if _, ok := payload["message"]; !ok {
			if _, ok := payload["messages"]; !ok {
				return missing("message")
			}
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
