package dynamic

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/google/uuid"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/manifest"
)

// generateIDSentinel in a rule's tool_call_id field asks for a freshly
// minted id instead of one extracted from the object.
const generateIDSentinel = "_generate_uuid"

// Engine interprets delivered JSON objects against a manifest event map.
//
// For every object the first matching rule fires; objects matching no rule
// are dropped. Rule fields that resolve are attached to the emitted event,
// fields whose path does not resolve are omitted. Aside from minted
// tool-call ids, the engine is a pure function of its input bytes, so
// replaying a recorded stream produces the identical event sequence.
type Engine struct {
	rules   []manifest.EventRule
	stop    *manifest.MatchExpr
	partial []byte
}

func NewEngine(s *manifest.Streaming) *Engine {
	e := &Engine{}
	if s != nil {
		e.rules = s.EventMap
		e.stop = s.StopMatcher()
	}
	return e
}

// Feed consumes one delivered frame, which may hold zero or more JSON
// objects and may end mid-object. A trailing partial object is buffered and
// completed by the next frame; malformed input is dropped without ending
// the stream. stopped reports that the stop condition matched.
func (e *Engine) Feed(frame []byte) (events []llm.StreamEvent, stopped bool) {
	data := append(e.partial, frame...)
	e.partial = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	var lastGood int64
	for {
		var doc any
		err := dec.Decode(&doc)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				rem := bytes.TrimLeft(data[lastGood:], " \t\r\n")
				if len(rem) > 0 {
					e.partial = append([]byte(nil), rem...)
				}
			}
			// io.EOF is a clean boundary; anything else is dropped.
			break
		}
		lastGood = dec.InputOffset()

		if ev, ok := e.eventFor(doc); ok {
			events = append(events, ev)
		}
		if e.stop != nil && e.stop.Eval(doc) {
			stopped = true
			break
		}
	}
	return events, stopped
}

func (e *Engine) eventFor(doc any) (llm.StreamEvent, bool) {
	for i := range e.rules {
		rule := &e.rules[i]
		if !rule.Matcher().Eval(doc) {
			continue
		}
		return e.emit(rule, doc), true
	}
	return llm.StreamEvent{}, false
}

func (e *Engine) emit(rule *manifest.EventRule, doc any) llm.StreamEvent {
	vals := make(map[string]any, len(rule.Fields))
	for name, path := range rule.Fields {
		if v, ok := manifest.GetPath(doc, path); ok {
			vals[name] = v
		}
	}

	raw, _ := json.Marshal(doc)
	ev := llm.StreamEvent{RawJSON: raw}

	switch rule.Emit {
	case manifest.EmitPartialContentDelta:
		ev.Kind = llm.StreamEventPartDelta
		ev.ChoiceIndex = fieldInt(vals, "choice_index", "index")
		ev.PartDelta = &llm.PartDelta{
			Type:      llm.ContentPartText,
			TextDelta: fieldString(vals, "content", "text"),
		}

	case manifest.EmitThinkingDelta:
		ev.Kind = llm.StreamEventPartDelta
		ev.ChoiceIndex = fieldInt(vals, "choice_index", "index")
		ev.PartDelta = &llm.PartDelta{
			Type:      llm.ContentPartReasoning,
			TextDelta: fieldString(vals, "thinking", "content", "text"),
		}

	case manifest.EmitPartialToolCall:
		ev.Kind = llm.StreamEventToolCallDelta
		ev.ChoiceIndex = fieldInt(vals, "choice_index")
		ev.ToolCallDelta = &llm.ToolCallDelta{
			Index:          fieldInt(vals, "index", "tool_index"),
			ID:             toolCallID(rule, vals),
			Name:           fieldString(vals, "function_name", "tool_name", "name"),
			ArgumentsDelta: fieldString(vals, "arguments", "arguments_delta", "partial_json"),
		}

	case manifest.EmitToolCallStarted:
		ev.Kind = llm.StreamEventToolCallDelta
		ev.ChoiceIndex = fieldInt(vals, "choice_index")
		ev.ToolCallDelta = &llm.ToolCallDelta{
			Index: fieldInt(vals, "index", "tool_index"),
			ID:    toolCallID(rule, vals),
			Name:  fieldString(vals, "function_name", "tool_name", "name"),
		}

	case manifest.EmitToolCallEnded:
		ev.Kind = llm.StreamEventToolCallDone
		ev.ChoiceIndex = fieldInt(vals, "choice_index")
		ev.ToolCallDelta = &llm.ToolCallDelta{Index: fieldInt(vals, "index", "tool_index")}

	case manifest.EmitMetadata:
		ev.Kind = llm.StreamEventMetadata
		ev.ChoiceIndex = -1
		ev.Metadata = vals

	case manifest.EmitFinish:
		usage := usageFromValue(vals["usage"])
		reason := mapFinishReason(fieldString(vals, "finish_reason"))
		if reason == "" && usage != nil {
			ev.Kind = llm.StreamEventUsage
			ev.ChoiceIndex = -1
			ev.Usage = usage
			break
		}
		ev.Kind = llm.StreamEventChoiceDone
		ev.ChoiceIndex = fieldInt(vals, "choice_index", "index")
		ev.FinishReason = reason
		ev.Usage = usage

	case manifest.EmitStreamEnd:
		ev.Kind = llm.StreamEventDone
		ev.ChoiceIndex = -1
	}
	return ev
}

// usageFromValue reads a usage object extracted as a rule field.
func usageFromValue(v any) *llm.Usage {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	read := func(keys ...string) (int, bool) {
		for _, k := range keys {
			if f, ok := obj[k].(float64); ok {
				return int(f), true
			}
		}
		return 0, false
	}

	var u llm.Usage
	var found bool
	if n, ok := read("prompt_tokens", "input_tokens"); ok {
		u.PromptTokens = n
		found = true
	}
	if n, ok := read("completion_tokens", "output_tokens"); ok {
		u.CompletionTokens = n
		found = true
	}
	if n, ok := read("total_tokens"); ok {
		u.TotalTokens = n
		found = true
	}
	if u.Details = usageDetails(obj); u.Details != nil {
		found = true
	}
	if !found {
		return nil
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return &u
}

func toolCallID(rule *manifest.EventRule, vals map[string]any) string {
	if rule.Fields["tool_call_id"] == generateIDSentinel {
		return uuid.NewString()
	}
	return fieldString(vals, "tool_call_id", "id")
}

func fieldString(vals map[string]any, names ...string) string {
	for _, n := range names {
		if s, ok := vals[n].(string); ok {
			return s
		}
	}
	return ""
}

func fieldInt(vals map[string]any, names ...string) int {
	for _, n := range names {
		if f, ok := vals[n].(float64); ok {
			return int(f)
		}
	}
	return 0
}
