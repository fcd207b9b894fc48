package llm

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
)

// Stream yields StreamEvent values until io.EOF.
//
// Implementations should return io.EOF once the stream finishes normally.
type Stream interface {
	Recv() (StreamEvent, error)
	Close() error
}

type StreamEventKind string

const (
	// StreamEventPartDelta carries an incremental piece of message content
	// (text or reasoning) for one choice.
	StreamEventPartDelta StreamEventKind = "part_delta"

	// StreamEventToolCallDelta carries an incremental piece of a tool call:
	// its id/name when the call starts, argument fragments as they stream.
	StreamEventToolCallDelta StreamEventKind = "tool_call_delta"

	// StreamEventToolCallDone marks a tool call's arguments complete.
	StreamEventToolCallDone StreamEventKind = "tool_call_done"

	// StreamEventMetadata carries provider-specific stream metadata.
	StreamEventMetadata StreamEventKind = "metadata"

	// StreamEventUsage carries token accounting, typically once near the end.
	StreamEventUsage StreamEventKind = "usage"

	// StreamEventChoiceDone marks one choice finished, with its reason.
	StreamEventChoiceDone StreamEventKind = "choice_done"

	// StreamEventDone marks the whole stream finished. ChoiceIndex is -1.
	StreamEventDone StreamEventKind = "done"
)

// PartDelta is an incremental piece of one content part.
type PartDelta struct {
	Type      ContentPartType
	TextDelta string
}

type ToolCallDelta struct {
	Index int
	ID    string
	Name  string

	ArgumentsDelta string
}

type StreamEvent struct {
	Kind StreamEventKind

	// ChoiceIndex is the candidate the event belongs to, or -1 for
	// stream-level events.
	ChoiceIndex int

	PartDelta     *PartDelta
	ToolCallDelta *ToolCallDelta
	Usage         *Usage
	Metadata      map[string]any

	FinishReason FinishReason
	RawJSON      json.RawMessage
}

func (e StreamEvent) Done() bool { return e.Kind == StreamEventDone }

var ErrStreamClosed = errors.New("llm: stream closed")

// Accumulator rebuilds a final response from a stream of events.
//
// It is intentionally tolerant: partial tool call deltas, interleaved
// choices, and usage arriving before or after choice completion all work.
// The zero value is ready to use.
type Accumulator struct {
	choices map[int]*streamChoice
	usage   *Usage
	meta    map[string]any
}

type streamChoice struct {
	parts     []ContentPart
	toolCalls []ToolCall
	finish    FinishReason
}

func (a *Accumulator) choice(index int) *streamChoice {
	if index < 0 {
		index = 0
	}
	if a.choices == nil {
		a.choices = make(map[int]*streamChoice)
	}
	c := a.choices[index]
	if c == nil {
		c = &streamChoice{}
		a.choices[index] = c
	}
	return c
}

func (a *Accumulator) Apply(ev StreamEvent) {
	switch ev.Kind {
	case StreamEventPartDelta:
		if ev.PartDelta == nil || ev.PartDelta.TextDelta == "" {
			return
		}
		c := a.choice(ev.ChoiceIndex)
		if n := len(c.parts); n > 0 && c.parts[n-1].Type == ev.PartDelta.Type {
			c.parts[n-1].Text += ev.PartDelta.TextDelta
			return
		}
		c.parts = append(c.parts, ContentPart{Type: ev.PartDelta.Type, Text: ev.PartDelta.TextDelta})

	case StreamEventToolCallDelta:
		if ev.ToolCallDelta == nil {
			return
		}
		c := a.choice(ev.ChoiceIndex)
		idx := ev.ToolCallDelta.Index
		if idx < 0 {
			idx = 0
		}
		for len(c.toolCalls) <= idx {
			c.toolCalls = append(c.toolCalls, ToolCall{})
		}
		tc := &c.toolCalls[idx]
		if ev.ToolCallDelta.ID != "" {
			tc.ID = ev.ToolCallDelta.ID
		}
		if ev.ToolCallDelta.Name != "" {
			tc.Name = ev.ToolCallDelta.Name
		}
		tc.ArgumentsText += ev.ToolCallDelta.ArgumentsDelta

	case StreamEventToolCallDone:
		// Arguments are sealed in FinalResponse; nothing to do per-event.

	case StreamEventUsage:
		if ev.Usage != nil {
			cpy := *ev.Usage
			a.usage = &cpy
		}

	case StreamEventMetadata:
		if len(ev.Metadata) == 0 {
			return
		}
		if a.meta == nil {
			a.meta = make(map[string]any, len(ev.Metadata))
		}
		for k, v := range ev.Metadata {
			a.meta[k] = v
		}

	case StreamEventChoiceDone:
		c := a.choice(ev.ChoiceIndex)
		if ev.FinishReason != "" {
			c.finish = ev.FinishReason
		}
		if ev.Usage != nil {
			cpy := *ev.Usage
			a.usage = &cpy
		}

	case StreamEventDone:
		if ev.Usage != nil {
			cpy := *ev.Usage
			a.usage = &cpy
		}
	}
}

// FinalResponse assembles the accumulated choices, ordered by index.
func (a *Accumulator) FinalResponse() ChatResponse {
	idxs := make([]int, 0, len(a.choices))
	for i := range a.choices {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	choices := make([]ChatChoice, 0, len(idxs))
	for _, i := range idxs {
		c := a.choices[i]
		msg := Message{Role: RoleAssistant}
		if len(c.parts) > 0 {
			msg.Parts = append([]ContentPart(nil), c.parts...)
		}
		if len(c.toolCalls) > 0 {
			msg.ToolCalls = append([]ToolCall(nil), c.toolCalls...)
			// Best-effort: promote ArgumentsText to JSON bytes.
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				if len(tc.Arguments) == 0 && tc.ArgumentsText != "" && json.Valid([]byte(tc.ArgumentsText)) {
					tc.Arguments = json.RawMessage(tc.ArgumentsText)
				}
			}
		}
		choices = append(choices, ChatChoice{Index: i, Message: msg, FinishReason: c.finish})
	}

	resp := ChatResponse{Choices: choices}
	if a.usage != nil {
		cpy := *a.usage
		resp.Usage = &cpy
	}
	if len(a.meta) > 0 {
		resp.Meta = a.meta
	}
	return resp
}

// DrainStream consumes the whole stream and rebuilds the final response.
// The stream is always closed.
func DrainStream(stream Stream) (ChatResponse, error) {
	defer stream.Close()

	var acc Accumulator
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return ChatResponse{}, err
		}
		acc.Apply(ev)
	}
	return acc.FinalResponse(), nil
}
