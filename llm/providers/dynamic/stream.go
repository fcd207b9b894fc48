package dynamic

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/manifest"
	"github.com/lgc202/ai-kit/metrics"
)

type stream struct {
	provider string
	resp     *http.Response
	framer   framer
	engine   *Engine

	doneSignal []byte

	closed bool
	done   bool

	pending []llm.StreamEvent
	met     *metrics.Metrics
}

func newStream(provider string, resp *http.Response, cfg *manifest.Streaming, met *metrics.Metrics) *stream {
	done := "[DONE]"
	var dec *manifest.Decoder
	if cfg != nil {
		dec = cfg.Decoder
	}
	if dec != nil && dec.DoneSignal != "" {
		done = dec.DoneSignal
	}
	return &stream{
		provider:   provider,
		resp:       resp,
		framer:     newFramer(resp.Body, dec),
		engine:     NewEngine(cfg),
		doneSignal: []byte(done),
		met:        met,
	}
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}

func (s *stream) Recv() (llm.StreamEvent, error) {
	if s.closed {
		return llm.StreamEvent{}, llm.ErrStreamClosed
	}
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			if ev.Done() {
				s.done = true
			}
			s.met.StreamEventObserved(s.provider, string(ev.Kind))
			return ev, nil
		}
		if s.done {
			return llm.StreamEvent{}, io.EOF
		}

		frame, err := s.framer.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Some backends close the connection without a done signal.
				s.done = true
				s.met.StreamEventObserved(s.provider, string(llm.StreamEventDone))
				return llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1}, nil
			}
			return llm.StreamEvent{}, llm.ClassifyTransport(s.provider, err)
		}

		frame = bytes.TrimSpace(frame)
		if bytes.Equal(frame, s.doneSignal) {
			s.done = true
			s.met.StreamEventObserved(s.provider, string(llm.StreamEventDone))
			return llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1}, nil
		}

		events, stopped := s.engine.Feed(frame)
		if stopped && !containsDone(events) {
			events = append(events, llm.StreamEvent{Kind: llm.StreamEventDone, ChoiceIndex: -1})
		}
		// Frames matching no rule queue nothing; loop to the next frame.
		s.pending = append(s.pending, events...)
	}
}

func containsDone(events []llm.StreamEvent) bool {
	for _, ev := range events {
		if ev.Done() {
			return true
		}
	}
	return false
}
