package routing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/llm/resilience"
)

type nopStream struct{}

func (nopStream) Recv() (llm.StreamEvent, error) { return llm.StreamEvent{}, io.EOF }
func (nopStream) Close() error                   { return nil }

// stub serves every call with a fixed outcome and counts calls.
type stub struct {
	name   string
	err    error
	models []string

	mu    sync.Mutex
	calls int
}

func (s *stub) Name() string { return s.name }

func (s *stub) record() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *stub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stub) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	s.record()
	if s.err != nil {
		return llm.ChatResponse{}, s.err
	}
	return llm.ChatResponse{ID: s.name}, nil
}

func (s *stub) ChatStream(ctx context.Context, req llm.ChatRequest) (llm.Stream, error) {
	s.record()
	if s.err != nil {
		return nil, s.err
	}
	return nopStream{}, nil
}

func (s *stub) ListModels(ctx context.Context) ([]string, error) {
	if s.err != nil && len(s.models) == 0 {
		return nil, s.err
	}
	return s.models, nil
}

// breakerStub exposes a breaker state like a resilience-wrapped candidate.
type breakerStub struct {
	*stub
	state resilience.State
}

func (b *breakerStub) BreakerState() resilience.State { return b.state }

func transientErr(provider string) error {
	return llm.NewError(provider, llm.ErrKindServer, "upstream down")
}

func chat(t *testing.T, p llm.Provider) llm.ChatResponse {
	t.Helper()
	resp, err := p.Chat(context.Background(), llm.ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	return resp
}

func TestFailover_SecondCandidateServes(t *testing.T) {
	a := &stub{name: "a", err: transientErr("a")}
	b := &stub{name: "b"}
	c := &stub{name: "c"}
	f, err := NewFailover([]llm.Provider{a, b, c})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}
	if got := f.Name(); got != "failover[a,b,c]" {
		t.Fatalf("Name = %q", got)
	}

	resp := chat(t, f)
	if resp.ID != "b" {
		t.Fatalf("served by %q, want b", resp.ID)
	}
	if a.count() != 1 || b.count() != 1 || c.count() != 0 {
		t.Fatalf("calls = a:%d b:%d c:%d, want 1/1/0", a.count(), b.count(), c.count())
	}
}

func TestFailover_ClientErrorAdvances(t *testing.T) {
	a := &stub{name: "a", err: llm.NewError("a", llm.ErrKindBadRequest, "unknown model")}
	b := &stub{name: "b"}
	f, err := NewFailover([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	resp := chat(t, f)
	if resp.ID != "b" {
		t.Fatalf("served by %q, want b", resp.ID)
	}
}

func TestFailover_ExhaustionTagsCandidateCount(t *testing.T) {
	a := &stub{name: "a", err: transientErr("a")}
	b := &stub{name: "b", err: transientErr("b")}
	c := &stub{name: "c", err: transientErr("c")}
	f, err := NewFailover([]llm.Provider{a, b, c})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	_, err = f.Chat(context.Background(), llm.ChatRequest{Model: "m"})
	if err == nil {
		t.Fatal("Chat succeeded, want error")
	}

	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("error %T is not *routing.Error", err)
	}
	if re.Tried != 3 {
		t.Fatalf("Tried = %d, want 3", re.Tried)
	}
	le, ok := llm.AsLLMError(err)
	if !ok || le.Provider != "c" {
		t.Fatalf("last error = %v, want candidate c's", err)
	}
	if a.count() != 1 || b.count() != 1 || c.count() != 1 {
		t.Fatalf("calls = a:%d b:%d c:%d, want 1/1/1", a.count(), b.count(), c.count())
	}
}

func TestFailover_AuthenticationStops(t *testing.T) {
	a := &stub{name: "a", err: llm.NewError("a", llm.ErrKindAuth, "bad key")}
	b := &stub{name: "b"}
	f, err := NewFailover([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	_, err = f.Chat(context.Background(), llm.ChatRequest{Model: "m"})
	if !llm.IsAuth(err) {
		t.Fatalf("error = %v, want authentication", err)
	}
	var re *Error
	if errors.As(err, &re) {
		t.Fatalf("auth stop should return the candidate error untouched, got %v", re)
	}
	if b.count() != 0 {
		t.Fatalf("candidate b called %d times after auth stop", b.count())
	}
}

func TestFailover_CanceledStops(t *testing.T) {
	a := &stub{name: "a", err: llm.NewError("a", llm.ErrKindCanceled, "caller gave up")}
	b := &stub{name: "b"}
	f, err := NewFailover([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	_, err = f.Chat(context.Background(), llm.ChatRequest{Model: "m"})
	le, ok := llm.AsLLMError(err)
	if !ok || le.Kind != llm.ErrKindCanceled {
		t.Fatalf("error = %v, want canceled", err)
	}
	if b.count() != 0 {
		t.Fatalf("candidate b called %d times after cancellation", b.count())
	}
}

func TestFailover_ChatStream(t *testing.T) {
	a := &stub{name: "a", err: transientErr("a")}
	b := &stub{name: "b"}
	f, err := NewFailover([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	stream, err := f.ChatStream(context.Background(), llm.ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	stream.Close()
	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("calls = a:%d b:%d, want 1/1", a.count(), b.count())
	}
}

func TestRoundRobin_RotatesAcrossCalls(t *testing.T) {
	a := &stub{name: "a"}
	b := &stub{name: "b"}
	rr, err := NewRoundRobin([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}
	if got := rr.Name(); got != "round_robin[a,b]" {
		t.Fatalf("Name = %q", got)
	}

	want := []string{"a", "b", "a", "b"}
	for i, w := range want {
		if resp := chat(t, rr); resp.ID != w {
			t.Fatalf("call %d served by %q, want %q", i, resp.ID, w)
		}
	}
	if a.count() != 2 || b.count() != 2 {
		t.Fatalf("calls = a:%d b:%d, want 2/2", a.count(), b.count())
	}
}

func TestRoundRobin_FailoverWithinCall(t *testing.T) {
	a := &stub{name: "a", err: transientErr("a")}
	b := &stub{name: "b"}
	rr, err := NewRoundRobin([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}

	if resp := chat(t, rr); resp.ID != "b" {
		t.Fatalf("call 1 served by %q, want b", resp.ID)
	}
	if resp := chat(t, rr); resp.ID != "b" {
		t.Fatalf("call 2 served by %q, want b", resp.ID)
	}
	if a.count() != 1 {
		t.Fatalf("a called %d times, want 1 (call 2 starts at b)", a.count())
	}
}

func TestRoundRobin_SkipsOpenBreaker(t *testing.T) {
	a := &breakerStub{stub: &stub{name: "a"}, state: resilience.StateOpen}
	b := &stub{name: "b"}
	rr, err := NewRoundRobin([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}

	for i := 0; i < 3; i++ {
		if resp := chat(t, rr); resp.ID != "b" {
			t.Fatalf("call %d served by %q, want b", i, resp.ID)
		}
	}
	if a.count() != 0 {
		t.Fatalf("open candidate a called %d times, want 0", a.count())
	}
}

func TestRoundRobin_AllOpenStillExercised(t *testing.T) {
	a := &breakerStub{stub: &stub{name: "a", err: transientErr("a")}, state: resilience.StateOpen}
	b := &breakerStub{stub: &stub{name: "b", err: transientErr("b")}, state: resilience.StateOpen}
	rr, err := NewRoundRobin([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}

	_, err = rr.Chat(context.Background(), llm.ChatRequest{Model: "m"})
	var re *Error
	if !errors.As(err, &re) || re.Tried != 2 {
		t.Fatalf("error = %v, want 2 candidates tried", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Fatalf("calls = a:%d b:%d, want 1/1", a.count(), b.count())
	}
}

func TestComposite_Recursive(t *testing.T) {
	a := &stub{name: "a", err: transientErr("a")}
	b := &stub{name: "b", err: transientErr("b")}
	c := &stub{name: "c"}

	inner, err := NewRoundRobin([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewRoundRobin: %v", err)
	}
	outer, err := NewFailover([]llm.Provider{inner, c})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	resp := chat(t, outer)
	if resp.ID != "c" {
		t.Fatalf("served by %q, want c", resp.ID)
	}
	if a.count() != 1 || b.count() != 1 || c.count() != 1 {
		t.Fatalf("calls = a:%d b:%d c:%d, want 1/1/1", a.count(), b.count(), c.count())
	}
}

func TestComposite_ListModelsUnion(t *testing.T) {
	a := &stub{name: "a", models: []string{"m2", "m1"}}
	b := &stub{name: "b", models: []string{"m2", "m3"}}
	f, err := NewFailover([]llm.Provider{a, b})
	if err != nil {
		t.Fatalf("NewFailover: %v", err)
	}

	models, err := f.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"m1", "m2", "m3"}
	if len(models) != len(want) {
		t.Fatalf("ListModels = %v, want %v", models, want)
	}
	for i := range want {
		if models[i] != want[i] {
			t.Fatalf("ListModels = %v, want %v", models, want)
		}
	}
}

func TestNew_PlanDispatch(t *testing.T) {
	a := &stub{name: "a"}

	p, err := New(Plan{Strategy: StrategyFailover, Candidates: []llm.Provider{a}})
	if err != nil {
		t.Fatalf("New failover: %v", err)
	}
	if _, ok := p.(*Failover); !ok {
		t.Fatalf("New failover returned %T", p)
	}

	p, err = New(Plan{Strategy: StrategyRoundRobin, Candidates: []llm.Provider{a}})
	if err != nil {
		t.Fatalf("New round_robin: %v", err)
	}
	if _, ok := p.(*RoundRobin); !ok {
		t.Fatalf("New round_robin returned %T", p)
	}

	if _, err := New(Plan{Strategy: "weighted", Candidates: []llm.Provider{a}}); err == nil {
		t.Fatal("New accepted unknown strategy")
	}
	if _, err := New(Plan{Strategy: StrategyFailover}); err == nil {
		t.Fatal("New accepted empty candidate list")
	}
}
