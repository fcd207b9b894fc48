package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/lgc202/ai-kit/llm"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets calls through and counts consecutive failures.
	StateClosed State = iota

	// StateOpen rejects calls without touching the backend until the
	// cooldown elapses.
	StateOpen

	// StateHalfOpen admits exactly one trial call. Its outcome decides
	// whether the breaker closes again or reopens.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow when the breaker is rejecting calls.
var ErrOpen = errors.New("resilience: circuit breaker open")

// BreakerConfig controls when a Breaker trips and recovers.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open. Defaults to 5.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before admitting a
	// trial call. Defaults to 30 seconds.
	Cooldown time.Duration

	// SuccessThreshold is the number of consecutive half-open trial
	// successes required to close the breaker. Defaults to 1.
	SuccessThreshold int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	return c
}

// Breaker is a circuit breaker over a single upstream. Callers reserve a
// slot with Allow, run the call, and report the outcome with Record.
// Every transition happens under one lock, so concurrent callers observe
// a consistent state and the half-open trial slot is handed out once.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
	probing   bool

	onChange func(State)

	now func() time.Time
}

// NewBreaker returns a closed Breaker with the given thresholds.
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

// OnStateChange registers fn to run, under the breaker lock, whenever the
// state transitions. Used for metrics and logging hooks.
func (b *Breaker) OnStateChange(fn func(State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

// Allow reserves permission for one call. It returns ErrOpen while the
// breaker is rejecting traffic. When the cooldown has elapsed the breaker
// moves to half-open and admits a single trial; concurrent callers racing
// for that slot all see ErrOpen until the trial reports its outcome.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
	return ErrOpen
}

// Record reports the outcome of a call admitted by Allow. A nil error is
// a success; it resets the failure count and closes a half-open breaker.
// A failure increments the count, trips the breaker at the threshold, and
// reopens a half-open breaker with a fresh cooldown.
//
// Calls that failed only because the caller gave up (kind "canceled") are
// neutral: they say nothing about the backend's health, so they neither
// trip nor reset the breaker. A canceled half-open trial releases the
// trial slot for the next caller.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.recordSuccess()
	case isNeutral(err):
		if b.state == StateHalfOpen {
			b.probing = false
		}
	default:
		b.recordFailure()
	}
}

// State reports the breaker state as a caller would experience it now: an
// open breaker whose cooldown has elapsed reports half-open, since the
// next Allow would admit a trial.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) recordSuccess() {
	b.failures = 0
	if b.state == StateHalfOpen {
		b.probing = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.successes = 0
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) recordFailure() {
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.probing = false
		b.failures = 0
		b.successes = 0
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(s State) {
	if s == b.state {
		return
	}
	b.state = s
	if b.onChange != nil {
		b.onChange(s)
	}
}

func isNeutral(err error) bool {
	if le, ok := llm.AsLLMError(err); ok {
		return le.Kind == llm.ErrKindCanceled
	}
	return false
}
