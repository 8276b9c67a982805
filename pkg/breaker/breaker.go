package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned without calling the upstream.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
	DefaultHalfOpenSuccess  = 2
)

type Settings struct {
	// FailureThreshold consecutive failures in CLOSED trip the breaker.
	FailureThreshold int
	// ResetTimeout is the cooldown spent in OPEN before a probe is admitted.
	ResetTimeout time.Duration
	// HalfOpenSuccess successful probes close the breaker again.
	HalfOpenSuccess int
	// OnStateChange is called after every transition, outside any CAS loop.
	OnStateChange func(name string, from, to State)
	// Now defaults to time.Now.
	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = DefaultResetTimeout
	}
	if s.HalfOpenSuccess <= 0 {
		s.HalfOpenSuccess = DefaultHalfOpenSuccess
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Counts is a point-in-time view of a breaker.
type Counts struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	HalfOpenSuccesses   int       `json:"half_open_successes"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
}

// snapshot is never mutated once published. Every state change bumps
// generation, so outcomes of calls admitted under an older state are dropped.
type snapshot struct {
	state        State
	failures     int
	successes    int
	openedAt     time.Time
	probing      bool
	probeStarted time.Time
	generation   uint64
}

// Breaker is a lock-free circuit breaker for a single upstream.
type Breaker struct {
	name     string
	settings Settings
	current  atomic.Pointer[snapshot]
}

func New(name string, settings Settings) *Breaker {
	b := &Breaker{name: name, settings: settings.withDefaults()}
	b.current.Store(&snapshot{state: StateClosed})
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) State() State {
	return b.current.Load().state
}

func (b *Breaker) Counts() Counts {
	cur := b.current.Load()
	return Counts{
		State:               cur.state,
		ConsecutiveFailures: cur.failures,
		HalfOpenSuccesses:   cur.successes,
		OpenedAt:            cur.openedAt,
	}
}

// Allow asks for permission to call the upstream. On success the caller must
// invoke done exactly once with the outcome; extra calls are ignored.
//
// In OPEN, the first caller after the cooldown moves the breaker to HALF_OPEN
// and becomes the probe. While a probe is in flight every other caller is
// rejected. A probe that never reports back is replaced after another
// cooldown.
func (b *Breaker) Allow() (done func(success bool), err error) {
	for {
		cur := b.current.Load()
		now := b.settings.Now()

		switch cur.state {
		case StateClosed:
			return b.doneFunc(cur.generation), nil

		case StateOpen:
			if now.Sub(cur.openedAt) < b.settings.ResetTimeout {
				return nil, ErrCircuitOpen
			}
			next := &snapshot{
				state:        StateHalfOpen,
				probing:      true,
				probeStarted: now,
				generation:   cur.generation + 1,
			}
			if b.current.CompareAndSwap(cur, next) {
				b.notify(StateOpen, StateHalfOpen)
				return b.doneFunc(next.generation), nil
			}

		case StateHalfOpen:
			next := *cur
			if cur.probing {
				if now.Sub(cur.probeStarted) < b.settings.ResetTimeout {
					return nil, ErrCircuitOpen
				}
				next.generation++
			}
			next.probing = true
			next.probeStarted = now
			if b.current.CompareAndSwap(cur, &next) {
				return b.doneFunc(next.generation), nil
			}
		}
	}
}

// Execute runs fn if the breaker admits it. A nil error counts as success.
func (b *Breaker) Execute(fn func() error) error {
	done, err := b.Allow()
	if err != nil {
		return err
	}
	err = fn()
	done(err == nil)
	return err
}

func (b *Breaker) doneFunc(generation uint64) func(bool) {
	var once sync.Once
	return func(success bool) {
		once.Do(func() {
			b.onResult(generation, success)
		})
	}
}

func (b *Breaker) onResult(generation uint64, success bool) {
	for {
		cur := b.current.Load()
		if cur.generation != generation {
			return
		}

		var next *snapshot
		switch cur.state {
		case StateClosed:
			if success {
				if cur.failures == 0 {
					return
				}
				next = &snapshot{state: StateClosed, generation: cur.generation}
			} else if cur.failures+1 >= b.settings.FailureThreshold {
				next = b.opened(cur)
			} else {
				n := *cur
				n.failures++
				next = &n
			}

		case StateHalfOpen:
			if !success {
				next = b.opened(cur)
			} else if cur.successes+1 >= b.settings.HalfOpenSuccess {
				next = &snapshot{state: StateClosed, generation: cur.generation + 1}
			} else {
				n := *cur
				n.successes++
				n.probing = false
				next = &n
			}

		default:
			return
		}

		if b.current.CompareAndSwap(cur, next) {
			if next.state != cur.state {
				b.notify(cur.state, next.state)
			}
			return
		}
	}
}

func (b *Breaker) opened(cur *snapshot) *snapshot {
	return &snapshot{
		state:      StateOpen,
		failures:   cur.failures + 1,
		openedAt:   b.settings.Now(),
		generation: cur.generation + 1,
	}
}

func (b *Breaker) notify(from, to State) {
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
