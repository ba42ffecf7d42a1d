// Package resilience provides the circuit breaker that guards calls to
// external model APIs.
//
// [Breaker] follows the usual closed, open and half-open cycle: consecutive
// failures trip it open, calls are then refused until a cooldown elapses,
// and a short probe phase decides whether it closes again or trips back.
// All methods are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker refuses calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen refuses every call with [ErrOpen] until the cooldown
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through to decide
	// whether the guarded dependency has recovered.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the tuning knobs for a [Breaker]. Zero values fall back to
// defaults.
type Config struct {
	// Name labels the breaker in log messages.
	Name string

	// Threshold is the number of consecutive failures that trip the
	// breaker open. Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// ProbeMax is the number of calls allowed through while half-open.
	// Default: 3.
	ProbeMax int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probeMax  int

	mu         sync.Mutex
	state      State
	fails      int
	lastFail   time.Time
	probes     int
	probeFails int
}

// New creates a [Breaker] from cfg.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeMax <= 0 {
		cfg.ProbeMax = 3
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		probeMax:  cfg.ProbeMax,
		state:     StateClosed,
	}
}

// Do runs fn if the breaker allows it. While open it returns [ErrOpen]
// without calling fn; while half-open only a limited number of probe calls
// get through.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFail) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("circuit breaker half-open", "name", b.name)

	case StateHalfOpen:
		if b.probes >= b.probeMax {
			b.mu.Unlock()
			return ErrOpen
		}
	}

	probing := b.state == StateHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.fail(probing)
	} else {
		b.succeed(probing)
	}
	return err
}

// fail records a failed call. Caller holds b.mu.
func (b *Breaker) fail(probing bool) {
	b.lastFail = time.Now()

	if probing {
		// A single failed probe trips the breaker straight back open.
		b.probeFails++
		b.state = StateOpen
		b.fails = b.threshold
		slog.Warn("circuit breaker re-opened during probe", "name", b.name)
		return
	}

	b.fails++
	if b.fails >= b.threshold {
		b.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", b.name,
			"consecutive_failures", b.fails)
	}
}

// succeed records a successful call. Caller holds b.mu.
func (b *Breaker) succeed(probing bool) {
	if probing {
		if b.probes-b.probeFails >= b.probeMax {
			b.state = StateClosed
			b.fails = 0
			b.probes = 0
			b.probeFails = 0
			slog.Info("circuit breaker closed after successful probes", "name", b.name)
		}
		return
	}

	b.fails = 0
}

// State returns the current [State]. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the actual transition happens on the
// next [Breaker.Do] call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.lastFail) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [StateClosed] and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.fails = 0
	b.probes = 0
	b.probeFails = 0
	slog.Info("circuit breaker manually reset", "name", b.name)
}
