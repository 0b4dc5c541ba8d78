// Package breaker implements the per-processor circuit breaker: a
// three-state machine (closed/open/half-open) wrapped around a rolling
// sample window, and the registry that maps processor name to breaker.
//
// State is guarded by a mutex scoped strictly to transitions — no lock
// is ever held across a suspension point.
package breaker

import (
	"sync"
	"time"

	"github.com/orbitpay/switchboard/internal/logging"
	"github.com/orbitpay/switchboard/internal/outcome"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config holds the trip threshold, cooldown, and minimum-sample
// parameters for one breaker.
type Config struct {
	WindowSize    int
	WindowAge     time.Duration
	TripThreshold float64
	Cooldown      time.Duration
	MinSamples    int
}

// Decision is the result of an admission check.
type Decision struct {
	Pass    bool
	IsProbe bool
	Reason  string // populated when Pass is false, e.g. "circuit_open"
}

// StatusReport mirrors the GET /processors/status wire schema for one
// processor.
type StatusReport struct {
	Name                   string
	State                  State
	SuccessRate            float64
	TotalCallsInWindow     int
	SuccessfulCallsInWindow int
	FailedCallsInWindow    int
	LastFailureAt          *time.Time
	CooldownRemaining      *time.Duration
}

// Breaker is one processor's circuit breaker. All mutations to its
// state and window happen under mu; the caller's downstream call
// (Charge), the backoff sleep, and the timeout wait always happen
// outside any Breaker method call.
type Breaker struct {
	name   string
	cfg    Config
	logger logging.Logger

	mu               sync.Mutex
	state            State
	openedAt         *time.Time
	window           *Window
	halfOpenInFlight bool
	lastFailureAt    *time.Time
}

// New constructs a breaker in the closed state with an empty window.
func New(name string, cfg Config, logger logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.WithComponent("breaker"),
		state:  Closed,
		window: NewWindow(cfg.WindowSize, cfg.WindowAge),
	}
}

// Allow evaluates admission for the given processor at time `now`,
// transitioning OPEN -> HALF_OPEN when the cooldown has elapsed.
func (b *Breaker) Allow(now time.Time) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return Decision{Pass: true}

	case Open:
		if b.openedAt != nil && !now.Before(b.openedAt.Add(b.cfg.Cooldown)) {
			b.transitionTo(HalfOpen, now)
			b.halfOpenInFlight = true
			return Decision{Pass: true, IsProbe: true}
		}
		return Decision{Pass: false, Reason: "circuit_open"}

	case HalfOpen:
		if b.halfOpenInFlight {
			return Decision{Pass: false, Reason: "circuit_open"}
		}
		b.halfOpenInFlight = true
		return Decision{Pass: true, IsProbe: true}

	default:
		return Decision{Pass: false, Reason: "circuit_open"}
	}
}

// RecordSuccess records a successful attempt. A success while
// half-open fully closes the breaker and clears the window so recovery
// does not inherit stale failures.
func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasHalfOpen := b.state == HalfOpen
	b.window.Record(true, now)
	b.halfOpenInFlight = false

	if wasHalfOpen {
		b.closeAndReset(now)
		return
	}
	b.evaluateTrip(now)
}

// RecordFailure records a non-success attempt. HARD_DECLINE is never
// recorded into the window (it reflects a cardholder-level outcome,
// not processor health); every other kind is.
func (b *Breaker) RecordFailure(now time.Time, kind outcome.Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasHalfOpen := b.state == HalfOpen
	b.halfOpenInFlight = false
	b.lastFailureAt = ptrTime(now)

	if !kind.CountsTowardHealth() {
		// HARD_DECLINE: no window write, no trip re-evaluation. A
		// half-open probe that hard-declines still reverts to open,
		// since the probe itself did not demonstrate recovery.
		if wasHalfOpen {
			b.transitionTo(Open, now)
		}
		return
	}

	b.window.Record(false, now)

	if wasHalfOpen {
		b.transitionTo(Open, now)
		return
	}
	b.evaluateTrip(now)
}

// evaluateTrip must be called with mu held. It trips CLOSED -> OPEN
// when total >= MinSamples and the success rate falls below the trip
// threshold.
func (b *Breaker) evaluateTrip(now time.Time) {
	if b.state != Closed {
		return
	}
	total, successes := b.window.Snapshot(now)
	if total < b.cfg.MinSamples {
		return
	}
	rate := float64(successes) / float64(total)
	if rate < b.cfg.TripThreshold {
		b.transitionTo(Open, now)
	}
}

func (b *Breaker) closeAndReset(now time.Time) {
	b.window.Reset()
	b.transitionTo(Closed, now)
}

// transitionTo must be called with mu held.
func (b *Breaker) transitionTo(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Closed:
		b.openedAt = nil
	case Open, HalfOpen:
		if to == Open || b.openedAt == nil {
			b.openedAt = ptrTime(now)
		}
	}
	b.logger.Info("circuit breaker state change", map[string]interface{}{
		"processor":  b.name,
		"from_state": string(from),
		"to_state":   string(to),
	})
}

// Status renders a point-in-time report for the admin/status surface.
func (b *Breaker) Status(now time.Time) StatusReport {
	b.mu.Lock()
	defer b.mu.Unlock()

	total, successes := b.window.Snapshot(now)
	failed := total - successes
	rate := 1.0
	if total > 0 {
		rate = float64(successes) / float64(total)
	}

	var cooldownRemaining *time.Duration
	if b.state != Closed && b.openedAt != nil {
		remaining := b.openedAt.Add(b.cfg.Cooldown).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		cooldownRemaining = &remaining
	}

	return StatusReport{
		Name:                    b.name,
		State:                   b.state,
		SuccessRate:             rate,
		TotalCallsInWindow:      total,
		SuccessfulCallsInWindow: successes,
		FailedCallsInWindow:     failed,
		LastFailureAt:           b.lastFailureAt,
		CooldownRemaining:       cooldownRemaining,
	}
}

// Reset returns the breaker to CLOSED with an empty window (admin op).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.Reset()
	b.state = Closed
	b.openedAt = nil
	b.halfOpenInFlight = false
	b.lastFailureAt = nil
}

// InjectFailures appends k failure samples at the current time and
// forces an immediate trip evaluation (admin/testing op).
func (b *Breaker) InjectFailures(k int, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.InjectFailures(k, now)
	b.evaluateTrip(now)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
