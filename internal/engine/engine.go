// Package engine implements the fallback orchestration engine: it
// ranks processors by fee rate, consults each one's circuit breaker,
// invokes the processor under a hard wall-clock timeout, classifies
// the outcome, and either returns, retries the same processor after a
// backoff delay, or advances to the next processor.
//
// The ranking-then-sequential-fallback shape is grounded on this
// pack's own payment
// orchestrator reference
// (other_examples/.../nimbus-payment-orchestrator/orchestrator.go);
// the per-call timeout's goroutine+channel+recover shape is grounded
// on resilience.CircuitBreaker.ExecuteWithTimeout.
package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/orbitpay/switchboard/internal/backoff"
	"github.com/orbitpay/switchboard/internal/breaker"
	"github.com/orbitpay/switchboard/internal/logging"
	"github.com/orbitpay/switchboard/internal/money"
	"github.com/orbitpay/switchboard/internal/outcome"
	"github.com/orbitpay/switchboard/internal/processor"
	"github.com/orbitpay/switchboard/internal/stats"
	"github.com/orbitpay/switchboard/internal/txn"
)

// Status is the business outcome of a transaction.
type Status string

const (
	Approved Status = "approved"
	Declined Status = "declined"
)

// DeclineType distinguishes a cardholder-level decline from an
// operational one.
type DeclineType string

const (
	DeclineHard DeclineType = "hard"
	DeclineSoft DeclineType = "soft"
)

// Response is the engine's single authoritative outcome for a
// transaction, carrying the audit trail of what was tried and why.
type Response struct {
	TransactionID   string
	Status          Status
	ProcessorUsed   string
	Amount          money.Money
	Currency        txn.Currency
	Fee             *money.Money
	FeeRate         *float64
	DeclineReason   string
	DeclineType     DeclineType
	Attempts        int
	ProcessorsTried []string
	LatencyMS       float64
	ProcessedAt     time.Time
}

// Clock abstracts time.Now so tests can inject a deterministic time
// source. One clock serves cooldown checks, latency, and ProcessedAt.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Engine orchestrates ranking, admission, timeout, and classification
// across a fixed set of processors.
type Engine struct {
	processors []processor.Processor
	registry   *breaker.Registry
	backoff    *backoff.Controller
	sink       stats.Sink
	timeout    time.Duration
	clock      Clock
	logger     logging.Logger
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the engine's time source (wall clock by default).
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger overrides the engine's logger (no-op by default).
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l.WithComponent("engine") }
}

// New constructs an Engine over the given processors, sharing one
// breaker registry and backoff controller across every transaction it
// processes.
func New(processors []processor.Processor, registry *breaker.Registry, bc *backoff.Controller, sink stats.Sink, timeout time.Duration, opts ...Option) *Engine {
	e := &Engine{
		processors: processors,
		registry:   registry,
		backoff:    bc,
		sink:       sink,
		timeout:    timeout,
		clock:      realClock{},
		logger:     logging.NoOp{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// candidates returns the configured processors sorted by ascending fee
// rate, breaking ties by registration order. Ranking is recomputed on
// every call: fee rates are configuration-static, but keeping the
// ranking call free of cached state keeps the orchestration contract
// simple to reason about.
func (e *Engine) candidates() []processor.Processor {
	ranked := make([]processor.Processor, len(e.processors))
	copy(ranked, e.processors)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FeeRate() < ranked[j].FeeRate()
	})
	return ranked
}

// Processors returns the engine's ranked candidate list, for admin and
// status surfaces that need each processor's fee rate alongside its
// breaker state.
func (e *Engine) Processors() []processor.Processor {
	return e.candidates()
}

// Process runs the fallback algorithm for one transaction request.
// Processors are tried strictly sequentially; at most one Charge call
// is ever in flight for a given request.
func (e *Engine) Process(ctx context.Context, req txn.Request) Response {
	start := e.clock.Now()
	attempts := 0
	var trail []string
	var lastOutcome outcome.Outcome
	var lastProcessor string

	for _, p := range e.candidates() {
		b, err := e.registry.Get(p.Name())
		if err != nil {
			// Every configured processor must have a breaker seeded at
			// startup; treat a missing one as "never admit" rather
			// than panicking mid-transaction.
			trail = append(trail, fmt.Sprintf("%s(circuit_open)", p.Name()))
			continue
		}

		decision := b.Allow(e.clock.Now())
		if !decision.Pass {
			trail = append(trail, fmt.Sprintf("%s(%s)", p.Name(), decision.Reason))
			continue
		}

		maxAttempts := e.backoff.MaxRetries() + 1
		for attemptIdx := 0; attemptIdx < maxAttempts; attemptIdx++ {
			select {
			case <-ctx.Done():
				return e.cancelledResponse(req, start, attempts, trail)
			default:
			}

			attempts++
			attemptStart := e.clock.Now()
			o := e.invoke(ctx, p, req)
			latencyMS := float64(e.clock.Now().Sub(attemptStart)) / float64(time.Millisecond)

			now := e.clock.Now()
			e.recordBreaker(b, now, o)

			var fee *money.Money
			if o.Kind == outcome.Success {
				f := req.Amount().Fee(p.FeeRate())
				fee = &f
			}
			e.recordStats(ctx, p.Name(), req, o, latencyMS, fee)

			lastOutcome = o
			lastProcessor = p.Name()

			switch o.Kind {
			case outcome.Success:
				trail = append(trail, fmt.Sprintf("%s(%s)", p.Name(), o.TrailEvent()))
				rate := p.FeeRate()
				return Response{
					TransactionID:   req.TransactionID(),
					Status:          Approved,
					ProcessorUsed:   p.Name(),
					Amount:          req.Amount(),
					Currency:        req.Currency(),
					Fee:             fee,
					FeeRate:         &rate,
					Attempts:        attempts,
					ProcessorsTried: trail,
					LatencyMS:       float64(e.clock.Now().Sub(start)) / float64(time.Millisecond),
					ProcessedAt:     e.clock.Now(),
				}

			case outcome.HardDecline:
				trail = append(trail, fmt.Sprintf("%s(%s)", p.Name(), o.TrailEvent()))
				return Response{
					TransactionID:   req.TransactionID(),
					Status:          Declined,
					ProcessorUsed:   p.Name(),
					Amount:          req.Amount(),
					Currency:        req.Currency(),
					DeclineReason:   o.Reason,
					DeclineType:     DeclineHard,
					Attempts:        attempts,
					ProcessorsTried: trail,
					LatencyMS:       float64(e.clock.Now().Sub(start)) / float64(time.Millisecond),
					ProcessedAt:     e.clock.Now(),
				}

			case outcome.SoftDecline:
				trail = append(trail, fmt.Sprintf("%s(%s)", p.Name(), o.TrailEvent()))
				attemptIdx = maxAttempts // break retry loop, advance processor

			case outcome.Timeout:
				trail = append(trail, fmt.Sprintf("%s(%s)", p.Name(), o.TrailEvent()))
				attemptIdx = maxAttempts // break retry loop, advance processor

			case outcome.RateLimited:
				trail = append(trail, fmt.Sprintf("%s(%s)", p.Name(), o.TrailEvent()))
				if attemptIdx < e.backoff.MaxRetries() {
					delay := e.backoff.Delay(attemptIdx)
					if !e.sleep(ctx, delay) {
						return e.cancelledResponse(req, start, attempts, trail)
					}
					continue // retry same processor
				}
				attemptIdx = maxAttempts // retries exhausted, advance processor
			}
		}
	}

	// All processors exhausted with no success and no hard decline.
	return Response{
		TransactionID:   req.TransactionID(),
		Status:          Declined,
		ProcessorUsed:   lastProcessor,
		Amount:          req.Amount(),
		Currency:        req.Currency(),
		DeclineReason:   lastOutcome.Reason,
		DeclineType:     DeclineSoft,
		Attempts:        attempts,
		ProcessorsTried: trail,
		LatencyMS:       float64(e.clock.Now().Sub(start)) / float64(time.Millisecond),
		ProcessedAt:     e.clock.Now(),
	}
}

// invoke runs p.Charge(ctx, req) under the engine's hard wall-clock
// timeout, cancelling and returning TIMEOUT on budget exhaustion, and
// recovering any panic as SOFT_DECLINE(internal_error) so a
// misbehaving processor can never crash the engine.
func (e *Engine) invoke(ctx context.Context, p processor.Processor, req txn.Request) outcome.Outcome {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan outcome.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("processor panicked during charge", map[string]interface{}{
					"processor": p.Name(),
					"panic":     fmt.Sprintf("%v", r),
					"stack":     string(debug.Stack()),
				})
				done <- outcome.Outcome{Kind: outcome.SoftDecline, Reason: "internal_error"}
			}
		}()
		done <- p.Charge(callCtx, req)
	}()

	select {
	case o := <-done:
		return o
	case <-callCtx.Done():
		go func() { <-done }() // drain so the goroutine above never blocks forever
		return outcome.Outcome{Kind: outcome.Timeout, Reason: "timeout"}
	}
}

func (e *Engine) recordBreaker(b *breaker.Breaker, now time.Time, o outcome.Outcome) {
	if o.Kind == outcome.Success {
		b.RecordSuccess(now)
		return
	}
	if o.Kind.CountsTowardHealth() {
		b.RecordFailure(now, o.Kind)
		return
	}
	// HARD_DECLINE still needs to drive the half-open -> open reversal
	// and in-flight-probe clearing inside the breaker, even though it
	// never touches the window.
	b.RecordFailure(now, o.Kind)
}

func (e *Engine) recordStats(ctx context.Context, name string, req txn.Request, o outcome.Outcome, latencyMS float64, fee *money.Money) {
	obs := stats.Observation{
		Processor: name,
		Kind:      o.Kind,
		Amount:    req.Amount(),
		Fee:       fee,
		LatencyMS: latencyMS,
		At:        e.clock.Now(),
	}
	e.sink.Record(ctx, obs)
}

// sleep blocks for d, honoring cancellation. It returns false if the
// context was cancelled before d elapsed.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) cancelledResponse(req txn.Request, start time.Time, attempts int, trail []string) Response {
	return Response{
		TransactionID:   req.TransactionID(),
		Status:          Declined,
		Amount:          req.Amount(),
		Currency:        req.Currency(),
		DeclineReason:   "cancelled",
		DeclineType:     DeclineSoft,
		Attempts:        attempts,
		ProcessorsTried: trail,
		LatencyMS:       float64(e.clock.Now().Sub(start)) / float64(time.Millisecond),
		ProcessedAt:     e.clock.Now(),
	}
}
