// Package stats implements the external statistics accumulator: an
// append-only sink of per-attempt observations and an aggregate report
// for the GET /stats surface. The fallback engine's core never reads
// this package's state back to make a routing decision — it is purely
// observational, kept separate from the engine core as its own
// collaborator.
package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbitpay/switchboard/internal/money"
	"github.com/orbitpay/switchboard/internal/outcome"
)

// Observation is one recorded attempt, successful or not.
type Observation struct {
	Processor  string
	Kind       outcome.Kind
	Amount     money.Money
	Fee        *money.Money // non-nil iff Kind == Success
	LatencyMS  float64
	At         time.Time
}

// ProcessorCounters holds the per-processor counters surfaced in
// GET /stats.
type ProcessorCounters struct {
	Attempts      int64
	Successes     int64
	Failures      int64
	TotalFeeMinor string // decimal string accumulator, rendered on read
}

// Report is the aggregate snapshot returned by Snapshot.
type Report struct {
	TotalAttempts  int64
	TotalSuccesses int64
	TotalFailures  int64
	ByProcessor    map[string]ProcessorCounters
	Since          time.Time
}

// Sink receives per-attempt observations and can render an aggregate
// report on demand.
type Sink interface {
	Record(ctx context.Context, o Observation)
	Snapshot(ctx context.Context) Report
}

// processorCounters is the mutable, lock-free per-processor accumulator
// backing MemorySink, mirroring the atomic-counter field layout this
// codebase's CircuitBreaker uses for its own execution counters.
type processorCounters struct {
	attempts  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64

	feeMu  sync.Mutex
	feeSum money.Money
}

// MemorySink is the default, process-local stats accumulator. Counters
// are atomic; the per-processor map is built once at construction from
// the known processor list so Record never needs to take a write lock
// on the map itself.
type MemorySink struct {
	since      time.Time
	totals     processorCounters
	byProcessor map[string]*processorCounters
}

// NewMemorySink seeds counters for each name in names.
func NewMemorySink(names []string) *MemorySink {
	m := &MemorySink{
		since:       time.Now(),
		byProcessor: make(map[string]*processorCounters, len(names)),
	}
	for _, n := range names {
		m.byProcessor[n] = &processorCounters{}
	}
	return m
}

func (m *MemorySink) Record(_ context.Context, o Observation) {
	m.totals.attempts.Add(1)
	pc, ok := m.byProcessor[o.Processor]
	if !ok {
		// Unknown processor name (should not happen given the engine
		// only records names from its own registry); track it anyway
		// rather than drop the observation.
		pc = &processorCounters{}
		m.byProcessor[o.Processor] = pc
	}
	pc.attempts.Add(1)

	if o.Kind == outcome.Success {
		m.totals.successes.Add(1)
		pc.successes.Add(1)
		if o.Fee != nil {
			pc.feeMu.Lock()
			pc.feeSum = addMoney(pc.feeSum, *o.Fee)
			pc.feeMu.Unlock()
		}
	} else {
		m.totals.failures.Add(1)
		pc.failures.Add(1)
	}
}

func (m *MemorySink) Snapshot(_ context.Context) Report {
	r := Report{
		TotalAttempts:  m.totals.attempts.Load(),
		TotalSuccesses: m.totals.successes.Load(),
		TotalFailures:  m.totals.failures.Load(),
		ByProcessor:    make(map[string]ProcessorCounters, len(m.byProcessor)),
		Since:          m.since,
	}
	for name, pc := range m.byProcessor {
		pc.feeMu.Lock()
		feeStr := pc.feeSum.String()
		pc.feeMu.Unlock()
		r.ByProcessor[name] = ProcessorCounters{
			Attempts:      pc.attempts.Load(),
			Successes:     pc.successes.Load(),
			Failures:      pc.failures.Load(),
			TotalFeeMinor: feeStr,
		}
	}
	return r
}

func addMoney(a, b money.Money) money.Money {
	sum, err := money.FromString(a.Decimal().Add(b.Decimal()).String())
	if err != nil {
		return a
	}
	return sum
}
