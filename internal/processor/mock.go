package processor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/orbitpay/switchboard/internal/outcome"
	"github.com/orbitpay/switchboard/internal/txn"
)

// WeightedOutcome is one entry in a mock processor's outcome-sampling
// table: Weight is relative, not normalized.
type WeightedOutcome struct {
	Outcome outcome.Outcome
	Weight  float64
}

// MockProcessor is a seedable, table-driven stand-in for a real
// downstream processor. It supports two modes that can be combined:
// a scripted queue of outcomes consumed first (for deterministic
// engine tests), then weighted-random sampling from the table once the
// script is drained (for soak/local-run use).
type MockProcessor struct {
	name    string
	feeRate float64
	table   []WeightedOutcome
	rng     *rand.Rand
	delay   time.Duration

	mu     sync.Mutex
	script []outcome.Outcome
}

// NewMock constructs a mock processor with a weighted outcome table and
// an explicit RNG seed, so sampling is reproducible across test runs.
func NewMock(name string, feeRate float64, table []WeightedOutcome, seed int64) *MockProcessor {
	return &MockProcessor{
		name:    name,
		feeRate: feeRate,
		table:   table,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// WithScript queues outcomes to be returned, in order, before the
// processor falls back to table sampling. Used by engine tests to
// reproduce exact end-to-end scenarios deterministically.
func (m *MockProcessor) WithScript(outcomes ...outcome.Outcome) *MockProcessor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, outcomes...)
	return m
}

// WithArtificialDelay makes Charge sleep for d (honoring context
// cancellation) before returning, to exercise the engine's per-call
// timeout path.
func (m *MockProcessor) WithArtificialDelay(d time.Duration) *MockProcessor {
	m.delay = d
	return m
}

func (m *MockProcessor) Name() string       { return m.name }
func (m *MockProcessor) FeeRate() float64   { return m.feeRate }

// Charge returns the next scripted outcome if any remain, otherwise
// samples from the weighted table. It is safe for concurrent use.
func (m *MockProcessor) Charge(ctx context.Context, _ txn.Request) outcome.Outcome {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return outcome.Outcome{Kind: outcome.Timeout, Reason: "timeout"}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next
	}

	return m.sample()
}

// sample must be called with m.mu held: math/rand.Rand is not safe for
// concurrent use on its own.
func (m *MockProcessor) sample() outcome.Outcome {
	if len(m.table) == 0 {
		return outcome.Outcome{Kind: outcome.Success}
	}
	var total float64
	for _, w := range m.table {
		total += w.Weight
	}
	r := m.rng.Float64() * total
	var acc float64
	for _, w := range m.table {
		acc += w.Weight
		if r <= acc {
			return w.Outcome
		}
	}
	return m.table[len(m.table)-1].Outcome
}
