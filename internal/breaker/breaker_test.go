package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitpay/switchboard/internal/logging"
	"github.com/orbitpay/switchboard/internal/outcome"
)

func testConfig() Config {
	return Config{
		WindowSize:    50,
		WindowAge:     300 * time.Second,
		TripThreshold: 0.20,
		Cooldown:      120 * time.Second,
		MinSamples:    5,
	}
}

// TestBreaker_ClosedUntilMinSamples verifies the breaker never trips
// while total samples < MinSamples, even at a 0% success rate.
func TestBreaker_ClosedUntilMinSamples(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)

	for i := 0; i < 4; i++ {
		b.RecordFailure(now, outcome.SoftDecline)
	}

	assert.Equal(t, Closed, b.Status(now).State)
}

// TestBreaker_TripsBelowThreshold verifies CLOSED -> OPEN once
// MinSamples is reached and the success rate is under TripThreshold.
func TestBreaker_TripsBelowThreshold(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		b.RecordFailure(now, outcome.SoftDecline)
	}

	report := b.Status(now)
	assert.Equal(t, Open, report.State)
	require.NotNil(t, report.CooldownRemaining)
}

// TestBreaker_OpenRejectsUntilCooldown verifies Allow returns REJECT
// while OPEN and before the cooldown elapses, then admits a probe
// after.
func TestBreaker_OpenRejectsUntilCooldown(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		b.RecordFailure(now, outcome.SoftDecline)
	}
	require.Equal(t, Open, b.Status(now).State)

	decision := b.Allow(now.Add(60 * time.Second))
	assert.False(t, decision.Pass)
	assert.Equal(t, "circuit_open", decision.Reason)

	decision = b.Allow(now.Add(121 * time.Second))
	assert.True(t, decision.Pass)
	assert.True(t, decision.IsProbe)
	assert.Equal(t, HalfOpen, b.Status(now.Add(121*time.Second)).State)
}

// TestBreaker_HalfOpenSuccessCloses verifies a single success while
// half-open fully closes the breaker with an empty window.
func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		b.RecordFailure(now, outcome.SoftDecline)
	}
	probeAt := now.Add(121 * time.Second)
	decision := b.Allow(probeAt)
	require.True(t, decision.Pass)

	b.RecordSuccess(probeAt)

	report := b.Status(probeAt)
	assert.Equal(t, Closed, report.State)
	assert.Equal(t, 0, report.TotalCallsInWindow)
}

// TestBreaker_HalfOpenFailureReopens verifies a failed probe reverts to
// OPEN rather than staying HALF_OPEN.
func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		b.RecordFailure(now, outcome.SoftDecline)
	}
	probeAt := now.Add(121 * time.Second)
	decision := b.Allow(probeAt)
	require.True(t, decision.Pass)

	b.RecordFailure(probeAt, outcome.SoftDecline)

	assert.Equal(t, Open, b.Status(probeAt).State)
}

// TestBreaker_HardDeclineExcludedFromWindow verifies the health-
// accounting policy: HARD_DECLINE never counts toward the trip
// evaluation.
func TestBreaker_HardDeclineExcludedFromWindow(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)

	for i := 0; i < 20; i++ {
		b.RecordFailure(now, outcome.HardDecline)
	}

	report := b.Status(now)
	assert.Equal(t, Closed, report.State)
	assert.Equal(t, 0, report.TotalCallsInWindow)
}

// TestBreaker_StateClosedIffOpenedAtNil verifies state == Closed iff
// opened_at is nil, across a full closed -> open -> half_open -> closed
// cycle.
func TestBreaker_StateClosedIffOpenedAtNil(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)

	assert.Nil(t, b.Status(now).CooldownRemaining)

	for i := 0; i < 5; i++ {
		b.RecordFailure(now, outcome.SoftDecline)
	}
	require.Equal(t, Open, b.Status(now).State)
	assert.NotNil(t, b.openedAt)

	probeAt := now.Add(121 * time.Second)
	b.Allow(probeAt)
	require.Equal(t, HalfOpen, b.Status(probeAt).State)
	assert.NotNil(t, b.openedAt, "opened_at must be preserved across OPEN -> HALF_OPEN")

	b.RecordSuccess(probeAt)
	require.Equal(t, Closed, b.Status(probeAt).State)
	assert.Nil(t, b.openedAt)
}

// TestBreaker_SingleProbeAdmission documents the Open Question
// resolution: while HALF_OPEN, only one concurrent Allow call is
// admitted as a probe; the rest are rejected until it resolves.
func TestBreaker_SingleProbeAdmission(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		b.RecordFailure(now, outcome.SoftDecline)
	}
	probeAt := now.Add(121 * time.Second)

	first := b.Allow(probeAt)
	second := b.Allow(probeAt)

	assert.True(t, first.Pass)
	assert.False(t, second.Pass)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)
	for i := 0; i < 5; i++ {
		b.RecordFailure(now, outcome.SoftDecline)
	}
	require.Equal(t, Open, b.Status(now).State)

	b.Reset()

	report := b.Status(now)
	assert.Equal(t, Closed, report.State)
	assert.Equal(t, 0, report.TotalCallsInWindow)
}

func TestBreaker_InjectFailuresTripsImmediately(t *testing.T) {
	b := New("p", testConfig(), logging.NoOp{})
	now := time.Unix(1000, 0)

	b.InjectFailures(6, now)

	assert.Equal(t, Open, b.Status(now).State)
}
