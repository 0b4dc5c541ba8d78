// Package processor defines the downstream charge-processor contract
// and a seedable mock implementation used for tests and local runs.
//
// The contract is a capability interface, not an inheritance tree: the
// mock processors differ only in name, fee rate, and outcome-sampling
// table, and share no behavior worth factoring into a base class.
package processor

import (
	"context"

	"github.com/orbitpay/switchboard/internal/outcome"
	"github.com/orbitpay/switchboard/internal/txn"
)

// Processor is any downstream service that can attempt to authorize a
// charge. Charge may suspend arbitrarily long; the engine imposes the
// per-call timeout externally and never relies on the processor to
// respect a deadline on its own.
type Processor interface {
	// Name is a stable identifier, unique across the registry.
	Name() string
	// FeeRate is non-negative and used for ranking candidates.
	FeeRate() float64
	// Charge attempts to authorize req and returns a classified
	// outcome. It must never panic under normal operation.
	Charge(ctx context.Context, req txn.Request) outcome.Outcome
}
