package ride

import "errors"

// Evaluation cost constants, charged per tree node visited.
const (
	CostConst     = uint64(1)  // Literal values
	CostBoolOp    = uint64(1)  // And/Or/Not
	CostCompare   = uint64(1)  // Comparisons
	CostArith     = uint64(1)  // Add/Sub/Mul
	CostDiv       = uint64(3)  // Division/modulo
	CostBranch    = uint64(1)  // If
	CostThrow     = uint64(1)  // Throw
	CostProperty  = uint64(2)  // Context/transaction field access
	CostStateRead = uint64(10) // Balance and data entry reads
	CostAction    = uint64(5)  // Action construction
	CostCall      = uint64(10) // Callable invocation overhead
)

// DefaultComplexityLimit is the protocol ceiling on cumulative evaluation
// complexity for one transaction. It covers the account verifier, the invoked
// callable and every asset verifier triggered by its actions together.
const DefaultComplexityLimit = uint64(26_000)

var (
	// ErrComplexityExceeded is returned when the complexity budget is exhausted.
	ErrComplexityExceeded = errors.New("complexity budget exceeded")
)

// Meter tracks cumulative evaluation complexity across one transaction.
// A single Meter is threaded through every script evaluation the transaction
// triggers, so the ceiling is enforced per transaction, not per script.
type Meter struct {
	remaining uint64
	limit     uint64
}

// NewMeter creates a meter with the given complexity limit.
func NewMeter(limit uint64) *Meter {
	return &Meter{remaining: limit, limit: limit}
}

// Consume attempts to consume complexity units.
// Returns ErrComplexityExceeded if insufficient units remain.
func (m *Meter) Consume(cost uint64) error {
	if m.remaining < cost {
		m.remaining = 0
		return ErrComplexityExceeded
	}
	m.remaining -= cost
	return nil
}

// Remaining returns the remaining complexity units.
func (m *Meter) Remaining() uint64 {
	return m.remaining
}

// Consumed returns the units consumed so far.
func (m *Meter) Consumed() uint64 {
	return m.limit - m.remaining
}

// Limit returns the complexity limit.
func (m *Meter) Limit() uint64 {
	return m.limit
}
