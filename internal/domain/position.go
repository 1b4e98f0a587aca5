package domain

import "time"

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// PositionStatus tracks where a position is in its lifecycle. Transitions are
// monotonic: open -> triggered -> closed | failed. A position never re-enters
// open, and closed/failed are terminal.
type PositionStatus string

const (
	PositionStatusOpen      PositionStatus = "open"
	PositionStatusTriggered PositionStatus = "triggered"
	PositionStatusClosed    PositionStatus = "closed"
	PositionStatusFailed    PositionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s PositionStatus) Terminal() bool {
	return s == PositionStatusClosed || s == PositionStatusFailed
}

// Position is a trade record tracked by the backend. Positions are owned by
// the trade store; everything outside the store works on copies.
type Position struct {
	ID            string         `json:"id"`
	Symbol        string         `json:"symbol"`
	Side          Side           `json:"side"`
	EntryPrice    float64        `json:"entry_price"`
	Size          float64        `json:"size"`
	StopLossPrice *float64       `json:"stop_loss_price,omitempty"`
	Status        PositionStatus `json:"status"`
	OpenedAt      time.Time      `json:"opened_at"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`

	// Observability fields maintained by the stop-loss monitor.
	LastEvaluatedAt    *time.Time `json:"last_evaluated_at,omitempty"`
	LastEvaluatedPrice *float64   `json:"last_evaluated_price,omitempty"`

	// CloseTxHash is set once a closing transaction has been submitted.
	CloseTxHash string `json:"close_tx_hash,omitempty"`

	// FailureReason records why a position ended up failed.
	FailureReason string `json:"failure_reason,omitempty"`
}

// StopLossBreached reports whether price satisfies the position's stop-loss
// condition. Long positions trigger at or below the stop, shorts at or above.
// Positions without a stop-loss never trigger.
func (p Position) StopLossBreached(price float64) bool {
	if p.StopLossPrice == nil {
		return false
	}
	switch p.Side {
	case SideLong:
		return price <= *p.StopLossPrice
	case SideShort:
		return price >= *p.StopLossPrice
	default:
		return false
	}
}

// Clone returns a deep copy of the position, including pointer fields, so the
// caller can mutate it freely without touching store-owned state.
func (p Position) Clone() Position {
	out := p
	out.StopLossPrice = clonePtr(p.StopLossPrice)
	out.ClosedAt = clonePtr(p.ClosedAt)
	out.LastEvaluatedAt = clonePtr(p.LastEvaluatedAt)
	out.LastEvaluatedPrice = clonePtr(p.LastEvaluatedPrice)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
