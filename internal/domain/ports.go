package domain

import (
	"context"
	"math/big"
	"time"
)

// TradeStore is the authoritative record of positions. Implementations must
// be safe for concurrent use and must never hand out references to internal
// state; every read returns a copy.
type TradeStore interface {
	// Create inserts a new position. Returns ErrDuplicateID if the id is taken.
	Create(ctx context.Context, pos Position) error

	// Get returns the position or ErrNotFound.
	Get(ctx context.Context, id string) (Position, error)

	// List returns all positions, optionally filtered by status
	// (empty status means no filter), newest first.
	List(ctx context.Context, status PositionStatus) ([]Position, error)

	// ListOpenWithStopLoss returns a point-in-time copy of every open position
	// that has a stop-loss configured.
	ListOpenWithStopLoss(ctx context.Context) ([]Position, error)

	// TryTransition atomically moves a position from one status to another,
	// applying mutate to the record in the same step. It returns ErrConflict
	// when the current status does not equal from; this is the exclusivity
	// primitive that guarantees at most one trigger attempt per position.
	// The returned Position is a copy of the record after the transition.
	TryTransition(ctx context.Context, id string, from, to PositionStatus, mutate func(*Position)) (Position, error)

	// CountByStatus returns the number of positions per status.
	CountByStatus(ctx context.Context) (map[PositionStatus]int, error)

	// Remove deletes a position outright. Only the retention/archival path
	// uses this; the trigger workflow never removes records.
	Remove(ctx context.Context, id string) error
}

// PriceSource supplies the current price for a symbol. Returns
// ErrSymbolUnavailable (possibly wrapped) when no price is obtainable.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceCache caches recent quotes so the monitor and API do not hammer the
// upstream feed.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// ClosePayload is the chain-submittable result of building a closing
// transaction for a triggered position. Nonce and gas price are resolved by
// the submitter at submission time; the payload itself is deterministic for a
// given position snapshot.
type ClosePayload struct {
	PositionID string
	Contract   string // position manager contract address, 0x-prefixed
	Data       []byte // ABI-encoded call data
	Value      *big.Int
	GasLimit   uint64
}

// TxBuilder constructs the closing payload for a position. Stateless; returns
// ErrInvalidPosition (wrapped) when required fields are missing or malformed.
type TxBuilder interface {
	BuildClose(pos Position) (ClosePayload, error)
}

// TxSubmitter signs and submits a closing payload to the chain RPC endpoint
// and returns the transaction hash. Failures are reported as wrapped
// ErrSubmission regardless of the underlying cause.
type TxSubmitter interface {
	Submit(ctx context.Context, payload ClosePayload) (string, error)
}

// SignalBus is the pub/sub fabric connecting the domain services and the
// monitor to the websocket hub. Delivery is best-effort.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel of raw payloads for the given bus channel.
	// The returned channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// JournalEntry is one row of the append-only position lifecycle journal.
type JournalEntry struct {
	ID         int64
	PositionID string
	Event      string
	Detail     map[string]any
	CreatedAt  time.Time
}

// JournalStore persists position lifecycle events for audit and
// reconciliation. Journal writes are best-effort from the monitor's point of
// view; a journal failure never aborts trigger handling.
type JournalStore interface {
	Record(ctx context.Context, positionID, event string, detail map[string]any) error
	ListByPosition(ctx context.Context, positionID string, limit int) ([]JournalEntry, error)
}
