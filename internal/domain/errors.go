package domain

import "errors"

var (
	// ErrNotFound is returned when a position id does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID is returned when creating a position whose id is taken.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrConflict is returned by conditional transitions when the position is
	// not in the expected status. Under concurrent trigger handling this means
	// another worker already claimed the position.
	ErrConflict = errors.New("status conflict")

	// ErrInvalidPosition is returned by the transaction builder when a
	// position snapshot is missing fields required to build a closing payload.
	ErrInvalidPosition = errors.New("invalid position")

	// ErrSymbolUnavailable is returned when no price can currently be obtained
	// for a symbol. It is transient; affected positions are retried next cycle.
	ErrSymbolUnavailable = errors.New("symbol unavailable")

	// ErrSubmission is returned when a closing transaction is rejected by the
	// chain endpoint. The monitor treats it as terminal for the position.
	ErrSubmission = errors.New("submission failed")
)
