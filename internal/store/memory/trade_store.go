// Package memory implements the trade store as an in-process, concurrency-safe
// record of positions. It is the source of truth for the stop-loss monitor and
// the trade API; the postgres journal and the archiver only shadow it.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// entry wraps a position with its own lock so conditional transitions on one
// position never serialize work on unrelated positions.
type entry struct {
	mu  sync.Mutex
	pos domain.Position
}

// TradeStore implements domain.TradeStore backed by an in-process map.
type TradeStore struct {
	mu        sync.RWMutex
	positions map[string]*entry
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		positions: make(map[string]*entry),
	}
}

// Create inserts a new position. Returns domain.ErrDuplicateID if the id is
// already present.
func (s *TradeStore) Create(ctx context.Context, pos domain.Position) error {
	if pos.ID == "" {
		return fmt.Errorf("memory: create: %w: empty id", domain.ErrInvalidPosition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[pos.ID]; ok {
		return fmt.Errorf("memory: create %s: %w", pos.ID, domain.ErrDuplicateID)
	}
	s.positions[pos.ID] = &entry{pos: pos.Clone()}
	return nil
}

// Get returns a copy of the position or domain.ErrNotFound.
func (s *TradeStore) Get(ctx context.Context, id string) (domain.Position, error) {
	e, err := s.entry(id)
	if err != nil {
		return domain.Position{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos.Clone(), nil
}

// List returns copies of all positions, newest first. A non-empty status
// filters the result.
func (s *TradeStore) List(ctx context.Context, status domain.PositionStatus) ([]domain.Position, error) {
	out := s.snapshot(func(p domain.Position) bool {
		return status == "" || p.Status == status
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	return out, nil
}

// ListOpenWithStopLoss returns copies of every open position that has a
// stop-loss price configured.
func (s *TradeStore) ListOpenWithStopLoss(ctx context.Context) ([]domain.Position, error) {
	return s.snapshot(func(p domain.Position) bool {
		return p.Status == domain.PositionStatusOpen && p.StopLossPrice != nil
	}), nil
}

// TryTransition atomically moves a position from one status to another while
// applying mutate in the same critical section. Returns domain.ErrConflict
// when the current status does not match from, which callers treat as
// "another worker already handled it".
func (s *TradeStore) TryTransition(ctx context.Context, id string, from, to domain.PositionStatus, mutate func(*domain.Position)) (domain.Position, error) {
	e, err := s.entry(id)
	if err != nil {
		return domain.Position{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pos.Status != from {
		return domain.Position{}, fmt.Errorf("memory: transition %s %s->%s: current %s: %w",
			id, from, to, e.pos.Status, domain.ErrConflict)
	}

	next := e.pos.Clone()
	if mutate != nil {
		mutate(&next)
	}
	// Status and id are controlled by the store, not by the mutator.
	next.ID = e.pos.ID
	next.Status = to
	e.pos = next

	return next.Clone(), nil
}

// CountByStatus returns how many positions are in each status.
func (s *TradeStore) CountByStatus(ctx context.Context) (map[domain.PositionStatus]int, error) {
	counts := make(map[domain.PositionStatus]int, 4)
	for _, p := range s.snapshot(nil) {
		counts[p.Status]++
	}
	return counts, nil
}

// Remove deletes a position. Returns domain.ErrNotFound when absent.
func (s *TradeStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return fmt.Errorf("memory: remove %s: %w", id, domain.ErrNotFound)
	}
	delete(s.positions, id)
	return nil
}

func (s *TradeStore) entry(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("memory: get %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

// snapshot copies every position matching keep (nil keeps all) under the
// per-entry locks.
func (s *TradeStore) snapshot(keep func(domain.Position) bool) []domain.Position {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.positions))
	for _, e := range s.positions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]domain.Position, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		p := e.pos.Clone()
		e.mu.Unlock()
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
