package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func openPosition(id, symbol string, stop *float64) domain.Position {
	return domain.Position{
		ID:            id,
		Symbol:        symbol,
		Side:          domain.SideLong,
		EntryPrice:    110,
		Size:          2,
		StopLossPrice: stop,
		Status:        domain.PositionStatusOpen,
		OpenedAt:      time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()

	require.NoError(t, s.Create(ctx, openPosition("p1", "ETH", floatPtr(100))))

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "ETH", got.Symbol)
	assert.Equal(t, domain.PositionStatusOpen, got.Status)

	err = s.Create(ctx, openPosition("p1", "BTC", nil))
	assert.ErrorIs(t, err, domain.ErrDuplicateID)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()
	require.NoError(t, s.Create(ctx, openPosition("p1", "ETH", floatPtr(100))))

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)

	// Mutating the returned value must not leak into the store.
	got.Symbol = "HACKED"
	*got.StopLossPrice = 1

	again, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "ETH", again.Symbol)
	assert.Equal(t, 100.0, *again.StopLossPrice)
}

func TestListOpenWithStopLoss(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()

	require.NoError(t, s.Create(ctx, openPosition("with-stop", "ETH", floatPtr(100))))
	require.NoError(t, s.Create(ctx, openPosition("no-stop", "ETH", nil)))

	closed := openPosition("closed", "BTC", floatPtr(50))
	require.NoError(t, s.Create(ctx, closed))
	_, err := s.TryTransition(ctx, "closed", domain.PositionStatusOpen, domain.PositionStatusClosed, nil)
	require.NoError(t, err)

	got, err := s.ListOpenWithStopLoss(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "with-stop", got[0].ID)
}

func TestTryTransitionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()
	require.NoError(t, s.Create(ctx, openPosition("p1", "ETH", floatPtr(100))))

	_, err := s.TryTransition(ctx, "p1", domain.PositionStatusOpen, domain.PositionStatusTriggered, nil)
	require.NoError(t, err)

	_, err = s.TryTransition(ctx, "p1", domain.PositionStatusOpen, domain.PositionStatusTriggered, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusTriggered, got.Status)
}

func TestTryTransitionAppliesMutator(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()
	require.NoError(t, s.Create(ctx, openPosition("p1", "ETH", floatPtr(100))))

	now := time.Now().UTC()
	updated, err := s.TryTransition(ctx, "p1", domain.PositionStatusOpen, domain.PositionStatusTriggered, func(p *domain.Position) {
		p.LastEvaluatedAt = &now
		p.LastEvaluatedPrice = floatPtr(99)
		// The mutator must not be able to override store-managed fields.
		p.ID = "other"
		p.Status = domain.PositionStatusClosed
	})
	require.NoError(t, err)

	assert.Equal(t, "p1", updated.ID)
	assert.Equal(t, domain.PositionStatusTriggered, updated.Status)
	assert.Equal(t, 99.0, *updated.LastEvaluatedPrice)
}

// At most one of N concurrent claimants may win the open->triggered
// transition; everyone else must observe a conflict.
func TestTryTransitionAtMostOnce(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()
	require.NoError(t, s.Create(ctx, openPosition("p1", "ETH", floatPtr(100))))

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.TryTransition(ctx, "p1", domain.PositionStatusOpen, domain.PositionStatusTriggered, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			default:
				require.ErrorIs(t, err, domain.ErrConflict)
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
}

func TestCountByStatusAndRemove(t *testing.T) {
	ctx := context.Background()
	s := NewTradeStore()

	require.NoError(t, s.Create(ctx, openPosition("a", "ETH", floatPtr(100))))
	require.NoError(t, s.Create(ctx, openPosition("b", "BTC", nil)))
	_, err := s.TryTransition(ctx, "b", domain.PositionStatusOpen, domain.PositionStatusClosed, nil)
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.PositionStatusOpen])
	assert.Equal(t, 1, counts[domain.PositionStatusClosed])

	require.NoError(t, s.Remove(ctx, "b"))
	assert.ErrorIs(t, s.Remove(ctx, "b"), domain.ErrNotFound)
}
