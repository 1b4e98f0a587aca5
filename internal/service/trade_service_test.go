package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsaint1/TradeGPT/internal/bus"
	"github.com/drsaint1/TradeGPT/internal/domain"
	"github.com/drsaint1/TradeGPT/internal/store/memory"
)

type stubBuilder struct {
	err error
}

func (b *stubBuilder) BuildClose(pos domain.Position) (domain.ClosePayload, error) {
	if b.err != nil {
		return domain.ClosePayload{}, b.err
	}
	return domain.ClosePayload{PositionID: pos.ID, Data: []byte{0x01}, GasLimit: 300_000}, nil
}

type stubSubmitter struct {
	err   error
	count atomic.Int64
}

func (s *stubSubmitter) Submit(_ context.Context, _ domain.ClosePayload) (string, error) {
	s.count.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return "0xdeadbeef", nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTradeService(store domain.TradeStore, builder domain.TxBuilder, submitter domain.TxSubmitter, b domain.SignalBus) *TradeService {
	return NewTradeService(store, builder, submitter, b, nil, testLogger())
}

func ptr(v float64) *float64 { return &v }

func TestOpenPosition(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeStore()
	b := bus.New()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := b.Subscribe(subCtx, domain.ChannelPositions)
	require.NoError(t, err)

	svc := newTestTradeService(store, &stubBuilder{}, &stubSubmitter{}, b)

	pos, err := svc.OpenPosition(ctx, OpenPositionInput{
		Symbol:        " eth ",
		Side:          domain.SideLong,
		EntryPrice:    110,
		Size:          2.5,
		StopLossPrice: ptr(100),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, "ETH", pos.Symbol)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.False(t, pos.OpenedAt.IsZero())

	stored, err := store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.ID, stored.ID)

	select {
	case payload := <-events:
		var evt map[string]any
		require.NoError(t, json.Unmarshal(payload, &evt))
		assert.Equal(t, domain.EventPositionOpened, evt["event"])
		assert.Equal(t, pos.ID, evt["position_id"])
	case <-time.After(time.Second):
		t.Fatal("no opened event published")
	}
}

func TestOpenPositionValidation(t *testing.T) {
	svc := newTestTradeService(memory.NewTradeStore(), &stubBuilder{}, &stubSubmitter{}, bus.New())

	cases := []struct {
		name string
		in   OpenPositionInput
	}{
		{"empty symbol", OpenPositionInput{Side: domain.SideLong, EntryPrice: 10, Size: 1}},
		{"bad side", OpenPositionInput{Symbol: "ETH", Side: "up", EntryPrice: 10, Size: 1}},
		{"zero entry", OpenPositionInput{Symbol: "ETH", Side: domain.SideLong, Size: 1}},
		{"zero size", OpenPositionInput{Symbol: "ETH", Side: domain.SideLong, EntryPrice: 10}},
		{"negative stop", OpenPositionInput{Symbol: "ETH", Side: domain.SideLong, EntryPrice: 10, Size: 1, StopLossPrice: ptr(-1)}},
		{"long stop above entry", OpenPositionInput{Symbol: "ETH", Side: domain.SideLong, EntryPrice: 10, Size: 1, StopLossPrice: ptr(11)}},
		{"short stop below entry", OpenPositionInput{Symbol: "ETH", Side: domain.SideShort, EntryPrice: 10, Size: 1, StopLossPrice: ptr(9)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.OpenPosition(context.Background(), tc.in)
			assert.ErrorIs(t, err, domain.ErrInvalidPosition)
		})
	}
}

func TestClosePosition(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeStore()
	svc := newTestTradeService(store, &stubBuilder{}, &stubSubmitter{}, bus.New())

	pos, err := svc.OpenPosition(ctx, OpenPositionInput{
		Symbol: "ETH", Side: domain.SideLong, EntryPrice: 110, Size: 1,
	})
	require.NoError(t, err)

	closed, err := svc.ClosePosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	assert.Equal(t, "0xdeadbeef", closed.CloseTxHash)
	require.NotNil(t, closed.ClosedAt)

	// A second close conflicts: the position is already terminal.
	_, err = svc.ClosePosition(ctx, pos.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestClosePositionSubmissionFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeStore()
	submitter := &stubSubmitter{err: fmt.Errorf("%w: nonce too low", domain.ErrSubmission)}
	svc := newTestTradeService(store, &stubBuilder{}, submitter, bus.New())

	pos, err := svc.OpenPosition(ctx, OpenPositionInput{
		Symbol: "ETH", Side: domain.SideLong, EntryPrice: 110, Size: 1,
	})
	require.NoError(t, err)

	_, err = svc.ClosePosition(ctx, pos.ID)
	assert.ErrorIs(t, err, domain.ErrSubmission)

	got, err := store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusFailed, got.Status)
	assert.Contains(t, got.FailureReason, "nonce too low")
}

func TestClosePositionNotFound(t *testing.T) {
	svc := newTestTradeService(memory.NewTradeStore(), &stubBuilder{}, &stubSubmitter{}, bus.New())
	_, err := svc.ClosePosition(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeStore()
	svc := newTestTradeService(store, &stubBuilder{}, &stubSubmitter{}, bus.New())

	a, err := svc.OpenPosition(ctx, OpenPositionInput{Symbol: "ETH", Side: domain.SideLong, EntryPrice: 10, Size: 1})
	require.NoError(t, err)
	_, err = svc.OpenPosition(ctx, OpenPositionInput{Symbol: "BTC", Side: domain.SideShort, EntryPrice: 20, Size: 1})
	require.NoError(t, err)

	_, err = svc.ClosePosition(ctx, a.ID)
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open, err := svc.List(ctx, domain.PositionStatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "BTC", open[0].Symbol)
}

func TestDeleteOnlyTerminal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeStore()
	svc := newTestTradeService(store, &stubBuilder{}, &stubSubmitter{}, bus.New())

	pos, err := svc.OpenPosition(ctx, OpenPositionInput{Symbol: "ETH", Side: domain.SideLong, EntryPrice: 10, Size: 1})
	require.NoError(t, err)

	err = svc.Delete(ctx, pos.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.ClosePosition(ctx, pos.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, pos.ID))

	_, err = store.Get(ctx, pos.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManualCloseAndTriggerExclusive(t *testing.T) {
	// The manual close claims the position via the same open->triggered
	// transition the monitor uses, so once claimed a concurrent path sees
	// a conflict instead of double-submitting.
	ctx := context.Background()
	store := memory.NewTradeStore()
	submitter := &stubSubmitter{}
	svc := newTestTradeService(store, &stubBuilder{}, submitter, bus.New())

	pos, err := svc.OpenPosition(ctx, OpenPositionInput{Symbol: "ETH", Side: domain.SideLong, EntryPrice: 10, Size: 1})
	require.NoError(t, err)

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := svc.ClosePosition(ctx, pos.ID)
			errs <- err
		}()
	}

	var failures int
	for range 2 {
		if err := <-errs; err != nil {
			require.True(t, errors.Is(err, domain.ErrConflict), "unexpected error: %v", err)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.EqualValues(t, 1, submitter.count.Load())
}
