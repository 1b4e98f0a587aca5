package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drsaint1/TradeGPT/internal/domain"
	"github.com/drsaint1/TradeGPT/internal/store/memory"
)

type captureWriter struct {
	err   error
	paths []string
	data  []string
}

func (c *captureWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if c.err != nil {
		return c.err
	}
	body, _ := io.ReadAll(data)
	c.paths = append(c.paths, path)
	c.data = append(c.data, string(body))
	return nil
}

func addTerminal(t *testing.T, store *memory.TradeStore, id string, status domain.PositionStatus, closedAgo time.Duration) {
	t.Helper()
	closedAt := time.Now().UTC().Add(-closedAgo)
	require.NoError(t, store.Create(context.Background(), domain.Position{
		ID:       id,
		Symbol:   "ETH",
		Side:     domain.SideLong,
		Status:   status,
		OpenedAt: closedAt.Add(-time.Hour),
		ClosedAt: &closedAt,
	}))
}

func newTestArchiver(store *memory.TradeStore, w BlobWriter) *Archiver {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewArchiver(store, w, 24*time.Hour, time.Hour, logger)
}

func TestArchiveOnceMovesExpiredTerminal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeStore()
	addTerminal(t, store, "old-closed", domain.PositionStatusClosed, 48*time.Hour)
	addTerminal(t, store, "old-failed", domain.PositionStatusFailed, 48*time.Hour)
	addTerminal(t, store, "fresh", domain.PositionStatusClosed, time.Hour)
	require.NoError(t, store.Create(ctx, domain.Position{
		ID: "live", Symbol: "ETH", Side: domain.SideLong,
		Status: domain.PositionStatusOpen, OpenedAt: time.Now().UTC().Add(-72 * time.Hour),
	}))

	w := &captureWriter{}
	n, err := newTestArchiver(store, w).ArchiveOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, w.paths, 1)
	assert.True(t, strings.HasPrefix(w.paths[0], "archive/positions/"))
	assert.Contains(t, w.data[0], "old-closed")
	assert.Contains(t, w.data[0], "old-failed")

	// Archived records are gone; fresh terminal and open records remain.
	for _, id := range []string{"old-closed", "old-failed"} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	for _, id := range []string{"fresh", "live"} {
		_, err := store.Get(ctx, id)
		assert.NoError(t, err)
	}
}

func TestArchiveOnceNothingExpired(t *testing.T) {
	store := memory.NewTradeStore()
	addTerminal(t, store, "fresh", domain.PositionStatusClosed, time.Hour)

	w := &captureWriter{}
	n, err := newTestArchiver(store, w).ArchiveOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.paths)
}

func TestArchiveOnceUploadFailureKeepsRecords(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTradeStore()
	addTerminal(t, store, "old", domain.PositionStatusClosed, 48*time.Hour)

	w := &captureWriter{err: errors.New("bucket gone")}
	_, err := newTestArchiver(store, w).ArchiveOnce(ctx)
	require.Error(t, err)

	_, err = store.Get(ctx, "old")
	assert.NoError(t, err)
}
