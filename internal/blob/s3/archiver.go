package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// Archiver periodically moves terminal (closed or failed) positions out of
// the trade store into object storage as JSONL batches. Records are removed
// from the store only after the batch upload succeeds.
type Archiver struct {
	store  domain.TradeStore
	writer BlobWriter
	retain time.Duration // terminal positions younger than this stay put
	every  time.Duration
	logger *slog.Logger
}

// NewArchiver creates an Archiver. retain bounds how long terminal positions
// stay queryable through the API; every is the sweep interval.
func NewArchiver(store domain.TradeStore, writer BlobWriter, retain, every time.Duration, logger *slog.Logger) *Archiver {
	if retain <= 0 {
		retain = 24 * time.Hour
	}
	if every <= 0 {
		every = time.Hour
	}
	return &Archiver{
		store:  store,
		writer: writer,
		retain: retain,
		every:  every,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Run sweeps on the configured interval until ctx is cancelled. Call it in
// its own goroutine.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// ArchiveOnce uploads one batch of expired terminal positions and removes
// them from the store. Returns the number of archived positions.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-a.retain)

	expired, err := a.expiredTerminal(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(expired)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal archive batch: %w", err)
	}

	path := fmt.Sprintf("archive/positions/%s.jsonl", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload archive batch: %w", err)
	}

	removed := 0
	for _, pos := range expired {
		if err := a.store.Remove(ctx, pos.ID); err != nil {
			a.logger.WarnContext(ctx, "remove archived position failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	a.logger.InfoContext(ctx, "archived terminal positions",
		slog.Int("archived", len(expired)),
		slog.Int("removed", removed),
		slog.String("path", path),
	)
	return len(expired), nil
}

// expiredTerminal returns terminal positions whose final activity is older
// than cutoff. Failed positions carry no ClosedAt; their last evaluation
// stamp, or the open time as a last resort, decides their age.
func (a *Archiver) expiredTerminal(ctx context.Context, cutoff time.Time) ([]domain.Position, error) {
	var out []domain.Position
	for _, status := range []domain.PositionStatus{
		domain.PositionStatusClosed,
		domain.PositionStatusFailed,
	} {
		positions, err := a.store.List(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s positions: %w", status, err)
		}
		for _, pos := range positions {
			if terminalAt(pos).Before(cutoff) {
				out = append(out, pos)
			}
		}
	}
	return out, nil
}

func terminalAt(pos domain.Position) time.Time {
	switch {
	case pos.ClosedAt != nil:
		return *pos.ClosedAt
	case pos.LastEvaluatedAt != nil:
		return *pos.LastEvaluatedAt
	default:
		return pos.OpenedAt
	}
}

func marshalJSONL(positions []domain.Position) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, pos := range positions {
		if err := enc.Encode(pos); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
