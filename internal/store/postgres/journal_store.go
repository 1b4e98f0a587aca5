package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drsaint1/TradeGPT/internal/domain"
)

// JournalStore implements domain.JournalStore using PostgreSQL. Rows are
// append-only: the journal is the durable trail for reconciling positions that
// got stuck mid-trigger, and for auditing what the monitor did and when.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Record appends a lifecycle event for a position. The detail map is stored
// as JSONB.
func (s *JournalStore) Record(ctx context.Context, positionID, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal journal detail: %w", err)
	}

	const query = `INSERT INTO position_journal (position_id, event, detail) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, positionID, event, detailJSON); err != nil {
		return fmt.Errorf("postgres: journal %s for %s: %w", event, positionID, err)
	}
	return nil
}

// ListByPosition returns the journal entries for one position, newest first.
func (s *JournalStore) ListByPosition(ctx context.Context, positionID string, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT id, position_id, event, detail, created_at
		FROM position_journal
		WHERE position_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, positionID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal for %s: %w", positionID, err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		var detailJSON []byte

		if err := rows.Scan(&e.ID, &e.PositionID, &e.Event, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal entry: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal journal detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list journal rows: %w", err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.JournalStore = (*JournalStore)(nil)
