package store

import (
	"context"
	"database/sql"
	"fmt"
)

// nextSequenceTx atomically increments and returns the per-day counter for
// name. The increment happens inside the caller's transaction, so a rolled
// back record never consumes a sequence number.
//
// This is the explicit-atomic-increment replacement for file-plus-counter ID
// generation: the UPSERT is a single statement, so concurrent writers can
// never read the same value twice.
func nextSequenceTx(ctx context.Context, tx *sql.Tx, name, day string) (int64, error) {
	var value int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO counters (name, day, value)
		VALUES (?, ?, 1)
		ON CONFLICT(name, day) DO UPDATE SET value = value + 1
		RETURNING value
	`, name, day).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s/%s: %w", name, day, err)
	}
	return value, nil
}

// CurrentSequence returns the counter value for name on the given day
// without incrementing, or 0 if no value has been issued.
func (s *Store) CurrentSequence(ctx context.Context, name, day string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM counters WHERE name = ? AND day = ?
	`, name, day).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current sequence %s/%s: %w", name, day, err)
	}
	return value, nil
}
