package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arbiter-io/arbiter/internal/record"
)

// InsertSnapshot persists a pre-reversal snapshot. Snapshot IDs derive from
// their reversal, so writing twice for the same reversal is a conflict.
func (s *Store) InsertSnapshot(ctx context.Context, snap record.Snapshot) error {
	statesJSON, err := marshalJSON(snap.FileStates, "file states")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (snapshot_id, reversal_id, file_states, captured_at)
		VALUES (?, ?, ?, ?)
	`,
		snap.SnapshotID,
		snap.ReversalID,
		statesJSON,
		marshalTime(snap.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns a snapshot by ID, or nil if absent.
func (s *Store) GetSnapshot(ctx context.Context, snapshotID string) (*record.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT snapshot_id, reversal_id, file_states, captured_at
		FROM snapshots
		WHERE snapshot_id = ?
	`, snapshotID)

	var snap record.Snapshot
	var states, capturedAt string
	err := row.Scan(&snap.SnapshotID, &snap.ReversalID, &states, &capturedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if err := unmarshalJSON(states, &snap.FileStates, "file states"); err != nil {
		return nil, err
	}
	if snap.CapturedAt, err = unmarshalTime(capturedAt, "snapshot captured_at"); err != nil {
		return nil, err
	}
	return &snap, nil
}
