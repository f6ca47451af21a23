package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/arbiter-io/arbiter/internal/record"
)

// ErrReversalSettled reports that a reversal already left DRAFT, so the
// caller lost the race to execute it.
var ErrReversalSettled = errors.New("reversal already settled")

// CreateReversal atomically assigns the reversal its "rev-" identifier from
// the per-day counter, computes its hash, and inserts it in DRAFT.
func (s *Store) CreateReversal(ctx context.Context, rev record.ReversalBatch) (record.ReversalBatch, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := nextSequenceTx(ctx, tx, "reversal", record.Period(rev.CreatedAt))
		if err != nil {
			return err
		}
		rev.ReversalID = record.SequencedID(record.PrefixReversal, rev.CreatedAt, seq)

		if rev.ReversalHash, err = record.ReversalHash(rev); err != nil {
			return err
		}

		itemsJSON, err := marshalJSON(rev.ItemsToReverse, "items to reverse")
		if err != nil {
			return err
		}
		actionsJSON, err := marshalJSON(rev.Actions, "compensating actions")
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reversals
			(reversal_id, reverses_batch_id, reversal_type, status, reason,
			 items_to_reverse, actions, reversal_hash, original_batch_hash, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rev.ReversalID,
			rev.ReversesBatchID,
			string(rev.ReversalType),
			string(rev.Status),
			rev.Reason,
			itemsJSON,
			actionsJSON,
			rev.ReversalHash,
			rev.OriginalBatchHash,
			marshalTime(rev.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert reversal: %w", err)
		}
		return nil
	})
	if err != nil {
		return record.ReversalBatch{}, err
	}
	return rev, nil
}

// CompleteReversal persists the executed reversal with its action log,
// recomputes its hash, and moves it to the closed partition. The write is
// conditional on the row still being DRAFT; when another execution settled
// it first, ErrReversalSettled is returned and nothing is written.
func (s *Store) CompleteReversal(ctx context.Context, rev record.ReversalBatch) (record.ReversalBatch, error) {
	var err error
	if rev.ReversalHash, err = record.ReversalHash(rev); err != nil {
		return record.ReversalBatch{}, err
	}
	actionsJSON, err := marshalJSON(rev.Actions, "compensating actions")
	if err != nil {
		return record.ReversalBatch{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reversals
		SET status = ?, actions = ?, reversal_hash = ?, archived = 1
		WHERE reversal_id = ? AND status = ?
	`,
		string(rev.Status),
		actionsJSON,
		rev.ReversalHash,
		rev.ReversalID,
		string(record.ReversalDraft),
	)
	if err != nil {
		return record.ReversalBatch{}, fmt.Errorf("complete reversal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return record.ReversalBatch{}, fmt.Errorf("complete reversal: %w", err)
	}
	if n == 0 {
		return record.ReversalBatch{}, fmt.Errorf("complete reversal %s: %w", rev.ReversalID, ErrReversalSettled)
	}
	return rev, nil
}

// GetReversal returns a reversal from either partition, or nil if absent.
func (s *Store) GetReversal(ctx context.Context, reversalID string) (*record.ReversalBatch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT reversal_id, reverses_batch_id, reversal_type, status, reason,
		       items_to_reverse, actions, reversal_hash, original_batch_hash, created_at
		FROM reversals
		WHERE reversal_id = ?
	`, reversalID)

	var r record.ReversalBatch
	var rtype, status, items, actions, createdAt string
	err := row.Scan(&r.ReversalID, &r.ReversesBatchID, &rtype, &status, &r.Reason,
		&items, &actions, &r.ReversalHash, &r.OriginalBatchHash, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reversal: %w", err)
	}
	r.ReversalType = record.ReversalType(rtype)
	r.Status = record.ReversalStatus(status)
	if err := unmarshalJSON(items, &r.ItemsToReverse, "items to reverse"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(actions, &r.Actions, "compensating actions"); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = unmarshalTime(createdAt, "reversal created_at"); err != nil {
		return nil, err
	}
	return &r, nil
}
