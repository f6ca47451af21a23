package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arbiter-io/arbiter/internal/record"
)

// CreateBatch atomically assigns the batch its identifier, sequence number,
// and chain link, then inserts it. In one transaction it consumes the next
// per-day "wb-" sequence number, reads the most recently created batch's
// hash into PrevBatchHash, recomputes BatchHash, and writes the row.
//
// The first batch in a store chains from the empty string.
func (s *Store) CreateBatch(ctx context.Context, batch record.WorkBatch) (record.WorkBatch, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := nextSequenceTx(ctx, tx, "batch", record.Period(batch.CreatedAt))
		if err != nil {
			return err
		}
		batch.SequenceNumber = seq
		batch.BatchID = record.SequencedID(record.PrefixBatch, batch.CreatedAt, seq)

		prevHash, err := latestBatchHashTx(ctx, tx)
		if err != nil {
			return err
		}
		batch.PrevBatchHash = prevHash

		if batch.BatchHash, err = record.BatchHash(batch); err != nil {
			return err
		}
		return insertBatchTx(ctx, tx, batch)
	})
	if err != nil {
		return record.WorkBatch{}, err
	}
	return batch, nil
}

// MutateBatch runs one read-decide-write sequence against a batch inside a
// single immediate transaction, so a concurrent mutation cannot slip between
// the state check and the write.
//
// fn receives the current row and may mutate it. When fn reports persist the
// mutated batch is rehashed and written back, even if fn also returned an
// error (a failed completion records its reconciliation report this way).
// Returns (nil, nil) when no such batch exists, and fn's error otherwise.
func (s *Store) MutateBatch(ctx context.Context, batchID string, fn func(batch *record.WorkBatch) (persist bool, err error)) (*record.WorkBatch, error) {
	var out *record.WorkBatch
	var fnErr error
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		batch, err := getBatchRow(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch == nil {
			return nil
		}

		var persist bool
		persist, fnErr = fn(batch)
		out = batch
		if !persist {
			return nil
		}
		if batch.BatchHash, err = record.BatchHash(*batch); err != nil {
			return err
		}
		return updateBatchRow(ctx, tx, *batch)
	})
	if err != nil {
		return nil, err
	}
	return out, fnErr
}

// UpdateBatch recomputes the batch hash and persists the batch. Terminal
// batches move to the closed partition (archived) in the same write and are
// immutable afterward: updating an archived row is an error.
func (s *Store) UpdateBatch(ctx context.Context, batch record.WorkBatch) (record.WorkBatch, error) {
	var err error
	if batch.BatchHash, err = record.BatchHash(batch); err != nil {
		return record.WorkBatch{}, err
	}
	if err = updateBatchRow(ctx, s.db, batch); err != nil {
		return record.WorkBatch{}, err
	}
	return batch, nil
}

// GetBatch returns a batch from either partition, or nil if absent.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*record.WorkBatch, error) {
	return getBatchRow(ctx, s.db, batchID)
}

// ListBatches returns batches in chain order. When archived is false only
// the active partition is returned.
func (s *Store) ListBatches(ctx context.Context, includeArchived bool) ([]record.WorkBatch, error) {
	query := `
		SELECT batch_id, batch_type, status, work_items, expected_artifacts, produced_artifacts,
		       reconciliation, batch_hash, prev_batch_hash, sequence_number, created_at, updated_at
		FROM batches`
	if !includeArchived {
		query += " WHERE archived = 0"
	}
	query += " ORDER BY created_at ASC, sequence_number ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []record.WorkBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, *batch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	if batches == nil {
		batches = []record.WorkBatch{}
	}
	return batches, nil
}

// rowQuerier abstracts *sql.DB and *sql.Tx for single-row reads.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer abstracts *sql.DB and *sql.Tx for writes.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getBatchRow(ctx context.Context, q rowQuerier, batchID string) (*record.WorkBatch, error) {
	row := q.QueryRowContext(ctx, `
		SELECT batch_id, batch_type, status, work_items, expected_artifacts, produced_artifacts,
		       reconciliation, batch_hash, prev_batch_hash, sequence_number, created_at, updated_at
		FROM batches
		WHERE batch_id = ?
	`, batchID)
	batch, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// updateBatchRow writes the batch over its active row. The archived guard
// keeps terminal rows immutable at the store layer.
func updateBatchRow(ctx context.Context, ex execer, batch record.WorkBatch) error {
	itemsJSON, err := marshalJSON(batch.WorkItems, "work items")
	if err != nil {
		return err
	}
	expectedJSON, err := marshalJSON(batch.ExpectedArtifacts, "expected artifacts")
	if err != nil {
		return err
	}
	producedJSON, err := marshalJSON(batch.ProducedArtifacts, "produced artifacts")
	if err != nil {
		return err
	}
	var reconJSON any
	if batch.Reconciliation != nil {
		s, err := marshalJSON(batch.Reconciliation, "reconciliation")
		if err != nil {
			return err
		}
		reconJSON = s
	}

	archived := 0
	if batch.Status.Terminal() {
		archived = 1
	}

	res, err := ex.ExecContext(ctx, `
		UPDATE batches
		SET status = ?, work_items = ?, expected_artifacts = ?, produced_artifacts = ?,
		    reconciliation = ?, batch_hash = ?, updated_at = ?, archived = ?
		WHERE batch_id = ? AND archived = 0
	`,
		string(batch.Status),
		itemsJSON,
		expectedJSON,
		producedJSON,
		reconJSON,
		batch.BatchHash,
		marshalTime(batch.UpdatedAt),
		archived,
		batch.BatchID,
	)
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update batch %s: no active row", batch.BatchID)
	}
	return nil
}

func latestBatchHashTx(ctx context.Context, tx *sql.Tx) (string, error) {
	var hash string
	err := tx.QueryRowContext(ctx, `
		SELECT batch_hash FROM batches
		ORDER BY created_at DESC, sequence_number DESC
		LIMIT 1
	`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest batch hash: %w", err)
	}
	return hash, nil
}

func insertBatchTx(ctx context.Context, tx *sql.Tx, batch record.WorkBatch) error {
	itemsJSON, err := marshalJSON(batch.WorkItems, "work items")
	if err != nil {
		return err
	}
	expectedJSON, err := marshalJSON(batch.ExpectedArtifacts, "expected artifacts")
	if err != nil {
		return err
	}
	producedJSON, err := marshalJSON(batch.ProducedArtifacts, "produced artifacts")
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches
		(batch_id, batch_type, status, work_items, expected_artifacts, produced_artifacts,
		 batch_hash, prev_batch_hash, sequence_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		batch.BatchID,
		batch.BatchType,
		string(batch.Status),
		itemsJSON,
		expectedJSON,
		producedJSON,
		batch.BatchHash,
		batch.PrevBatchHash,
		batch.SequenceNumber,
		marshalTime(batch.CreatedAt),
		marshalTime(batch.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

func scanBatch(row rowScanner) (*record.WorkBatch, error) {
	var b record.WorkBatch
	var status, items, expected, produced, createdAt, updatedAt string
	var recon sql.NullString
	if err := row.Scan(&b.BatchID, &b.BatchType, &status, &items, &expected, &produced,
		&recon, &b.BatchHash, &b.PrevBatchHash, &b.SequenceNumber, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	b.Status = record.BatchStatus(status)
	if err := unmarshalJSON(items, &b.WorkItems, "work items"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(expected, &b.ExpectedArtifacts, "expected artifacts"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(produced, &b.ProducedArtifacts, "produced artifacts"); err != nil {
		return nil, err
	}
	if recon.Valid && recon.String != "" {
		b.Reconciliation = &record.ReconciliationReport{}
		if err := unmarshalJSON(recon.String, b.Reconciliation, "reconciliation"); err != nil {
			return nil, err
		}
	}
	var err error
	if b.CreatedAt, err = unmarshalTime(createdAt, "batch created_at"); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = unmarshalTime(updatedAt, "batch updated_at"); err != nil {
		return nil, err
	}
	return &b, nil
}
