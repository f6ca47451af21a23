package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashing. The version suffix enables future
// algorithm migration without colliding with old hashes.
const (
	DomainBatch    = "arbiter/batch/v1"
	DomainReversal = "arbiter/reversal/v1"
	DomainContent  = "arbiter/content/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash digests raw file content for snapshots and compensating
// action before/after records.
func ContentHash(data []byte) string {
	return hashWithDomain(DomainContent, data)
}

// BatchHash computes the tamper-evidence hash of a work batch. It covers the
// canonical serialization of every field except BatchHash itself, so any
// mutation of the batch changes its hash.
func BatchHash(b WorkBatch) (string, error) {
	items := make([]any, len(b.WorkItems))
	for i, wi := range b.WorkItems {
		items[i] = map[string]any{"id": wi.ID, "status": wi.Status}
	}
	obj := map[string]any{
		"batch_id":           b.BatchID,
		"batch_type":         b.BatchType,
		"status":             string(b.Status),
		"work_items":         items,
		"expected_artifacts": b.ExpectedArtifacts,
		"produced_artifacts": b.ProducedArtifacts,
		"prev_batch_hash":    b.PrevBatchHash,
		"sequence_number":    b.SequenceNumber,
		"created_at":         b.CreatedAt,
		"updated_at":         b.UpdatedAt,
	}
	if b.Reconciliation != nil {
		obj["reconciliation"] = map[string]any{
			"produced_artifacts": b.Reconciliation.ProducedArtifacts,
			"untracked_delta":    b.Reconciliation.UntrackedDelta,
			"balanced":           b.Reconciliation.Balanced,
		}
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("batch hash: %w", err)
	}
	return hashWithDomain(DomainBatch, canonical), nil
}

// ReversalHash computes the tamper-evidence hash of a reversal batch,
// covering every field except ReversalHash itself.
func ReversalHash(r ReversalBatch) (string, error) {
	actions := make([]any, len(r.Actions))
	for i, a := range r.Actions {
		m := map[string]any{
			"action_id":   a.ActionID,
			"action_type": a.ActionType,
			"target":      a.Target,
			"result":      a.Result,
			"before_hash": a.BeforeHash,
			"after_hash":  a.AfterHash,
		}
		if !a.ExecutedAt.IsZero() {
			m["executed_at"] = a.ExecutedAt
		}
		actions[i] = m
	}
	obj := map[string]any{
		"reversal_id":              r.ReversalID,
		"reverses_batch_id":        r.ReversesBatchID,
		"reversal_type":            string(r.ReversalType),
		"status":                   string(r.Status),
		"reason":                   r.Reason,
		"items_to_reverse":         r.ItemsToReverse,
		"compensating_actions_log": actions,
		"original_batch_hash":      r.OriginalBatchHash,
		"created_at":               r.CreatedAt,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("reversal hash: %w", err)
	}
	return hashWithDomain(DomainReversal, canonical), nil
}
