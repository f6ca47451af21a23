// Package batch implements the work batch lifecycle.
//
// A batch moves DRAFT -> EXECUTING -> VERIFYING -> COMPLETED, with FAILED
// reachable from any non-terminal state. Completion has a hard precondition:
// the reconciliation report must be balanced, meaning the batch produced no
// artifact outside its declared expectations. The set-difference algorithm
// here must stay outcome-equivalent to the policy engine's independent
// implementation; an external conformance suite checks both.
//
// Every mutation runs its status check and write in one store transaction
// and recomputes the batch hash, so concurrent transitions serialize and the
// hash chain (prev_batch_hash -> batch_hash) stays tamper-evident.
package batch

import (
	"context"
	"fmt"
	"slices"

	"github.com/arbiter-io/arbiter/internal/ledger"
	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/store"
)

// Ledger event types emitted by the batch coordinator.
const (
	EventBatchCreated   = "batch.created"
	EventBatchStarted   = "batch.started"
	EventBatchVerified  = "batch.verified"
	EventBatchCompleted = "batch.completed"
	EventBatchFailed    = "batch.failed"
)

// validTransitions lists every allowed state change. Anything not listed is
// a TransitionError.
var validTransitions = map[record.BatchStatus][]record.BatchStatus{
	record.BatchDraft:     {record.BatchExecuting, record.BatchFailed},
	record.BatchExecuting: {record.BatchVerifying, record.BatchFailed},
	record.BatchVerifying: {record.BatchCompleted, record.BatchFailed},
}

// Coordinator drives batches through their lifecycle.
type Coordinator struct {
	store  *store.Store
	ledger *ledger.Ledger
	clock  record.Clock
}

// NewCoordinator creates a batch coordinator.
func NewCoordinator(st *store.Store, lg *ledger.Ledger, clock record.Clock) *Coordinator {
	return &Coordinator{store: st, ledger: lg, clock: clock}
}

// CreateBatch opens a new batch in DRAFT. The batch hash is computed
// immediately and prev_batch_hash links to the most recently created batch.
func (c *Coordinator) CreateBatch(ctx context.Context, batchType string, items []record.WorkItem, expectedArtifacts []string) (record.WorkBatch, error) {
	if batchType == "" {
		return record.WorkBatch{}, fmt.Errorf("create batch: batch_type is required")
	}
	now := c.clock.Now()
	if items == nil {
		items = []record.WorkItem{}
	}
	expected := normalizeArtifacts(expectedArtifacts)

	batch := record.WorkBatch{
		BatchType:         batchType,
		Status:            record.BatchDraft,
		WorkItems:         items,
		ExpectedArtifacts: expected,
		ProducedArtifacts: []string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	created, err := c.store.CreateBatch(ctx, batch)
	if err != nil {
		return record.WorkBatch{}, fmt.Errorf("create batch: %w", err)
	}

	_, _ = c.ledger.Emit(ctx, ledger.EmitRequest{
		EventType: EventBatchCreated,
		Payload: map[string]any{
			"batch_id":   created.BatchID,
			"batch_type": batchType,
		},
	})
	return created, nil
}

// StartBatch moves a batch DRAFT -> EXECUTING.
func (c *Coordinator) StartBatch(ctx context.Context, batchID string) (record.WorkBatch, error) {
	return c.transition(ctx, batchID, record.BatchExecuting, EventBatchStarted, nil)
}

// UpdateWorkItem sets the status of one work item and rehashes the batch.
// Only non-terminal batches may be updated.
func (c *Coordinator) UpdateWorkItem(ctx context.Context, batchID, itemID, status string) (record.WorkBatch, error) {
	return c.mutate(ctx, batchID, func(b *record.WorkBatch) (bool, error) {
		if b.Status.Terminal() {
			return false, &TransitionError{BatchID: batchID, From: b.Status, To: b.Status}
		}
		for i := range b.WorkItems {
			if b.WorkItems[i].ID == itemID {
				b.WorkItems[i].Status = status
				return true, nil
			}
		}
		return false, fmt.Errorf("update work item: batch %s has no item %s", batchID, itemID)
	})
}

// AddProducedArtifact records one artifact the batch produced. The
// reconciliation report is recomputed for visibility but not gated on;
// only CompleteBatch enforces balance.
func (c *Coordinator) AddProducedArtifact(ctx context.Context, batchID, artifact string) (record.WorkBatch, error) {
	return c.mutate(ctx, batchID, func(b *record.WorkBatch) (bool, error) {
		if b.Status.Terminal() {
			return false, &TransitionError{BatchID: batchID, From: b.Status, To: b.Status}
		}
		path := record.NormalizePath(artifact)
		if !slices.Contains(b.ProducedArtifacts, path) {
			b.ProducedArtifacts = append(b.ProducedArtifacts, path)
			slices.Sort(b.ProducedArtifacts)
		}
		report := Reconcile(b.ProducedArtifacts, b.ExpectedArtifacts)
		b.Reconciliation = &report
		return true, nil
	})
}

// VerifyBatch moves a batch EXECUTING -> VERIFYING and recomputes its final
// reconciliation report.
func (c *Coordinator) VerifyBatch(ctx context.Context, batchID string) (record.WorkBatch, error) {
	return c.transition(ctx, batchID, record.BatchVerifying, EventBatchVerified, func(b *record.WorkBatch) error {
		report := Reconcile(b.ProducedArtifacts, b.ExpectedArtifacts)
		b.Reconciliation = &report
		return nil
	})
}

// CompleteBatch moves a batch VERIFYING -> COMPLETED. Hard precondition:
// the reconciliation report must be balanced. On an unbalanced report the
// batch stays VERIFYING and a ReconciliationError is raised.
func (c *Coordinator) CompleteBatch(ctx context.Context, batchID string) (record.WorkBatch, error) {
	return c.transition(ctx, batchID, record.BatchCompleted, EventBatchCompleted, func(b *record.WorkBatch) error {
		report := Reconcile(b.ProducedArtifacts, b.ExpectedArtifacts)
		b.Reconciliation = &report
		if !report.Balanced {
			return &ReconciliationError{BatchID: b.BatchID, UntrackedDelta: report.UntrackedDelta}
		}
		return nil
	})
}

// FailBatch moves a batch to FAILED from any non-terminal state.
func (c *Coordinator) FailBatch(ctx context.Context, batchID, reason string) (record.WorkBatch, error) {
	updated, err := c.mutate(ctx, batchID, func(b *record.WorkBatch) (bool, error) {
		if b.Status.Terminal() {
			return false, &TransitionError{BatchID: batchID, From: b.Status, To: record.BatchFailed}
		}
		b.Status = record.BatchFailed
		return true, nil
	})
	if err != nil {
		return record.WorkBatch{}, err
	}
	_, _ = c.ledger.Emit(ctx, ledger.EmitRequest{
		EventType: EventBatchFailed,
		Payload: map[string]any{
			"batch_id": batchID,
			"reason":   reason,
		},
	})
	return updated, nil
}

// GetBatch returns a batch from either partition.
func (c *Coordinator) GetBatch(ctx context.Context, batchID string) (record.WorkBatch, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return record.WorkBatch{}, fmt.Errorf("load batch: %w", err)
	}
	if batch == nil {
		return record.WorkBatch{}, fmt.Errorf("load batch %s: %w", batchID, ErrBatchNotFound)
	}
	return *batch, nil
}

// ListBatches returns batches in chain order.
func (c *Coordinator) ListBatches(ctx context.Context, includeArchived bool) ([]record.WorkBatch, error) {
	return c.store.ListBatches(ctx, includeArchived)
}

// Reconcile compares produced artifacts against expectations. The untracked
// delta is produced minus expected; any extra entry fails closed. This is
// the shared reconciliation algorithm: declared scope vs actual delta, fail
// on any non-empty difference.
func Reconcile(produced, expected []string) record.ReconciliationReport {
	expectedSet := make(map[string]bool, len(expected))
	for _, e := range expected {
		expectedSet[record.NormalizePath(e)] = true
	}

	producedSorted := normalizeArtifacts(produced)
	untracked := []string{}
	for _, p := range producedSorted {
		if !expectedSet[p] {
			untracked = append(untracked, p)
		}
	}
	return record.ReconciliationReport{
		ProducedArtifacts: producedSorted,
		UntrackedDelta:    untracked,
		Balanced:          len(untracked) == 0,
	}
}

// transition moves a batch to a new status. The allowed-transition check and
// the write share one transaction, so two concurrent transitions from the
// same state resolve to a single winner.
func (c *Coordinator) transition(ctx context.Context, batchID string, to record.BatchStatus, eventType string, mutateFn func(*record.WorkBatch) error) (record.WorkBatch, error) {
	updated, err := c.mutate(ctx, batchID, func(b *record.WorkBatch) (bool, error) {
		if !slices.Contains(validTransitions[b.Status], to) {
			return false, &TransitionError{BatchID: batchID, From: b.Status, To: to}
		}
		if mutateFn != nil {
			if err := mutateFn(b); err != nil {
				// Precondition failed: persist the recomputed report but keep
				// the current status.
				return true, err
			}
		}
		b.Status = to
		return true, nil
	})
	if err != nil {
		return record.WorkBatch{}, err
	}
	_, _ = c.ledger.Emit(ctx, ledger.EmitRequest{
		EventType: eventType,
		Payload: map[string]any{
			"batch_id": batchID,
			"status":   string(to),
		},
	})
	return updated, nil
}

// mutate wraps store.MutateBatch, stamping UpdatedAt on every persisted
// change and mapping a missing batch to ErrBatchNotFound.
func (c *Coordinator) mutate(ctx context.Context, batchID string, fn func(*record.WorkBatch) (bool, error)) (record.WorkBatch, error) {
	updated, err := c.store.MutateBatch(ctx, batchID, func(b *record.WorkBatch) (bool, error) {
		persist, err := fn(b)
		if persist {
			b.UpdatedAt = c.clock.Now()
		}
		return persist, err
	})
	if err != nil {
		return record.WorkBatch{}, err
	}
	if updated == nil {
		return record.WorkBatch{}, fmt.Errorf("load batch %s: %w", batchID, ErrBatchNotFound)
	}
	return *updated, nil
}

func normalizeArtifacts(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		n := record.NormalizePath(p)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}
