// Package reversal implements the saga layer that undoes completed work
// batches.
//
// A reversal captures a pre-reversal snapshot of every affected path, then
// applies compensating actions derived from the batch's recorded artifacts,
// logging each outcome with before/after content hashes. Unlike lease
// release, execution is deliberately NOT idempotent: a reversal transitions
// DRAFT -> COMPLETED exactly once, and a second execution attempt always
// raises.
package reversal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/arbiter-io/arbiter/internal/ledger"
	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/store"
)

// Ledger event types emitted by the reversal coordinator.
const (
	EventReversalCreated  = "reversal.created"
	EventReversalExecuted = "reversal.executed"
)

// ErrReversalNotFound is returned when an operation references an unknown
// reversal.
var ErrReversalNotFound = errors.New("reversal not found")

// AlreadyExecutedError is raised when ExecuteReversal is called on a
// reversal that is no longer in DRAFT. It indicates an orchestration bug.
type AlreadyExecutedError struct {
	ReversalID string
	Status     record.ReversalStatus
}

func (e *AlreadyExecutedError) Error() string {
	return fmt.Sprintf("reversal %s has status %s; only DRAFT reversals execute", e.ReversalID, e.Status)
}

// IsAlreadyExecuted reports whether err is a repeat execution attempt.
// Uses errors.As to handle wrapped errors.
func IsAlreadyExecuted(err error) bool {
	var ae *AlreadyExecutedError
	return errors.As(err, &ae)
}

// VerificationResult reports whether an executed reversal applied cleanly.
type VerificationResult struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	FailedActions []string `json:"failed_actions,omitempty"`
}

// Coordinator creates and executes reversals.
type Coordinator struct {
	store     *store.Store
	ledger    *ledger.Ledger
	clock     record.Clock
	snapshots *SnapshotManager
}

// NewCoordinator creates a reversal coordinator. The snapshot manager's
// workspace root is where compensating actions are applied.
func NewCoordinator(st *store.Store, lg *ledger.Ledger, clock record.Clock, snapshots *SnapshotManager) *Coordinator {
	return &Coordinator{store: st, ledger: lg, clock: clock, snapshots: snapshots}
}

// CreateReversal opens a DRAFT reversal against an existing batch. A FULL
// reversal targets every artifact the batch produced; a PARTIAL reversal
// targets only the given items. The original batch hash is pinned so later
// tampering with the batch is detectable.
func (c *Coordinator) CreateReversal(ctx context.Context, batchID string, rtype record.ReversalType, reason string, items []string) (record.ReversalBatch, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return record.ReversalBatch{}, fmt.Errorf("create reversal: %w", err)
	}
	if batch == nil {
		return record.ReversalBatch{}, fmt.Errorf("create reversal: no batch %s", batchID)
	}

	var targets []string
	switch rtype {
	case record.ReversalFull:
		targets = slices.Clone(batch.ProducedArtifacts)
	case record.ReversalPartial:
		if len(items) == 0 {
			return record.ReversalBatch{}, fmt.Errorf("create reversal: PARTIAL requires items")
		}
		for _, item := range items {
			n := record.NormalizePath(item)
			if !slices.Contains(batch.ProducedArtifacts, n) {
				return record.ReversalBatch{}, fmt.Errorf("create reversal: batch %s did not produce %q", batchID, item)
			}
			targets = append(targets, n)
		}
	default:
		return record.ReversalBatch{}, fmt.Errorf("create reversal: unknown reversal type %q", rtype)
	}

	rev := record.ReversalBatch{
		ReversesBatchID:   batchID,
		ReversalType:      rtype,
		Status:            record.ReversalDraft,
		Reason:            reason,
		ItemsToReverse:    targets,
		Actions:           []record.CompensatingAction{},
		OriginalBatchHash: batch.BatchHash,
		CreatedAt:         c.clock.Now(),
	}
	created, err := c.store.CreateReversal(ctx, rev)
	if err != nil {
		return record.ReversalBatch{}, fmt.Errorf("create reversal: %w", err)
	}

	_, _ = c.ledger.Emit(ctx, ledger.EmitRequest{
		EventType: EventReversalCreated,
		Payload: map[string]any{
			"reversal_id":       created.ReversalID,
			"reverses_batch_id": batchID,
			"reversal_type":     string(rtype),
			"reason":            reason,
		},
	})
	return created, nil
}

// CompensatingActions derives the inverse operations for a batch's recorded
// artifacts. Pure with respect to reversal state: it reads only the batch.
// Artifacts reverse in the opposite of their recorded order.
func (c *Coordinator) CompensatingActions(ctx context.Context, batchID string) ([]record.CompensatingAction, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("compensating actions: %w", err)
	}
	if batch == nil {
		return nil, fmt.Errorf("compensating actions: no batch %s", batchID)
	}
	return deriveActions(batch.ProducedArtifacts), nil
}

// ExecuteReversal runs a DRAFT reversal: snapshot every affected path,
// apply each compensating action, log outcomes with before/after hashes,
// then transition to COMPLETED and archive. A second call always raises.
func (c *Coordinator) ExecuteReversal(ctx context.Context, reversalID string) (record.ReversalBatch, error) {
	rev, err := c.store.GetReversal(ctx, reversalID)
	if err != nil {
		return record.ReversalBatch{}, fmt.Errorf("execute reversal: %w", err)
	}
	if rev == nil {
		return record.ReversalBatch{}, fmt.Errorf("execute reversal %s: %w", reversalID, ErrReversalNotFound)
	}
	if rev.Status != record.ReversalDraft {
		return record.ReversalBatch{}, &AlreadyExecutedError{ReversalID: reversalID, Status: rev.Status}
	}

	if _, err := c.snapshots.CaptureSnapshot(ctx, reversalID, rev.ItemsToReverse); err != nil {
		return record.ReversalBatch{}, fmt.Errorf("execute reversal: %w", err)
	}

	actions := deriveActions(rev.ItemsToReverse)
	for i := range actions {
		c.apply(&actions[i])
	}
	rev.Actions = actions
	rev.Status = record.ReversalCompleted

	completed, err := c.store.CompleteReversal(ctx, *rev)
	if errors.Is(err, store.ErrReversalSettled) {
		// Lost the race: another execution settled the reversal after our
		// DRAFT read.
		return record.ReversalBatch{}, &AlreadyExecutedError{ReversalID: reversalID, Status: record.ReversalCompleted}
	}
	if err != nil {
		return record.ReversalBatch{}, fmt.Errorf("execute reversal: %w", err)
	}

	_, _ = c.ledger.Emit(ctx, ledger.EmitRequest{
		EventType: EventReversalExecuted,
		Payload: map[string]any{
			"reversal_id": reversalID,
			"actions":     int64(len(actions)),
		},
	})
	return completed, nil
}

// VerifyReversal re-checks an executed reversal's logged action results.
// Unknown or non-COMPLETED reversals report success=false with a message
// rather than raising.
func (c *Coordinator) VerifyReversal(ctx context.Context, reversalID string) (VerificationResult, error) {
	rev, err := c.store.GetReversal(ctx, reversalID)
	if err != nil {
		return VerificationResult{}, fmt.Errorf("verify reversal: %w", err)
	}
	if rev == nil {
		return VerificationResult{Success: false, Message: fmt.Sprintf("no reversal %s", reversalID)}, nil
	}
	if rev.Status != record.ReversalCompleted {
		return VerificationResult{Success: false, Message: fmt.Sprintf("reversal %s has status %s, not COMPLETED", reversalID, rev.Status)}, nil
	}

	var failed []string
	for _, action := range rev.Actions {
		if action.Result != record.ActionResultSuccess {
			failed = append(failed, action.ActionID)
		}
	}
	if len(failed) > 0 {
		return VerificationResult{
			Success:       false,
			Message:       fmt.Sprintf("%d compensating action(s) failed", len(failed)),
			FailedActions: failed,
		}, nil
	}
	return VerificationResult{Success: true, Message: "all compensating actions applied"}, nil
}

// Snapshots exposes the snapshot manager for direct lookup.
func (c *Coordinator) Snapshots() *SnapshotManager { return c.snapshots }

// apply executes one compensating action against the workspace, recording
// the outcome and before/after content hashes in place.
func (c *Coordinator) apply(action *record.CompensatingAction) {
	action.ExecutedAt = c.clock.Now()

	before, err := c.snapshots.fileState(action.Target)
	if err != nil {
		action.Result = "failed: " + err.Error()
		return
	}
	action.BeforeHash = before.Hash

	switch action.ActionType {
	case record.ActionDeleteFile:
		abs, err := c.snapshots.resolve(action.Target)
		if err != nil {
			action.Result = "failed: " + err.Error()
			return
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			action.Result = "failed: " + err.Error()
			return
		}
	default:
		action.Result = fmt.Sprintf("failed: unknown action type %q", action.ActionType)
		return
	}

	after, err := c.snapshots.fileState(action.Target)
	if err != nil {
		action.Result = "failed: " + err.Error()
		return
	}
	action.AfterHash = after.Hash
	action.Result = record.ActionResultSuccess
}

// deriveActions builds delete actions for produced artifacts in reverse
// recorded order.
func deriveActions(artifacts []string) []record.CompensatingAction {
	actions := make([]record.CompensatingAction, 0, len(artifacts))
	for i := len(artifacts) - 1; i >= 0; i-- {
		actions = append(actions, record.CompensatingAction{
			ActionID:   record.NewActionID(),
			ActionType: record.ActionDeleteFile,
			Target:     artifacts[i],
		})
	}
	return actions
}
