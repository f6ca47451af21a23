// Package ledger implements the append-only audit ledger.
//
// Every coordination decision in the system is recorded here. Events are
// immutable once written; ordering within a period is append order, and
// causal ordering across periods is reconstructed from parent_event_id
// chaining. Emitting never reads existing rows, so concurrent single-record
// appends are safe; queries tolerate concurrent appends.
package ledger

import (
	"context"
	"fmt"

	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/store"
)

// Ledger appends and queries audit events.
type Ledger struct {
	store *store.Store
	clock record.Clock
}

// New creates a ledger over the given store.
func New(st *store.Store, clock record.Clock) *Ledger {
	return &Ledger{store: st, clock: clock}
}

// EmitRequest carries the caller-supplied fields of a new event.
type EmitRequest struct {
	EventType     string
	Payload       map[string]any
	TaskID        string
	AgentID       string
	SessionID     string
	CorrelationID string
	ParentEventID string
}

// Emit appends one event to the current period's partition and returns its
// generated event ID. The ID is time-sortable; the sequence number is
// assigned atomically at append time.
func (l *Ledger) Emit(ctx context.Context, req EmitRequest) (string, error) {
	if req.EventType == "" {
		return "", fmt.Errorf("emit: event_type is required")
	}
	now := l.clock.Now()
	event := record.AuditEvent{
		EventID:       record.NewEventID(),
		EventType:     req.EventType,
		Timestamp:     now,
		Period:        record.Period(now),
		Schema:        record.AuditSchemaVersion,
		AgentID:       req.AgentID,
		SessionID:     req.SessionID,
		TaskID:        req.TaskID,
		CorrelationID: req.CorrelationID,
		ParentEventID: req.ParentEventID,
		Payload:       req.Payload,
	}
	appended, err := l.store.AppendEvent(ctx, event)
	if err != nil {
		return "", fmt.Errorf("emit %s: %w", req.EventType, err)
	}
	return appended.EventID, nil
}

// Query returns events matching the filter in file order.
func (l *Ledger) Query(ctx context.Context, filter store.EventFilter) ([]record.AuditEvent, error) {
	return l.store.QueryEvents(ctx, filter)
}

// TaskHistory reconstructs the causal history of a task. Events are ordered
// by parent_event_id chaining: each root (an event whose parent is absent
// from the task's set) is followed by its descendants depth-first, children
// in file order. The result is independent of physical storage boundaries.
func (l *Ledger) TaskHistory(ctx context.Context, taskID string) ([]record.AuditEvent, error) {
	events, err := l.store.QueryEvents(ctx, store.EventFilter{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	return causalOrder(events), nil
}

// causalOrder sorts events so every event follows its parent. Input arrives
// in file order, which is preserved among siblings and among roots.
func causalOrder(events []record.AuditEvent) []record.AuditEvent {
	inSet := make(map[string]bool, len(events))
	for _, e := range events {
		inSet[e.EventID] = true
	}

	children := make(map[string][]record.AuditEvent)
	var roots []record.AuditEvent
	for _, e := range events {
		if e.ParentEventID != "" && inSet[e.ParentEventID] {
			children[e.ParentEventID] = append(children[e.ParentEventID], e)
		} else {
			roots = append(roots, e)
		}
	}

	ordered := make([]record.AuditEvent, 0, len(events))
	var walk func(e record.AuditEvent)
	walk = func(e record.AuditEvent) {
		ordered = append(ordered, e)
		for _, child := range children[e.EventID] {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return ordered
}
