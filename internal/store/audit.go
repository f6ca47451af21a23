package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/arbiter-io/arbiter/internal/record"
)

// AppendEvent appends one event to the ledger, assigning the next sequence
// number within the event's period. The counter increment and the insert
// commit together, so sequence numbers are gapless per period.
//
// Ledger rows are never updated or deleted.
func (s *Store) AppendEvent(ctx context.Context, event record.AuditEvent) (record.AuditEvent, error) {
	payloadJSON, err := marshalJSON(event.Payload, "event payload")
	if err != nil {
		return record.AuditEvent{}, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		seq, err := nextSequenceTx(ctx, tx, "audit", event.Period)
		if err != nil {
			return err
		}
		event.SequenceNumber = seq
		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_events
			(event_id, period, sequence_number, event_type, timestamp,
			 agent_id, session_id, task_id, correlation_id, parent_event_id, payload, schema)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			event.EventID,
			event.Period,
			event.SequenceNumber,
			event.EventType,
			marshalTime(event.Timestamp),
			event.AgentID,
			event.SessionID,
			event.TaskID,
			event.CorrelationID,
			event.ParentEventID,
			payloadJSON,
			event.Schema,
		)
		if err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	})
	if err != nil {
		return record.AuditEvent{}, err
	}
	return event, nil
}

// EventFilter selects ledger events. Zero-valued fields match everything.
type EventFilter struct {
	EventType string
	TaskID    string
	Period    string
	Since     time.Time
	Until     time.Time
}

// QueryEvents returns events matching the filter in file order
// (period, then per-period sequence number).
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]record.AuditEvent, error) {
	var conds []string
	var args []any
	if filter.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.TaskID != "" {
		conds = append(conds, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.Period != "" {
		conds = append(conds, "period = ?")
		args = append(args, filter.Period)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, marshalTime(filter.Since))
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, marshalTime(filter.Until))
	}

	query := `
		SELECT event_id, period, sequence_number, event_type, timestamp,
		       agent_id, session_id, task_id, correlation_id, parent_event_id, payload, schema
		FROM audit_events`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY period ASC, sequence_number ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]record.AuditEvent, error) {
	var events []record.AuditEvent
	for rows.Next() {
		var e record.AuditEvent
		var timestamp, payload string
		if err := rows.Scan(&e.EventID, &e.Period, &e.SequenceNumber, &e.EventType, &timestamp,
			&e.AgentID, &e.SessionID, &e.TaskID, &e.CorrelationID, &e.ParentEventID, &payload, &e.Schema); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var err error
		if e.Timestamp, err = unmarshalTime(timestamp, "event timestamp"); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(payload, &e.Payload, "event payload"); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	if events == nil {
		events = []record.AuditEvent{}
	}
	return events, nil
}
