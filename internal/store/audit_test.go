package store

import (
	"context"
	"testing"
	"time"

	"github.com/arbiter-io/arbiter/internal/record"
)

func testEvent(id, eventType, taskID string, ts time.Time) record.AuditEvent {
	return record.AuditEvent{
		EventID:   id,
		EventType: eventType,
		Timestamp: ts,
		TaskID:    taskID,
		Period:    record.Period(ts),
		Schema:    record.AuditSchemaVersion,
		Payload:   map[string]any{"k": "v"},
	}
}

func TestAppendEvent_AssignsSequencePerPeriod(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	day1 := testTime()
	day2 := day1.Add(24 * time.Hour)

	e1, err := s.AppendEvent(ctx, testEvent("evt-1", "lease.granted", "t1", day1))
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	e2, err := s.AppendEvent(ctx, testEvent("evt-2", "lease.released", "t1", day1))
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	e3, err := s.AppendEvent(ctx, testEvent("evt-3", "lease.granted", "t2", day2))
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	if e1.SequenceNumber != 1 || e2.SequenceNumber != 2 {
		t.Errorf("same-period sequences = %d, %d, want 1, 2", e1.SequenceNumber, e2.SequenceNumber)
	}
	if e3.SequenceNumber != 1 {
		t.Errorf("new period should restart at 1, got %d", e3.SequenceNumber)
	}
}

func TestAppendEvent_RejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendEvent(ctx, testEvent("evt-1", "lease.granted", "t1", testTime())); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	if _, err := s.AppendEvent(ctx, testEvent("evt-1", "lease.granted", "t1", testTime())); err == nil {
		t.Error("duplicate event id should be rejected")
	}
}

func TestQueryEvents_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := testTime()
	events := []record.AuditEvent{
		testEvent("evt-1", "lease.granted", "task-a", base),
		testEvent("evt-2", "lease.released", "task-a", base.Add(time.Minute)),
		testEvent("evt-3", "lease.granted", "task-b", base.Add(2*time.Minute)),
	}
	for _, e := range events {
		if _, err := s.AppendEvent(ctx, e); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}

	byType, err := s.QueryEvents(ctx, EventFilter{EventType: "lease.granted"})
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("by type: got %d events, want 2", len(byType))
	}

	byTask, err := s.QueryEvents(ctx, EventFilter{TaskID: "task-a"})
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if len(byTask) != 2 {
		t.Errorf("by task: got %d events, want 2", len(byTask))
	}

	since, err := s.QueryEvents(ctx, EventFilter{Since: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("since: got %d events, want 2", len(since))
	}

	all, err := s.QueryEvents(ctx, EventFilter{})
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all: got %d events, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].SequenceNumber <= all[i-1].SequenceNumber {
			t.Errorf("events out of file order at %d", i)
		}
	}
}

func TestQueryEvents_RoundTripsPayload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testEvent("evt-1", "lease.granted", "t1", testTime())
	e.Payload = map[string]any{"lease_id": "ls-1", "resources": []any{"go.mod"}}
	if _, err := s.AppendEvent(ctx, e); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	got, err := s.QueryEvents(ctx, EventFilter{})
	if err != nil {
		t.Fatalf("QueryEvents failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Payload["lease_id"] != "ls-1" {
		t.Errorf("payload = %+v", got[0].Payload)
	}
	if got[0].Schema != record.AuditSchemaVersion {
		t.Errorf("schema = %s, want %s", got[0].Schema, record.AuditSchemaVersion)
	}
}
