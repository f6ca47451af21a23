package store

import (
	"context"
	"testing"
	"time"

	"github.com/arbiter-io/arbiter/internal/record"
)

func testLease(id, agent string, mode record.Mode, resources ...record.ClaimedResource) record.Lease {
	now := testTime()
	return record.Lease{
		LeaseID:      id,
		OwnerAgentID: agent,
		Mode:         mode,
		Resources:    resources,
		IssuedAt:     now,
		ExpiresAt:    now.Add(15 * time.Minute),
		Status:       record.LeaseActive,
	}
}

func fileRes(path string) record.ClaimedResource {
	return record.ClaimedResource{Type: record.ResourceFile, Path: path}
}

func dirRes(path string) record.ClaimedResource {
	return record.ClaimedResource{Type: record.ResourceDirectory, Path: path}
}

func TestAcquireLease_NoConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conflict, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod")), testTime())
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if conflict != nil {
		t.Fatalf("unexpected conflict with %s", conflict.LeaseID)
	}

	got, err := s.GetLease(ctx, "ls-1")
	if err != nil {
		t.Fatalf("GetLease failed: %v", err)
	}
	if got == nil {
		t.Fatal("lease was not persisted")
	}
	if got.OwnerAgentID != "agent-a" || got.Mode != record.ModeWrite {
		t.Errorf("lease round-trip mismatch: %+v", got)
	}
}

func TestAcquireLease_WriteConflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("first AcquireLease failed: %v", err)
	}

	conflict, err := s.AcquireLease(ctx, testLease("ls-2", "agent-b", record.ModeWrite, fileRes("go.mod")), testTime())
	if err != nil {
		t.Fatalf("second AcquireLease failed: %v", err)
	}
	if conflict == nil {
		t.Fatal("expected a conflict")
	}
	if conflict.LeaseID != "ls-1" {
		t.Errorf("conflict lease = %s, want ls-1", conflict.LeaseID)
	}

	// The losing lease must not be written.
	got, err := s.GetLease(ctx, "ls-2")
	if err != nil {
		t.Fatalf("GetLease failed: %v", err)
	}
	if got != nil {
		t.Error("conflicting lease was persisted")
	}
}

func TestAcquireLease_ReadersShare(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeRead, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("first AcquireLease failed: %v", err)
	}
	conflict, err := s.AcquireLease(ctx, testLease("ls-2", "agent-b", record.ModeRead, fileRes("go.mod")), testTime())
	if err != nil {
		t.Fatalf("second AcquireLease failed: %v", err)
	}
	if conflict != nil {
		t.Errorf("two readers should not conflict, got conflict with %s", conflict.LeaseID)
	}
}

func TestAcquireLease_DirectoryContainment(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, dirRes("src")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	conflict, err := s.AcquireLease(ctx, testLease("ls-2", "agent-b", record.ModeWrite, fileRes("src/main.go")), testTime())
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if conflict == nil {
		t.Fatal("file under a held directory should conflict")
	}
}

func TestAcquireLease_ExpiredHolderIgnored(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	expired := testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod"))
	expired.ExpiresAt = testTime().Add(-time.Minute)
	if _, err := s.AcquireLease(ctx, expired, testTime().Add(-20*time.Minute)); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	conflict, err := s.AcquireLease(ctx, testLease("ls-2", "agent-b", record.ModeWrite, fileRes("go.mod")), testTime())
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if conflict != nil {
		t.Errorf("expired lease should not block, got conflict with %s", conflict.LeaseID)
	}
}

func TestAcquireLease_MixedPrecisionExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// The holder expires 20ms after the check instant, but its expiry has a
	// longer sub-second fraction than "now". The TEXT comparison in the
	// expiry scan must still see it as active.
	holder := testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod"))
	holder.ExpiresAt = testTime().Add(5*time.Second + 520*time.Millisecond)
	if _, err := s.AcquireLease(ctx, holder, testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	now := testTime().Add(5*time.Second + 500*time.Millisecond)
	conflict, err := s.AcquireLease(ctx, testLease("ls-2", "agent-b", record.ModeWrite, fileRes("go.mod")), now)
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if conflict == nil {
		t.Fatal("active lease was dropped from the conflict scan")
	}
	if conflict.LeaseID != "ls-1" {
		t.Errorf("conflict = %s, want ls-1", conflict.LeaseID)
	}
}

func TestFindConflict_DoesNotWrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	holder, err := s.FindConflict(ctx, []record.ClaimedResource{fileRes("go.mod")}, record.ModeWrite, testTime())
	if err != nil {
		t.Fatalf("FindConflict failed: %v", err)
	}
	if holder == nil || holder.LeaseID != "ls-1" {
		t.Fatalf("FindConflict = %+v, want ls-1", holder)
	}

	holder, err = s.FindConflict(ctx, []record.ClaimedResource{fileRes("other.go")}, record.ModeWrite, testTime())
	if err != nil {
		t.Fatalf("FindConflict failed: %v", err)
	}
	if holder != nil {
		t.Errorf("unexpected conflict with %s", holder.LeaseID)
	}
}

func TestAddLeaseResources(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	updated, conflict, err := s.AddLeaseResources(ctx, "ls-1", []record.ClaimedResource{fileRes("go.sum")}, testTime())
	if err != nil {
		t.Fatalf("AddLeaseResources failed: %v", err)
	}
	if conflict != nil {
		t.Fatalf("unexpected conflict with %s", conflict.LeaseID)
	}
	if updated == nil || len(updated.Resources) != 2 {
		t.Fatalf("updated lease = %+v, want 2 resources", updated)
	}

	// Missing lease reports neither update nor conflict.
	updated, conflict, err = s.AddLeaseResources(ctx, "ls-missing", []record.ClaimedResource{fileRes("x")}, testTime())
	if err != nil {
		t.Fatalf("AddLeaseResources failed: %v", err)
	}
	if updated != nil || conflict != nil {
		t.Error("missing lease should return nil, nil")
	}
}

func TestAddLeaseResources_DuplicateSkipped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	// A replayed extend with an already-held resource must not grow the
	// record; a mixed request adds only the new resource.
	updated, conflict, err := s.AddLeaseResources(ctx, "ls-1", []record.ClaimedResource{fileRes("go.mod")}, testTime())
	if err != nil {
		t.Fatalf("AddLeaseResources failed: %v", err)
	}
	if conflict != nil {
		t.Fatalf("unexpected conflict with %s", conflict.LeaseID)
	}
	if updated == nil || len(updated.Resources) != 1 {
		t.Fatalf("updated lease = %+v, want 1 resource", updated)
	}

	updated, _, err = s.AddLeaseResources(ctx, "ls-1", []record.ClaimedResource{fileRes("go.mod"), fileRes("go.sum")}, testTime())
	if err != nil {
		t.Fatalf("AddLeaseResources failed: %v", err)
	}
	if updated == nil || len(updated.Resources) != 2 {
		t.Fatalf("updated lease = %+v, want 2 resources", updated)
	}
}

func TestAddLeaseResources_Conflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if _, err := s.AcquireLease(ctx, testLease("ls-2", "agent-b", record.ModeWrite, fileRes("go.sum")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	updated, conflict, err := s.AddLeaseResources(ctx, "ls-1", []record.ClaimedResource{fileRes("go.sum")}, testTime())
	if err != nil {
		t.Fatalf("AddLeaseResources failed: %v", err)
	}
	if conflict == nil || conflict.LeaseID != "ls-2" {
		t.Fatalf("conflict = %+v, want ls-2", conflict)
	}
	if updated != nil {
		t.Error("lease must not grow on conflict")
	}

	got, err := s.GetLease(ctx, "ls-1")
	if err != nil {
		t.Fatalf("GetLease failed: %v", err)
	}
	if len(got.Resources) != 1 {
		t.Errorf("lease resources = %d, want 1", len(got.Resources))
	}
}

func TestReleaseLease_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	prev, released, err := s.ReleaseLease(ctx, "ls-1")
	if err != nil {
		t.Fatalf("first ReleaseLease failed: %v", err)
	}
	if !released {
		t.Error("first release should report released=true")
	}
	if prev == nil || prev.Status != record.LeaseActive {
		t.Errorf("prev = %+v, want active lease", prev)
	}

	prev, released, err = s.ReleaseLease(ctx, "ls-1")
	if err != nil {
		t.Fatalf("second ReleaseLease failed: %v", err)
	}
	if released {
		t.Error("second release should report released=false")
	}
	if prev == nil || prev.Status != record.LeaseReleased {
		t.Errorf("prev = %+v, want released lease", prev)
	}

	prev, released, err = s.ReleaseLease(ctx, "ls-missing")
	if err != nil {
		t.Fatalf("ReleaseLease failed: %v", err)
	}
	if prev != nil || released {
		t.Error("missing lease should return nil, false")
	}
}

func TestForceReleaseResource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeRead, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if _, err := s.AcquireLease(ctx, testLease("ls-2", "agent-b", record.ModeRead, dirRes(".")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if _, err := s.AcquireLease(ctx, testLease("ls-3", "agent-c", record.ModeWrite, fileRes("docs/x.md")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	released, err := s.ForceReleaseResource(ctx, fileRes("go.mod"), testTime())
	if err != nil {
		t.Fatalf("ForceReleaseResource failed: %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("released %d leases, want 2", len(released))
	}

	// The untouched lease stays active; a fresh write claim on go.mod now
	// succeeds.
	conflict, err := s.AcquireLease(ctx, testLease("ls-4", "agent-d", record.ModeWrite, fileRes("go.mod")), testTime())
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if conflict != nil {
		t.Errorf("resource should be free after force release, got conflict with %s", conflict.LeaseID)
	}
	got, err := s.GetLease(ctx, "ls-3")
	if err != nil {
		t.Fatalf("GetLease failed: %v", err)
	}
	if got.Status != record.LeaseActive {
		t.Errorf("unrelated lease status = %s, want active", got.Status)
	}
}

func TestRenewLease(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.AcquireLease(ctx, testLease("ls-1", "agent-a", record.ModeWrite, fileRes("go.mod")), testTime()); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	newExpiry := testTime().Add(time.Hour)
	renewed, err := s.RenewLease(ctx, "ls-1", newExpiry)
	if err != nil {
		t.Fatalf("RenewLease failed: %v", err)
	}
	if renewed == nil || !renewed.ExpiresAt.Equal(newExpiry) {
		t.Fatalf("renewed = %+v, want expiry %s", renewed, newExpiry)
	}

	renewed, err = s.RenewLease(ctx, "ls-missing", newExpiry)
	if err != nil {
		t.Fatalf("RenewLease failed: %v", err)
	}
	if renewed != nil {
		t.Error("missing lease should return nil")
	}
}

func TestActiveLeases_EmptyNotNil(t *testing.T) {
	s := openTestStore(t)

	leases, err := s.ActiveLeases(context.Background(), testTime())
	if err != nil {
		t.Fatalf("ActiveLeases failed: %v", err)
	}
	if leases == nil {
		t.Error("empty result should be an empty slice, not nil")
	}
	if len(leases) != 0 {
		t.Errorf("got %d leases, want 0", len(leases))
	}
}
