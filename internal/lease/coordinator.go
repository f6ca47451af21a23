// Package lease implements the resource lease coordinator.
//
// The coordinator is the decision authority callers consult before mutating
// shared resources. Every operation is a single synchronous read-decide-write
// sequence; contention returns BUSY immediately (there is no wait queue), and
// expiry is evaluated lazily at decision time. Mutual exclusion is enforced
// inside the store's transaction, so concurrent claimants serialize rather
// than race.
package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arbiter-io/arbiter/internal/ledger"
	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/store"
)

// MaxTTLSeconds caps lease lifetimes at 7 days. Longer requests are silently
// capped, not rejected.
const MaxTTLSeconds int64 = 7 * 24 * 60 * 60

// Ledger event types emitted by the coordinator.
const (
	EventLeaseGranted       = "lease.granted"
	EventLeaseReleased      = "lease.released"
	EventLeaseForceReleased = "lease.force_released"
	EventLeaseRenewed       = "lease.renewed"
	EventLeaseExtended      = "lease.extended"
)

// Coordinator decides claim, release, and renewal requests against the
// lease store and records every decision in the ledger.
type Coordinator struct {
	store  *store.Store
	ledger *ledger.Ledger
	clock  record.Clock
}

// NewCoordinator creates a coordinator over the given store and ledger.
func NewCoordinator(st *store.Store, lg *ledger.Ledger, clock record.Clock) *Coordinator {
	return &Coordinator{store: st, ledger: lg, clock: clock}
}

// ClaimRequest asks for a lease on a set of resources.
type ClaimRequest struct {
	Resources  []record.ClaimedResource
	Mode       record.Mode
	TTLSeconds int64
	Intent     string
	AgentID    string
	WorkID     string
	AttemptID  string
}

// Claim decides a lease request. Validation fails closed with DENIED and a
// specific reason code; overlap with any active, unexpired lease returns
// BUSY naming the holding agent; otherwise a lease is created and GRANTED.
func (c *Coordinator) Claim(ctx context.Context, req ClaimRequest) (Decision, error) {
	if len(req.Resources) == 0 {
		return denied(ReasonInvalidResources, "resources must be non-empty"), nil
	}
	if req.TTLSeconds <= 0 {
		return denied(ReasonInvalidTTL, "ttl_s must be positive"), nil
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return denied(ReasonInvalidAgentID, "agent_id must be non-blank"), nil
	}
	mode := req.Mode
	if mode == "" {
		mode = record.ModeWrite
	}

	now := c.clock.Now()
	lease := record.Lease{
		LeaseID:      record.NewLeaseID(),
		OwnerAgentID: req.AgentID,
		Mode:         mode,
		Resources:    record.NormalizeResources(req.Resources),
		IssuedAt:     now,
		ExpiresAt:    now.Add(capTTL(req.TTLSeconds)),
		Status:       record.LeaseActive,
		WorkID:       req.WorkID,
		AttemptID:    req.AttemptID,
	}

	conflict, err := c.store.AcquireLease(ctx, lease, now)
	if err != nil {
		return Decision{}, fmt.Errorf("claim: %w", err)
	}
	if conflict != nil {
		return busy(ReasonResourceHeld, conflict), nil
	}

	c.emit(ctx, ledger.EmitRequest{
		EventType: EventLeaseGranted,
		AgentID:   req.AgentID,
		TaskID:    req.WorkID,
		Payload: map[string]any{
			"lease_id":  lease.LeaseID,
			"mode":      string(lease.Mode),
			"intent":    req.Intent,
			"resources": resourcePaths(lease.Resources),
		},
	})
	return granted(&lease), nil
}

// Peek is the read-only variant of Claim: it reports what the decision
// would be without creating a lease. Empty resources are vacuously GRANTED.
func (c *Coordinator) Peek(ctx context.Context, resources []record.ClaimedResource, mode record.Mode) (Decision, error) {
	if len(resources) == 0 {
		return Decision{Outcome: Granted}, nil
	}
	if mode == "" {
		mode = record.ModeWrite
	}
	conflict, err := c.store.FindConflict(ctx, record.NormalizeResources(resources), mode, c.clock.Now())
	if err != nil {
		return Decision{}, fmt.Errorf("peek: %w", err)
	}
	if conflict != nil {
		return busy(ReasonResourceHeld, conflict), nil
	}
	return Decision{Outcome: Granted}, nil
}

// ClaimAdditional extends an existing lease's resource set. Absent or
// settled leases are DENY_MISSING_LEASE; overlap with another active lease
// is BUSY_WRITE_HELD.
func (c *Coordinator) ClaimAdditional(ctx context.Context, leaseID string, resources []record.ClaimedResource) (Decision, error) {
	if len(resources) == 0 {
		return denied(ReasonInvalidResources, "resources must be non-empty"), nil
	}
	updated, conflict, err := c.store.AddLeaseResources(ctx, leaseID, record.NormalizeResources(resources), c.clock.Now())
	if err != nil {
		return Decision{}, fmt.Errorf("claim additional: %w", err)
	}
	if conflict != nil {
		return busy(ReasonWriteHeld, conflict), nil
	}
	if updated == nil {
		return denied(ReasonMissingLease, fmt.Sprintf("lease %s is absent or no longer active", leaseID)), nil
	}

	c.emit(ctx, ledger.EmitRequest{
		EventType: EventLeaseExtended,
		AgentID:   updated.OwnerAgentID,
		Payload: map[string]any{
			"lease_id":  updated.LeaseID,
			"resources": resourcePaths(updated.Resources),
		},
	})
	return granted(updated), nil
}

// Release releases a lease. Idempotent: an unknown lease is DENIED
// LEASE_NOT_FOUND, an already-released lease is GRANTED
// RELEASED_IDEMPOTENT_REPLAY, and the first release of an active lease is
// GRANTED.
func (c *Coordinator) Release(ctx context.Context, leaseID, outcome string) (Decision, error) {
	prev, released, err := c.store.ReleaseLease(ctx, leaseID)
	if err != nil {
		return Decision{}, fmt.Errorf("release: %w", err)
	}
	if prev == nil {
		return denied(ReasonLeaseNotFound, fmt.Sprintf("no lease %s", leaseID)), nil
	}
	if !released {
		return Decision{Outcome: Granted, ReasonCode: ReasonReleasedReplay, Lease: prev}, nil
	}

	c.emit(ctx, ledger.EmitRequest{
		EventType: EventLeaseReleased,
		AgentID:   prev.OwnerAgentID,
		TaskID:    prev.WorkID,
		Payload: map[string]any{
			"lease_id": leaseID,
			"outcome":  outcome,
		},
	})
	prev.Status = record.LeaseReleased
	return granted(prev), nil
}

// ForceRelease is the administrative override: it releases every active
// lease covering the resource regardless of owner. The decision always
// carries OVERRIDE_FORCE_RELEASE and a human-readable message.
func (c *Coordinator) ForceRelease(ctx context.Context, resource record.ClaimedResource, reason, operatorID string) (Decision, error) {
	released, err := c.store.ForceReleaseResource(ctx, resource.Normalize(), c.clock.Now())
	if err != nil {
		return Decision{}, fmt.Errorf("force release: %w", err)
	}

	for _, lease := range released {
		c.emit(ctx, ledger.EmitRequest{
			EventType: EventLeaseForceReleased,
			AgentID:   operatorID,
			Payload: map[string]any{
				"lease_id":       lease.LeaseID,
				"previous_owner": lease.OwnerAgentID,
				"resource":       record.NormalizePath(resource.Path),
				"reason":         reason,
			},
		})
	}

	message := fmt.Sprintf("operator %s force-released %d lease(s) on %s: %s",
		operatorID, len(released), record.NormalizePath(resource.Path), reason)
	return Decision{Outcome: Granted, ReasonCode: ReasonForceRelease, Message: message}, nil
}

// Status records a heartbeat/liveness event against an active lease.
// Returns false for a blank lease ID or a lease that is not active; never
// an error for those cases.
func (c *Coordinator) Status(ctx context.Context, leaseID, eventType string, payload map[string]any) (bool, error) {
	if strings.TrimSpace(leaseID) == "" || eventType == "" {
		return false, nil
	}
	lease, err := c.store.GetLease(ctx, leaseID)
	if err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	if lease == nil || lease.Status != record.LeaseActive || lease.Expired(c.clock.Now()) {
		return false, nil
	}

	// Annotate a copy: the payload map belongs to the caller.
	annotated := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		annotated[k] = v
	}
	annotated["lease_id"] = leaseID
	if _, err := c.ledger.Emit(ctx, ledger.EmitRequest{
		EventType: eventType,
		AgentID:   lease.OwnerAgentID,
		TaskID:    lease.WorkID,
		Payload:   annotated,
	}); err != nil {
		return false, fmt.Errorf("status: %w", err)
	}
	return true, nil
}

// Renew extends a lease's expiry by ttlSeconds from now, subject to the same
// cap as Claim. Renewing a missing or settled lease is a caller error.
func (c *Coordinator) Renew(ctx context.Context, leaseID string, ttlSeconds int64) (*record.Lease, error) {
	if ttlSeconds <= 0 {
		return nil, fmt.Errorf("renew %s: ttl_s must be positive", leaseID)
	}
	now := c.clock.Now()
	renewed, err := c.store.RenewLease(ctx, leaseID, now.Add(capTTL(ttlSeconds)))
	if err != nil {
		return nil, fmt.Errorf("renew: %w", err)
	}
	if renewed == nil {
		return nil, fmt.Errorf("renew %s: lease is absent or no longer active", leaseID)
	}

	c.emit(ctx, ledger.EmitRequest{
		EventType: EventLeaseRenewed,
		AgentID:   renewed.OwnerAgentID,
		TaskID:    renewed.WorkID,
		Payload: map[string]any{
			"lease_id":   leaseID,
			"expires_at": renewed.ExpiresAt.Format(time.RFC3339Nano),
		},
	})
	return renewed, nil
}

// ActiveLeases lists the active, unexpired leases.
func (c *Coordinator) ActiveLeases(ctx context.Context) ([]record.Lease, error) {
	return c.store.ActiveLeases(ctx, c.clock.Now())
}

// capTTL converts a requested TTL to a duration, capping before the
// multiplication so absurd values (2^62 seconds) cannot overflow.
func capTTL(ttlSeconds int64) time.Duration {
	if ttlSeconds > MaxTTLSeconds {
		ttlSeconds = MaxTTLSeconds
	}
	return time.Duration(ttlSeconds) * time.Second
}

// emit records a coordination event; ledger failures do not void a decision
// that already committed.
func (c *Coordinator) emit(ctx context.Context, req ledger.EmitRequest) {
	_, _ = c.ledger.Emit(ctx, req)
}

func resourcePaths(rs []record.ClaimedResource) []any {
	paths := make([]any, len(rs))
	for i, r := range rs {
		paths[i] = r.Path
	}
	return paths
}
