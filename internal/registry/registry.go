// Package registry implements the namespace-scoped claim registry.
//
// The registry is the Coordinator's multi-tenant variant: claims carry a
// namespace, identical paths in different namespaces never conflict, and an
// idempotency key lets a caller repeat a request and receive the original
// claim without consuming a new sequence number.
//
// Contention and request validation failures are expected business
// outcomes and are returned as values (AcquireResult.Conflict,
// AcquireResult.Denied), never errors. Namespace authorization failures
// are errors: they indicate caller misconfiguration.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arbiter-io/arbiter/internal/ledger"
	"github.com/arbiter-io/arbiter/internal/lease"
	"github.com/arbiter-io/arbiter/internal/record"
	"github.com/arbiter-io/arbiter/internal/store"
)

// DefaultNamespace is used when a request names no namespace.
const DefaultNamespace = "default"

// Ledger event types emitted by the registry.
const (
	EventClaimGranted  = "claim.granted"
	EventClaimReplayed = "claim.replayed"
)

// Registry grants and lists namespace-scoped claims.
type Registry struct {
	store  *store.Store
	ledger *ledger.Ledger
	clock  record.Clock
	auth   Authorizer
}

// New creates a registry. A nil authorizer allows every namespace.
func New(st *store.Store, lg *ledger.Ledger, clock record.Clock, auth Authorizer) *Registry {
	if auth == nil {
		auth = AllowAll{}
	}
	return &Registry{store: st, ledger: lg, clock: clock, auth: auth}
}

// AcquireRequest asks for a claim in a namespace.
type AcquireRequest struct {
	TaskID         string
	AgentID        string
	Namespace      string
	Resources      []record.ClaimedResource
	TTLSeconds     int64
	IdempotencyKey string
}

// ClaimConflict identifies the active claim that blocked an acquisition.
type ClaimConflict struct {
	ClaimID  string                 `json:"claim_id"`
	AgentID  string                 `json:"agent_id"`
	Resource record.ClaimedResource `json:"resource"`
}

// Denial reports an invalid acquisition request. It carries the same
// reason codes the lease coordinator uses, so callers see one validation
// contract across both claim surfaces.
type Denial struct {
	ReasonCode string `json:"reason_code"`
	Message    string `json:"message"`
}

// AcquireResult is the tagged outcome of Acquire: exactly one of Claim,
// Conflict, or Denied is set.
type AcquireResult struct {
	Claim    *record.Claim  `json:"claim,omitempty"`
	Conflict *ClaimConflict `json:"conflict,omitempty"`
	Denied   *Denial        `json:"denied,omitempty"`
	Replayed bool           `json:"replayed,omitempty"`
}

// Granted reports whether a claim was obtained (fresh or replayed).
func (r AcquireResult) Granted() bool { return r.Claim != nil }

// Acquire grants a claim when no active claim in the same namespace overlaps
// the requested resources. An idempotency-key replay returns the original
// claim without advancing the sequence counter; the same key in another
// namespace is an independent key space. Invalid requests fail closed with
// a Denied result, never an error.
func (r *Registry) Acquire(ctx context.Context, req AcquireRequest) (AcquireResult, error) {
	if len(req.Resources) == 0 {
		return AcquireResult{Denied: &Denial{ReasonCode: lease.ReasonInvalidResources, Message: "resources must be non-empty"}}, nil
	}
	if req.TTLSeconds <= 0 {
		return AcquireResult{Denied: &Denial{ReasonCode: lease.ReasonInvalidTTL, Message: "ttl_s must be positive"}}, nil
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return AcquireResult{Denied: &Denial{ReasonCode: lease.ReasonInvalidAgentID, Message: "agent_id must be non-blank"}}, nil
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if !r.auth.Authorized(req.AgentID, namespace) {
		return AcquireResult{}, &AuthorizationError{AgentID: req.AgentID, Namespace: namespace}
	}

	now := r.clock.Now()
	ttl := req.TTLSeconds
	if ttl > maxClaimTTLSeconds {
		ttl = maxClaimTTLSeconds
	}
	claim := record.Claim{
		TaskID:         req.TaskID,
		AgentID:        req.AgentID,
		Namespace:      namespace,
		Resources:      record.NormalizeResources(req.Resources),
		ExpiresAt:      now.Add(time.Duration(ttl) * time.Second),
		IdempotencyKey: req.IdempotencyKey,
	}

	out, err := r.store.AcquireClaim(ctx, claim, now)
	if err != nil {
		return AcquireResult{}, fmt.Errorf("acquire: %w", err)
	}
	if out.Conflict != nil {
		blocking, _ := record.AnyOverlap(claim.Resources, out.Conflict.Resources)
		return AcquireResult{Conflict: &ClaimConflict{
			ClaimID:  out.Conflict.ClaimID,
			AgentID:  out.Conflict.AgentID,
			Resource: blocking,
		}}, nil
	}

	eventType := EventClaimGranted
	if out.Replayed {
		eventType = EventClaimReplayed
	}
	_, _ = r.ledger.Emit(ctx, ledger.EmitRequest{
		EventType: eventType,
		AgentID:   req.AgentID,
		TaskID:    req.TaskID,
		Payload: map[string]any{
			"claim_id":  out.Claim.ClaimID,
			"namespace": namespace,
		},
	})
	return AcquireResult{Claim: out.Claim, Replayed: out.Replayed}, nil
}

// ListClaims returns the active claims visible to the requesting agent.
// Listing a namespace the agent is not authorized for raises an
// authorization error. With allNamespaces set, unauthorized namespaces are
// filtered out of the result rather than raising.
func (r *Registry) ListClaims(ctx context.Context, requestingAgentID, namespace string, allNamespaces bool) ([]record.Claim, error) {
	now := r.clock.Now()
	if allNamespaces {
		claims, err := r.store.AllClaims(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("list claims: %w", err)
		}
		visible := make([]record.Claim, 0, len(claims))
		for _, c := range claims {
			if r.auth.Authorized(requestingAgentID, c.Namespace) {
				visible = append(visible, c)
			}
		}
		return visible, nil
	}

	if namespace == "" {
		namespace = DefaultNamespace
	}
	if !r.auth.Authorized(requestingAgentID, namespace) {
		return nil, &AuthorizationError{AgentID: requestingAgentID, Namespace: namespace}
	}
	claims, err := r.store.ClaimsInNamespace(ctx, namespace, now)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return claims, nil
}

// maxClaimTTLSeconds matches the lease coordinator's 7 day cap.
const maxClaimTTLSeconds int64 = 7 * 24 * 60 * 60
