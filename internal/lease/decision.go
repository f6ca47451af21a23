package lease

import "github.com/arbiter-io/arbiter/internal/record"

// Outcome classifies a coordination decision.
type Outcome string

const (
	// Granted means the request succeeded and, for claims, a lease exists.
	Granted Outcome = "GRANTED"

	// Busy means another active lease holds an overlapping resource. The
	// caller retries or escalates to force-release; the conflicting owner is
	// identified in the decision.
	Busy Outcome = "BUSY"

	// Denied means the request was invalid or referenced a lease that does
	// not exist. Always safe to call again.
	Denied Outcome = "DENIED"
)

// Reason codes carried on decisions. Validation failures and contention are
// expected business outcomes, so they surface here rather than as errors.
const (
	ReasonInvalidResources = "DENY_INVALID_RESOURCES"
	ReasonInvalidTTL       = "DENY_INVALID_TTL"
	ReasonInvalidAgentID   = "DENY_INVALID_AGENT_ID"
	ReasonMissingLease     = "DENY_MISSING_LEASE"
	ReasonLeaseNotFound    = "LEASE_NOT_FOUND"
	ReasonResourceHeld     = "BUSY_RESOURCE_HELD"
	ReasonWriteHeld        = "BUSY_WRITE_HELD"
	ReasonReleasedReplay   = "RELEASED_IDEMPOTENT_REPLAY"
	ReasonForceRelease     = "OVERRIDE_FORCE_RELEASE"
)

// Decision is the result of a coordinator operation. Contention and
// validation failures are values, never errors; errors are reserved for
// storage faults.
type Decision struct {
	Outcome    Outcome       `json:"outcome"`
	ReasonCode string        `json:"reason_code,omitempty"`
	Message    string        `json:"message,omitempty"`
	HeldBy     string        `json:"held_by,omitempty"`
	Lease      *record.Lease `json:"lease,omitempty"`
}

// Granted reports whether the decision granted the request.
func (d Decision) IsGranted() bool { return d.Outcome == Granted }

func granted(lease *record.Lease) Decision {
	return Decision{Outcome: Granted, Lease: lease}
}

func busy(reason string, conflict *record.Lease) Decision {
	return Decision{Outcome: Busy, ReasonCode: reason, HeldBy: conflict.OwnerAgentID}
}

func denied(reason, message string) Decision {
	return Decision{Outcome: Denied, ReasonCode: reason, Message: message}
}
