package record

import "time"

// Mode is the access mode requested for a lease.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// LeaseStatus is the lifecycle state of a lease.
type LeaseStatus string

const (
	LeaseActive   LeaseStatus = "active"
	LeaseReleased LeaseStatus = "released"
	LeaseExpired  LeaseStatus = "expired"
)

// Lease is a time-bounded hold on one or more resources. A lease becomes
// logically inert once ExpiresAt has passed; nothing is required to delete it.
type Lease struct {
	LeaseID      string            `json:"lease_id"`
	OwnerAgentID string            `json:"owner_agent_id"`
	Mode         Mode              `json:"mode"`
	Resources    []ClaimedResource `json:"resources"`
	IssuedAt     time.Time         `json:"issued_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Status       LeaseStatus       `json:"status"`
	WorkID       string            `json:"work_id,omitempty"`
	AttemptID    string            `json:"attempt_id,omitempty"`
}

// Expired reports whether the lease has passed its expiry at the given time.
// Expiry is evaluated lazily at decision time; there is no background reaper.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Claim is the namespace-scoped registry variant of a lease. Claim IDs are
// assigned from a per-day monotonic counter ("cl-YYYY-MM-DD-NNNN").
type Claim struct {
	ClaimID        string            `json:"claim_id"`
	TaskID         string            `json:"task_id,omitempty"`
	AgentID        string            `json:"agent_id"`
	Namespace      string            `json:"namespace"`
	Resources      []ClaimedResource `json:"resources"`
	ExpiresAt      time.Time         `json:"expires_at"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// Expired reports whether the claim has passed its expiry at the given time.
func (c Claim) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// AuditEvent is one immutable entry in the append-only ledger. Ordering is
// append order within a period plus ParentEventID causal chaining.
type AuditEvent struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	AgentID        string         `json:"agent_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	TaskID         string         `json:"task_id,omitempty"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	ParentEventID  string         `json:"parent_event_id,omitempty"`
	SequenceNumber int64          `json:"sequence_number"`
	Period         string         `json:"period"`
	Schema         string         `json:"schema"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// AuditSchemaVersion identifies the ledger entry schema.
const AuditSchemaVersion = "audit/v1"

// BatchStatus is the state machine position of a work batch.
type BatchStatus string

const (
	BatchDraft     BatchStatus = "DRAFT"
	BatchExecuting BatchStatus = "EXECUTING"
	BatchVerifying BatchStatus = "VERIFYING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchFailed    BatchStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

// Work item statuses.
const (
	ItemPending = "pending"
	ItemDone    = "done"
	ItemFailed  = "failed"
)

// WorkItem is one unit of work tracked inside a batch.
type WorkItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ReconciliationReport compares the artifacts a batch actually produced
// against its declared expectations. Any untracked artifact fails closed.
type ReconciliationReport struct {
	ProducedArtifacts []string `json:"produced_artifacts"`
	UntrackedDelta    []string `json:"untracked_delta"`
	Balanced          bool     `json:"balanced"`
}

// WorkBatch groups work items and expected artifacts into a verifiable unit.
// BatchHash covers every other field and is recomputed on each mutation;
// PrevBatchHash links to the chronologically previous batch.
type WorkBatch struct {
	BatchID           string                `json:"batch_id"`
	BatchType         string                `json:"batch_type"`
	Status            BatchStatus           `json:"status"`
	WorkItems         []WorkItem            `json:"work_items"`
	ExpectedArtifacts []string              `json:"expected_artifacts"`
	ProducedArtifacts []string              `json:"produced_artifacts"`
	Reconciliation    *ReconciliationReport `json:"reconciliation,omitempty"`
	BatchHash         string                `json:"batch_hash"`
	PrevBatchHash     string                `json:"prev_batch_hash"`
	SequenceNumber    int64                 `json:"sequence_number"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// ReversalType selects how much of a batch a reversal undoes.
type ReversalType string

const (
	ReversalFull    ReversalType = "FULL"
	ReversalPartial ReversalType = "PARTIAL"
)

// ReversalStatus is the two-state lifecycle of a reversal. The transition
// DRAFT -> COMPLETED happens exactly once and is irreversible.
type ReversalStatus string

const (
	ReversalDraft     ReversalStatus = "DRAFT"
	ReversalCompleted ReversalStatus = "COMPLETED"
)

// CompensatingAction is one inverse operation applied during a reversal,
// with its logged outcome and before/after content hashes.
type CompensatingAction struct {
	ActionID   string    `json:"action_id"`
	ActionType string    `json:"action_type"`
	Target     string    `json:"target"`
	ExecutedAt time.Time `json:"executed_at,omitzero"`
	Result     string    `json:"result,omitempty"`
	BeforeHash string    `json:"before_hash,omitempty"`
	AfterHash  string    `json:"after_hash,omitempty"`
}

// ActionDeleteFile removes an artifact that the reversed batch produced.
const ActionDeleteFile = "delete_file"

// ActionResultSuccess is the logged result of a compensating action that
// applied cleanly. Failures log "failed: <reason>".
const ActionResultSuccess = "success"

// ReversalBatch undoes a completed work batch as a saga of compensating
// actions.
type ReversalBatch struct {
	ReversalID        string               `json:"reversal_id"`
	ReversesBatchID   string               `json:"reverses_batch_id"`
	ReversalType      ReversalType         `json:"reversal_type"`
	Status            ReversalStatus       `json:"status"`
	Reason            string               `json:"reason,omitempty"`
	ItemsToReverse    []string             `json:"items_to_reverse"`
	Actions           []CompensatingAction `json:"compensating_actions_log"`
	ReversalHash      string               `json:"reversal_hash"`
	OriginalBatchHash string               `json:"original_batch_hash"`
	CreatedAt         time.Time            `json:"created_at"`
}

// FileState records the existence and content hash of one path at snapshot
// time. Hash is empty when the path does not exist.
type FileState struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Hash   string `json:"hash"`
}

// Snapshot captures the pre-reversal state of every affected path.
type Snapshot struct {
	SnapshotID string      `json:"snapshot_id"`
	ReversalID string      `json:"reversal_id"`
	FileStates []FileState `json:"file_states"`
	CapturedAt time.Time   `json:"captured_at"`
}

// Clock supplies the current time. Components take a Clock so tests can pin
// decision time; production code uses SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
