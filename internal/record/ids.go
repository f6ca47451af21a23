package record

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewEventID generates a time-sortable ledger event identifier.
//
// The ID is derived from a UUIDv7: its first 48 bits are a big-endian unix
// millisecond timestamp, so the hex form is exactly 12 time-ordered hex
// characters followed by 20 random ones.
//
// Format: "evt-" + 32 lowercase hex characters.
func NewEventID() string {
	u := uuid.Must(uuid.NewV7())
	return "evt-" + hex.EncodeToString(u[:])
}

// NewLeaseID generates a lease identifier. Lease IDs are UUIDv7 so they sort
// by issue time.
func NewLeaseID() string {
	return "ls-" + uuid.Must(uuid.NewV7()).String()
}

// NewActionID generates a compensating action identifier.
func NewActionID() string {
	return "act-" + uuid.Must(uuid.NewV7()).String()
}

// SequencedID formats a dated, counter-assigned identifier such as
// "cl-2026-08-29-0001". The day component uses UTC.
func SequencedID(prefix string, day time.Time, n int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.UTC().Format(DayFormat), n)
}

// SnapshotID derives the snapshot identifier deterministically from its
// reversal: "rev-2026-08-29-0001" -> "snap-2026-08-29-0001".
func SnapshotID(reversalID string) string {
	return "snap-" + strings.TrimPrefix(reversalID, "rev-")
}

// DayFormat is the UTC calendar-day layout used by dated identifiers and
// ledger periods.
const DayFormat = "2006-01-02"

// Period returns the UTC calendar day a timestamp falls in.
func Period(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// Dated identifier prefixes.
const (
	PrefixClaim    = "cl"
	PrefixBatch    = "wb"
	PrefixReversal = "rev"
)
