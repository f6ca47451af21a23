package record

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventIDPattern = regexp.MustCompile(`^evt-[0-9a-f]{32}$`)

func TestNewEventIDShape(t *testing.T) {
	id := NewEventID()
	assert.Regexp(t, eventIDPattern, id)
}

func TestNewEventIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewEventID()
		require.False(t, seen[id], "duplicate event id %s", id)
		seen[id] = true
	}
}

func TestNewEventIDTimeOrdered(t *testing.T) {
	// The first 12 hex characters encode unix milliseconds, so IDs minted
	// across a tick compare in mint order.
	first := NewEventID()
	time.Sleep(2 * time.Millisecond)
	second := NewEventID()
	assert.Less(t, first, second)
}

func TestSequencedID(t *testing.T) {
	day := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "cl-2026-08-29-0001", SequencedID(PrefixClaim, day, 1))
	assert.Equal(t, "wb-2026-08-29-0042", SequencedID(PrefixBatch, day, 42))
	assert.Equal(t, "rev-2026-08-29-10000", SequencedID(PrefixReversal, day, 10000))
}

func TestSequencedIDUsesUTCDay(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2026, 8, 29, 23, 30, 0, 0, loc)
	assert.Equal(t, "cl-2026-08-30-0001", SequencedID(PrefixClaim, local, 1))
}

func TestSnapshotIDDerivation(t *testing.T) {
	assert.Equal(t, "snap-2026-08-29-0001", SnapshotID("rev-2026-08-29-0001"))
}

func TestPeriod(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "2026-01-02", Period(ts))
}

func TestNewLeaseIDPrefix(t *testing.T) {
	assert.Regexp(t, `^ls-[0-9a-f-]{36}$`, NewLeaseID())
	assert.Regexp(t, `^act-[0-9a-f-]{36}$`, NewActionID())
}
