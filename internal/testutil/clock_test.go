package testutil

import (
	"testing"
	"time"
)

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(15 * time.Minute)
	if got, want := c.Now(), start.Add(15*time.Minute); !got.Equal(want) {
		t.Fatalf("after Advance: Now() = %v, want %v", got, want)
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatalf("after Set: Now() = %v, want %v", c.Now(), start)
	}
}

func TestFixedClock_NormalizesToUTC(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*3600)
	c := NewFixedClock(time.Date(2026, 8, 29, 22, 0, 0, 0, zone))

	if loc := c.Now().Location(); loc != time.UTC {
		t.Fatalf("Now() location = %v, want UTC", loc)
	}
}
