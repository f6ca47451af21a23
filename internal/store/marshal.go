package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arbiter-io/arbiter/internal/record"
)

// Storage serialization for nested record fields. Storage JSON only needs to
// round-trip; content hashes use record.MarshalCanonical, never these.

func marshalResources(rs []record.ClaimedResource) (string, error) {
	if rs == nil {
		rs = []record.ClaimedResource{}
	}
	data, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("marshal resources: %w", err)
	}
	return string(data), nil
}

func unmarshalResources(data string) ([]record.ClaimedResource, error) {
	var rs []record.ClaimedResource
	if err := json.Unmarshal([]byte(data), &rs); err != nil {
		return nil, fmt.Errorf("unmarshal resources: %w", err)
	}
	if rs == nil {
		rs = []record.ClaimedResource{}
	}
	return rs, nil
}

func marshalJSON(v any, what string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

func unmarshalJSON(data string, v any, what string) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}

// timeFormat is fixed-width: the expiry scans and chain ordering compare
// stored timestamps as TEXT, and RFC3339Nano's trimmed fractions do not
// sort bytewise in chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func marshalTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func unmarshalTime(s, what string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", what, err)
	}
	return t.UTC(), nil
}
