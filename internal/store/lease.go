package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/arbiter-io/arbiter/internal/record"
)

// AcquireLease atomically checks the candidate lease's resources against
// every active, unexpired lease and inserts it when no overlap exists.
//
// Returns the conflicting lease when one overlaps (and writes nothing), or
// nil when the lease was inserted. Two read-mode leases never conflict.
// Expired leases are excluded lazily at check time.
func (s *Store) AcquireLease(ctx context.Context, lease record.Lease, now time.Time) (*record.Lease, error) {
	var conflict *record.Lease
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		holders, err := activeLeasesTx(ctx, tx, now)
		if err != nil {
			return err
		}
		for i := range holders {
			if !record.ModesConflict(lease.Mode, holders[i].Mode) {
				continue
			}
			if _, ok := record.AnyOverlap(lease.Resources, holders[i].Resources); ok {
				conflict = &holders[i]
				return nil
			}
		}
		return insertLeaseTx(ctx, tx, lease)
	})
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

// FindConflict scans active leases for one overlapping the given resources
// without writing anything. Used by read-only peeks.
func (s *Store) FindConflict(ctx context.Context, resources []record.ClaimedResource, mode record.Mode, now time.Time) (*record.Lease, error) {
	holders, err := s.ActiveLeases(ctx, now)
	if err != nil {
		return nil, err
	}
	for i := range holders {
		if !record.ModesConflict(mode, holders[i].Mode) {
			continue
		}
		if _, ok := record.AnyOverlap(resources, holders[i].Resources); ok {
			return &holders[i], nil
		}
	}
	return nil, nil
}

// AddLeaseResources atomically extends an existing lease's resource set.
// Resources the lease already holds are skipped, so replayed extends do not
// grow the record.
//
// Returns (nil, nil, nil) when the lease is missing, released, or expired.
// Returns the conflicting lease when any new resource overlaps another
// active lease. Otherwise returns the updated lease.
func (s *Store) AddLeaseResources(ctx context.Context, leaseID string, resources []record.ClaimedResource, now time.Time) (*record.Lease, *record.Lease, error) {
	var updated, conflict *record.Lease
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		lease, err := getLeaseTx(ctx, tx, leaseID)
		if err != nil {
			return err
		}
		if lease == nil || lease.Status != record.LeaseActive || lease.Expired(now) {
			return nil
		}

		holders, err := activeLeasesTx(ctx, tx, now)
		if err != nil {
			return err
		}
		for i := range holders {
			if holders[i].LeaseID == leaseID {
				continue
			}
			if !record.ModesConflict(lease.Mode, holders[i].Mode) {
				continue
			}
			if _, ok := record.AnyOverlap(resources, holders[i].Resources); ok {
				conflict = &holders[i]
				return nil
			}
		}

		for _, r := range resources {
			if !slices.Contains(lease.Resources, r) {
				lease.Resources = append(lease.Resources, r)
			}
		}
		resJSON, err := marshalResources(lease.Resources)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE leases SET resources = ? WHERE lease_id = ?
		`, resJSON, leaseID); err != nil {
			return fmt.Errorf("extend lease resources: %w", err)
		}
		updated = lease
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, conflict, nil
}

// ReleaseLease marks a lease released. Returns the lease as it was before
// the call and whether this call performed the release, so callers can
// distinguish a first release from an idempotent replay.
func (s *Store) ReleaseLease(ctx context.Context, leaseID string) (*record.Lease, bool, error) {
	var prev *record.Lease
	var released bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		lease, err := getLeaseTx(ctx, tx, leaseID)
		if err != nil {
			return err
		}
		if lease == nil {
			return nil
		}
		prev = lease
		if lease.Status != record.LeaseActive {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE leases SET status = ? WHERE lease_id = ?
		`, string(record.LeaseReleased), leaseID); err != nil {
			return fmt.Errorf("release lease: %w", err)
		}
		released = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return prev, released, nil
}

// ForceReleaseResource releases every active lease covering the resource,
// regardless of owner. Returns the leases that were released.
func (s *Store) ForceReleaseResource(ctx context.Context, resource record.ClaimedResource, now time.Time) ([]record.Lease, error) {
	var released []record.Lease
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		holders, err := activeLeasesTx(ctx, tx, now)
		if err != nil {
			return err
		}
		for _, holder := range holders {
			if _, ok := record.AnyOverlap([]record.ClaimedResource{resource}, holder.Resources); !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE leases SET status = ? WHERE lease_id = ?
			`, string(record.LeaseReleased), holder.LeaseID); err != nil {
				return fmt.Errorf("force release lease %s: %w", holder.LeaseID, err)
			}
			released = append(released, holder)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// RenewLease extends a lease's expiry. Returns nil when the lease is
// missing or not active.
func (s *Store) RenewLease(ctx context.Context, leaseID string, expiresAt time.Time) (*record.Lease, error) {
	var renewed *record.Lease
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		lease, err := getLeaseTx(ctx, tx, leaseID)
		if err != nil {
			return err
		}
		if lease == nil || lease.Status != record.LeaseActive {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE leases SET expires_at = ? WHERE lease_id = ?
		`, marshalTime(expiresAt), leaseID); err != nil {
			return fmt.Errorf("renew lease: %w", err)
		}
		lease.ExpiresAt = expiresAt.UTC()
		renewed = lease
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renewed, nil
}

// GetLease returns a lease by ID, or nil if no such lease exists.
func (s *Store) GetLease(ctx context.Context, leaseID string) (*record.Lease, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT lease_id, owner_agent_id, mode, resources, issued_at, expires_at, status, work_id, attempt_id
		FROM leases
		WHERE lease_id = ?
	`, leaseID)
	lease, err := scanLease(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// ActiveLeases returns all active, unexpired leases ordered by issue time.
func (s *Store) ActiveLeases(ctx context.Context, now time.Time) ([]record.Lease, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lease_id, owner_agent_id, mode, resources, issued_at, expires_at, status, work_id, attempt_id
		FROM leases
		WHERE status = 'active' AND expires_at > ?
		ORDER BY issued_at ASC, lease_id ASC
	`, marshalTime(now))
	if err != nil {
		return nil, fmt.Errorf("query active leases: %w", err)
	}
	defer rows.Close()
	return collectLeases(rows)
}

func activeLeasesTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]record.Lease, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT lease_id, owner_agent_id, mode, resources, issued_at, expires_at, status, work_id, attempt_id
		FROM leases
		WHERE status = 'active' AND expires_at > ?
		ORDER BY issued_at ASC, lease_id ASC
	`, marshalTime(now))
	if err != nil {
		return nil, fmt.Errorf("query active leases: %w", err)
	}
	defer rows.Close()
	return collectLeases(rows)
}

func insertLeaseTx(ctx context.Context, tx *sql.Tx, lease record.Lease) error {
	resJSON, err := marshalResources(lease.Resources)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO leases
		(lease_id, owner_agent_id, mode, resources, issued_at, expires_at, status, work_id, attempt_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		lease.LeaseID,
		lease.OwnerAgentID,
		string(lease.Mode),
		resJSON,
		marshalTime(lease.IssuedAt),
		marshalTime(lease.ExpiresAt),
		string(lease.Status),
		lease.WorkID,
		lease.AttemptID,
	)
	if err != nil {
		return fmt.Errorf("insert lease: %w", err)
	}
	return nil
}

func getLeaseTx(ctx context.Context, tx *sql.Tx, leaseID string) (*record.Lease, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT lease_id, owner_agent_id, mode, resources, issued_at, expires_at, status, work_id, attempt_id
		FROM leases
		WHERE lease_id = ?
	`, leaseID)
	lease, err := scanLease(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return lease, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLease(row rowScanner) (*record.Lease, error) {
	var l record.Lease
	var mode, resources, issuedAt, expiresAt, status string
	if err := row.Scan(&l.LeaseID, &l.OwnerAgentID, &mode, &resources, &issuedAt, &expiresAt, &status, &l.WorkID, &l.AttemptID); err != nil {
		return nil, err
	}
	var err error
	if l.Resources, err = unmarshalResources(resources); err != nil {
		return nil, err
	}
	if l.IssuedAt, err = unmarshalTime(issuedAt, "lease issued_at"); err != nil {
		return nil, err
	}
	if l.ExpiresAt, err = unmarshalTime(expiresAt, "lease expires_at"); err != nil {
		return nil, err
	}
	l.Mode = record.Mode(mode)
	l.Status = record.LeaseStatus(status)
	return &l, nil
}

func collectLeases(rows *sql.Rows) ([]record.Lease, error) {
	var leases []record.Lease
	for rows.Next() {
		lease, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lease: %w", err)
		}
		leases = append(leases, *lease)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leases: %w", err)
	}
	if leases == nil {
		leases = []record.Lease{}
	}
	return leases, nil
}
