package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arbiter-io/arbiter/internal/record"
)

// AcquireOutcome is the result of an atomic claim acquisition.
type AcquireOutcome struct {
	// Claim is the granted (or replayed) claim. Nil when Conflict is set.
	Claim *record.Claim

	// Conflict is the active claim whose resources overlap the request.
	Conflict *record.Claim

	// Replayed is true when an idempotency key matched an existing claim;
	// the original claim is returned and no sequence number was consumed.
	Replayed bool
}

// AcquireClaim atomically acquires a namespace-scoped claim.
//
// In one transaction it: replays an existing claim when the (namespace,
// idempotency key) pair is already recorded; otherwise scans active claims
// in the same namespace for resource overlap; otherwise consumes the next
// per-day sequence number, assigns the "cl-" identifier, and inserts.
//
// Claims in other namespaces never conflict.
func (s *Store) AcquireClaim(ctx context.Context, claim record.Claim, now time.Time) (AcquireOutcome, error) {
	var out AcquireOutcome
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if claim.IdempotencyKey != "" {
			existing, err := claimByIdempotencyKeyTx(ctx, tx, claim.Namespace, claim.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				out.Claim = existing
				out.Replayed = true
				return nil
			}
		}

		holders, err := activeClaimsTx(ctx, tx, claim.Namespace, now)
		if err != nil {
			return err
		}
		for i := range holders {
			if _, ok := record.AnyOverlap(claim.Resources, holders[i].Resources); ok {
				out.Conflict = &holders[i]
				return nil
			}
		}

		seq, err := nextSequenceTx(ctx, tx, "claim", record.Period(now))
		if err != nil {
			return err
		}
		claim.ClaimID = record.SequencedID(record.PrefixClaim, now, seq)

		resJSON, err := marshalResources(claim.Resources)
		if err != nil {
			return err
		}
		var idemKey any
		if claim.IdempotencyKey != "" {
			idemKey = claim.IdempotencyKey
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO claims
			(claim_id, task_id, agent_id, namespace, resources, expires_at, idempotency_key)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			claim.ClaimID,
			claim.TaskID,
			claim.AgentID,
			claim.Namespace,
			resJSON,
			marshalTime(claim.ExpiresAt),
			idemKey,
		); err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
		out.Claim = &claim
		return nil
	})
	if err != nil {
		return AcquireOutcome{}, err
	}
	return out, nil
}

// ClaimsInNamespace returns the active, unexpired claims in one namespace.
func (s *Store) ClaimsInNamespace(ctx context.Context, namespace string, now time.Time) ([]record.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_id, task_id, agent_id, namespace, resources, expires_at, idempotency_key
		FROM claims
		WHERE namespace = ? AND expires_at > ?
		ORDER BY claim_id ASC
	`, namespace, marshalTime(now))
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

// AllClaims returns active, unexpired claims across every namespace.
func (s *Store) AllClaims(ctx context.Context, now time.Time) ([]record.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT claim_id, task_id, agent_id, namespace, resources, expires_at, idempotency_key
		FROM claims
		WHERE expires_at > ?
		ORDER BY namespace ASC, claim_id ASC
	`, marshalTime(now))
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

func activeClaimsTx(ctx context.Context, tx *sql.Tx, namespace string, now time.Time) ([]record.Claim, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT claim_id, task_id, agent_id, namespace, resources, expires_at, idempotency_key
		FROM claims
		WHERE namespace = ? AND expires_at > ?
		ORDER BY claim_id ASC
	`, namespace, marshalTime(now))
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
	}
	defer rows.Close()
	return collectClaims(rows)
}

func claimByIdempotencyKeyTx(ctx context.Context, tx *sql.Tx, namespace, key string) (*record.Claim, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT claim_id, task_id, agent_id, namespace, resources, expires_at, idempotency_key
		FROM claims
		WHERE namespace = ? AND idempotency_key = ?
	`, namespace, key)
	claim, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func scanClaim(row rowScanner) (*record.Claim, error) {
	var c record.Claim
	var resources, expiresAt string
	var idemKey sql.NullString
	if err := row.Scan(&c.ClaimID, &c.TaskID, &c.AgentID, &c.Namespace, &resources, &expiresAt, &idemKey); err != nil {
		return nil, err
	}
	var err error
	if c.Resources, err = unmarshalResources(resources); err != nil {
		return nil, err
	}
	if c.ExpiresAt, err = unmarshalTime(expiresAt, "claim expires_at"); err != nil {
		return nil, err
	}
	if idemKey.Valid {
		c.IdempotencyKey = idemKey.String
	}
	return &c, nil
}

func collectClaims(rows *sql.Rows) ([]record.Claim, error) {
	var claims []record.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, *claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	if claims == nil {
		claims = []record.Claim{}
	}
	return claims, nil
}
