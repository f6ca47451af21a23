// Package store provides SQLite-backed durable storage for arbiter records.
//
// One database holds every record kind:
//   - Leases: active/released holds on resources
//   - Claims: the namespace-scoped registry variant
//   - Counters: per-day monotonic sequence counters
//   - Audit events: the append-only ledger, partitioned by UTC day
//   - Batches / Reversals / Snapshots: the batch lifecycle records
//
// # Concurrency
//
// Every check-then-write sequence (conflict scan then lease insert, counter
// increment then record insert, batch load then transition) runs inside one
// IMMEDIATE transaction on a single-connection pool. Contending writers
// serialize behind busy_timeout instead of racing; two writers can never
// both observe no conflict and both grant.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Expiry is evaluated lazily in queries (expires_at > now); nothing reaps
// expired rows.
package store
