// Package record provides the shared domain types for arbiter.
//
// This package contains type definitions, canonical serialization, hashing,
// and identifier generation only. All other internal packages import record;
// record imports nothing internal. This keeps it the foundational layer with
// no circular dependencies.
//
// Key design constraints:
//   - All JSON tags use snake_case
//   - Timestamps serialize as UTC RFC 3339 strings
//   - Content hashes are computed over canonical JSON with domain separation
//   - Resource paths are normalized before any identity or overlap check
package record
