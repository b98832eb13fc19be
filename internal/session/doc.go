// Package session manages persistent conversation identity across trace loads.
//
// # Identity Model
//
// Three identifiers with different lifetimes:
//
//   - Trace fingerprint: sha256 of start/end timestamps plus title,
//     truncated to 128 bits. Keys the per-trace session bucket.
//   - SessionID: client-generated UUID, never reused.
//   - AgentSessionID: the backend's multi-turn conversation handle. May
//     be cleared and regenerated independently when backend continuity
//     is lost; local history always survives.
//
// # Storage Layout
//
// Sessions are stored as one JSON array per fingerprint under
// "sessions/<fingerprint>" in a KV store. The Manager is the only
// writer; the UI never touches the store directly.
//
// # Continuity
//
// Reconcile checks the backend's resume endpoint before a turn. A 404,
// a TRACE_ID_MISMATCH code, or a "Session not found" error is an
// unrecoverable discontinuity: the AgentSessionID is cleared so the next
// turn starts a fresh server-side chain. Any other failure is treated as
// transient and the existing identity is kept, so a flaky network never
// drops history.
//
// # Migration and Retention
//
// MigrateLegacy converts the old single-session chat store into a
// session at most once per fingerprint; the presence of any session is
// itself the already-migrated marker. SweepExpired deletes sessions
// inactive past the retention window (default 30 days).
package session
