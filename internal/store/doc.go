// Package store provides the persistent KV layer backing session state.
//
// # Implementations
//
//   - SQLiteKV: single-table SQLite store with WAL mode, for production
//   - MemKV: map-backed store with identical semantics, for tests
//
// # Semantics
//
// Get returns ErrNotFound for missing keys. Delete of a missing key is
// not an error. Keys returns all keys with a given prefix, which the
// session layer uses to enumerate per-trace buckets.
package store
