// Package stream owns the streaming connection to a backend analysis job.
//
// # Client Lifecycle
//
// A Client drives exactly one logical subscription through the states:
//
//	disconnected -> connecting -> connected -> (reconnecting -> connecting)*
//
// Run blocks until one of:
//
//   - a terminal frame (analysis_completed, error): returns nil, no reconnect
//   - clean end-of-stream: returns nil, no reconnect
//   - cancellation via Cancel or ctx: returns nil silently
//   - retry budget exhausted: returns ErrRetriesExhausted
//
// # Reconnect Policy
//
// Mid-stream failures and failed connects back off exponentially:
//
//	delay(n) = min(base * 2^(n-1), max) ± jitter
//
// Defaults: base 1s, cap 30s, 5 retries, ±20% uniform jitter. The retry
// counter resets on every successful connect, so each network incident
// gets the full budget.
//
// # Dispatch
//
// Frames are handed to a Dispatcher synchronously on the read loop, so
// handler execution order always matches arrival order. Frames with no
// registered handler are logged and dropped.
package stream
