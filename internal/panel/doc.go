// Package panel orchestrates the trace-analysis conversation surface.
//
// # Turn Flow
//
// One analysis turn through Panel.StartTurn:
//
//  1. Append the user message and persist
//  2. Reconcile backend continuity (may clear the agent session handle)
//  3. Cancel any previous stream; at most one is ever active
//  4. Open the stream and dispatch frames until it ends
//  5. Clear transient flow messages and persist the outcome
//
// Progress updates, streamed assistant text, and reconnect notices are
// flow-tagged messages that get replaced in place as the turn advances,
// then dropped when it ends. Only user prompts, final assistant
// messages, and system notices survive in history.
//
// # Event Bus
//
// Cross-component signals (chat cleared, analysis done, intervention
// opened/resolved) travel over an in-memory Bus with per-subscriber
// buffered channels. Publishing never blocks; slow subscribers drop.
package panel
