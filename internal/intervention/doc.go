// Package intervention handles backend-requested pauses in an analysis run.
//
// # State Machine
//
// The Coordinator moves between two states:
//
//	Idle -> Active(intervention) -> Idle
//
// Activate enters Active with the backend's descriptor. Confirm submits
// the selected option and clears to Idle on success; on failure the
// coordinator stays Active so the user can retry or reselect. Abort
// always clears to Idle, even when the resolution request itself fails,
// so the UI is never left stuck.
//
// # Validation
//
// Confirm rejects without any network call: no active intervention, no
// selection, a selection matching no option, or a confirm already in
// flight. Free-form input is only sent when the chosen option's action
// is "custom".
package intervention
