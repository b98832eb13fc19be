// Package protocol parses the backend's SSE-like analysis event stream.
//
// # Wire Format
//
// The backend pushes newline-delimited lines over a chunked HTTP response:
//
//	event: progress
//	data: {"phase":"scanning","round":2}
//
//	: keep-alive
//
// Recognized line forms:
//
//   - "event: <type>"  — sets the type for the next data line
//   - "data: <json>"   — one complete single-line JSON payload
//   - ": <comment>"    — keep-alive, ignored
//   - ""               — frame separator, ignored
//
// This is intentionally not a general SSE parser. Data payloads are always
// a single line of JSON, so there is no multi-line data accumulation; each
// data line yields at most one frame.
//
// # Chunk Boundaries
//
// Parser.Feed accepts arbitrarily-chunked text. A partial trailing line is
// buffered until the next chunk, and a pending event type set by "event:"
// survives chunk boundaries until a "data:" line consumes it.
//
// # Frame Types
//
// The backend emits:
//
//   - analysis_started: backend identity handles for the run
//   - progress: phase/round updates
//   - assistant_message: streamed or complete assistant text
//   - intervention_required: analysis paused pending a human decision
//   - analysis_completed: terminal, analysis finished
//   - error: terminal, analysis failed
//
// IsTerminal classifies the last two. Unknown frame types are preserved
// and passed through; DecodePayload returns them as OpaquePayload.
//
// # Error Handling
//
// A malformed data line is logged and skipped; it never aborts the
// stream. Later well-formed frames still parse.
package protocol
