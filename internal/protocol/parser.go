// ABOUTME: Incremental line parser for the backend's SSE-like event stream
// ABOUTME: Turns arbitrarily-chunked text into discrete (type, payload) frames

package protocol

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Frame is one parsed (type, payload) unit from the streaming protocol.
type Frame struct {
	Type string
	Data json.RawMessage
}

// Frame types pushed by the backend analysis job.
const (
	FrameAnalysisStarted      = "analysis_started"
	FrameProgress             = "progress"
	FrameAssistantMessage     = "assistant_message"
	FrameInterventionRequired = "intervention_required"
	FrameAnalysisCompleted    = "analysis_completed"
	FrameError                = "error"
)

// IsTerminal reports whether a frame type ends the stream with no reconnect.
func IsTerminal(frameType string) bool {
	return frameType == FrameAnalysisCompleted || frameType == FrameError
}

// IsIntervention reports whether a frame type pauses analysis pending a
// human decision.
func IsIntervention(frameType string) bool {
	return frameType == FrameInterventionRequired
}

// Parser converts raw stream text into frames. Chunk boundaries need not
// align with line boundaries: the trailing partial line of each chunk is
// buffered until the next chunk, and a pending `event:` type survives
// across chunks until a `data:` line consumes it.
//
// Each `data:` line is decoded independently; there is no multi-line data
// accumulation. The backend always emits single-line JSON payloads, so
// this is intentionally not a general SSE implementation.
type Parser struct {
	buf          string
	pendingEvent string
	logger       *slog.Logger
}

// NewParser creates a parser. Pass nil logger for default.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "protocol")}
}

// Feed consumes one chunk of stream text and returns the complete frames
// it yields, in arrival order. Malformed data lines are logged and
// skipped; they never abort the stream.
func (p *Parser) Feed(chunk string) []Frame {
	data := p.buf + chunk

	lines := strings.Split(data, "\n")
	// The final element is an incomplete line (or empty if the chunk
	// ended on a newline). Hold it for the next chunk.
	p.buf = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var frames []Frame
	for _, line := range lines {
		if frame, ok := p.parseLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Reset clears buffered input and any pending event type.
func (p *Parser) Reset() {
	p.buf = ""
	p.pendingEvent = ""
}

// parseLine handles one complete line, returning a frame if the line
// carried a decodable data payload.
func (p *Parser) parseLine(line string) (Frame, bool) {
	switch {
	case line == "":
		// Blank separator line
		return Frame{}, false

	case strings.HasPrefix(line, ":"):
		// Comment / keep-alive
		return Frame{}, false

	case strings.HasPrefix(line, "event:"):
		p.pendingEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		return Frame{}, false

	case strings.HasPrefix(line, "data:"):
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var raw json.RawMessage
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			p.logger.Warn("dropping malformed data line", "error", err)
			return Frame{}, false
		}

		frameType := p.pendingEvent
		p.pendingEvent = ""
		if frameType == "" {
			// No event: line seen; fall back to a type field in the payload
			var typed struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(raw, &typed); err == nil {
				frameType = typed.Type
			}
		}

		return Frame{Type: frameType, Data: raw}, true

	default:
		// Unrecognized field names are ignored per the wire contract
		return Frame{}, false
	}
}
