// ABOUTME: Typed payload shapes for well-known frame types
// ABOUTME: Closed tagged union keyed by frame type, with an opaque fallback

package protocol

import (
	"encoding/json"
	"fmt"
)

// StartedPayload announces a new analysis run and carries the backend's
// identity handles for the conversation.
type StartedPayload struct {
	AgentSessionID string `json:"agent_session_id"`
	TraceID        string `json:"trace_id,omitempty"`
}

// ProgressPayload reports analysis progress.
type ProgressPayload struct {
	Phase   string  `json:"phase"`
	Message string  `json:"message,omitempty"`
	Round   int     `json:"round,omitempty"`
	Percent float64 `json:"percent,omitempty"`
}

// MessagePayload carries assistant text, streamed or complete.
type MessagePayload struct {
	Content string `json:"content"`
	Partial bool   `json:"partial,omitempty"`
}

// InterventionOption is one choice offered to the user during an
// intervention.
type InterventionOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Action      string `json:"action"` // abort, continue, focus, custom
	Recommended bool   `json:"recommended"`
}

// InterventionContext describes why the backend paused.
type InterventionContext struct {
	TriggerReason   string  `json:"trigger_reason"`
	Confidence      float64 `json:"confidence"`
	RoundsCompleted int     `json:"rounds_completed"`
	FindingsCount   int     `json:"findings_count"`
}

// Intervention trigger types.
const (
	InterventionLowConfidence      = "low_confidence"
	InterventionAmbiguity          = "ambiguity"
	InterventionTimeout            = "timeout"
	InterventionAgentRequest       = "agent_request"
	InterventionCircuitBreaker     = "circuit_breaker"
	InterventionValidationRequired = "validation_required"
)

// InterventionPayload is the full backend-declared pause descriptor.
type InterventionPayload struct {
	InterventionID string               `json:"intervention_id"`
	Type           string               `json:"type"`
	Context        InterventionContext  `json:"context"`
	Options        []InterventionOption `json:"options"`
}

// CompletionPayload marks a finished analysis run.
type CompletionPayload struct {
	Summary       string `json:"summary,omitempty"`
	FindingsCount int    `json:"findings_count,omitempty"`
}

// ErrorPayload is a terminal backend failure.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// OpaquePayload holds a frame whose type has no known shape. Unknown
// types are preserved rather than rejected.
type OpaquePayload struct {
	Type string
	Raw  json.RawMessage
}

// DecodePayload decodes a frame's data into its well-known shape. Frames
// with unrecognized types decode to OpaquePayload and never fail; frames
// with known types fail only if the JSON doesn't match the shape.
func DecodePayload(frame Frame) (any, error) {
	switch frame.Type {
	case FrameAnalysisStarted:
		var p StartedPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding started payload: %w", err)
		}
		return p, nil

	case FrameProgress:
		var p ProgressPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding progress payload: %w", err)
		}
		return p, nil

	case FrameAssistantMessage:
		var p MessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding message payload: %w", err)
		}
		return p, nil

	case FrameInterventionRequired:
		var p InterventionPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding intervention payload: %w", err)
		}
		return p, nil

	case FrameAnalysisCompleted:
		var p CompletionPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding completion payload: %w", err)
		}
		return p, nil

	case FrameError:
		var p ErrorPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding error payload: %w", err)
		}
		return p, nil

	default:
		return OpaquePayload{Type: frame.Type, Raw: frame.Data}, nil
	}
}
