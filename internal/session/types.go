// ABOUTME: Data model for client-held conversation sessions tied to a trace
// ABOUTME: AnalysisSession, Message, pins and bookmarks, owned by the Manager

package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrSessionNotFound is returned when a session ID matches nothing.
var ErrSessionNotFound = errors.New("session not found")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversation entry. FlowTag marks progress/streaming
// messages that get replaced as the analysis advances.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	FlowTag   string    `json:"flow_tag,omitempty"`
}

// PinnedResult references a query result the user pinned in the panel.
type PinnedResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Query string `json:"query"`
}

// Bookmark marks a point of interest in the trace.
type Bookmark struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	TimeNs int64  `json:"time_ns"`
}

// AnalysisSession is a client-held conversation record for one trace.
// SessionID is never reused; AgentSessionID is the backend's multi-turn
// handle and may be cleared and regenerated independently when backend
// continuity is lost.
type AnalysisSession struct {
	SessionID        string         `json:"session_id"`
	TraceFingerprint string         `json:"trace_fingerprint"`
	TraceName        string         `json:"trace_name"`
	BackendTraceID   string         `json:"backend_trace_id,omitempty"`
	AgentSessionID   string         `json:"agent_session_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	LastActiveAt     time.Time      `json:"last_active_at"`
	Messages         []Message      `json:"messages"`
	PinnedResults    []PinnedResult `json:"pinned_results,omitempty"`
	Bookmarks        []Bookmark     `json:"bookmarks,omitempty"`
	Summary          string         `json:"summary,omitempty"`
}

// Patch carries partial session updates. Nil fields are left unchanged.
// Pointer-to-empty clears a field (e.g. AgentSessionID after a backend
// discontinuity).
type Patch struct {
	TraceName      *string
	BackendTraceID *string
	AgentSessionID *string
	Messages       *[]Message
	PinnedResults  *[]PinnedResult
	Bookmarks      *[]Bookmark
	Summary        *string
}

// Fingerprint derives the key identifying "which trace" a conversation
// belongs to, from the trace's start/end timestamps and title. Two traces
// with identical start, end, and title collide; that is a documented
// limitation of the identity scheme, not a bug.
func Fingerprint(startNs, endNs int64, title string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%s", startNs, endNs, title)))
	return hex.EncodeToString(sum[:16])
}
