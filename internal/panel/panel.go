// ABOUTME: Assistant panel orchestration - wires sessions, stream, and interventions
// ABOUTME: A turn: reconcile identity, open stream, dispatch frames, persist state

package panel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/trace-assist/internal/intervention"
	"github.com/2389/trace-assist/internal/protocol"
	"github.com/2389/trace-assist/internal/session"
	"github.com/2389/trace-assist/internal/stream"
)

// Flow tags marking transient messages that get replaced as the
// analysis advances.
const (
	flowProgress  = "progress"
	flowStreaming = "streaming"
	flowStatus    = "status"
)

// TraceInfo identifies the open trace. Start/end/title feed the session
// fingerprint; Name is the display name recorded on sessions.
type TraceInfo struct {
	StartNs int64
	EndNs   int64
	Title   string
	Name    string
}

// Panel owns one trace-analysis conversation surface: the current
// session handle, the single active stream client, and the intervention
// coordinator. All mutation happens on the caller's goroutine; the panel
// is a cooperative single-threaded component like the UI that embeds it.
type Panel struct {
	trace       TraceInfo
	fingerprint string
	sessions    *session.Manager
	coordinator *intervention.Coordinator
	requester   stream.Requester
	streamCfg   stream.Config
	streamURL   string
	bus         *Bus
	logger      *slog.Logger

	mu      sync.Mutex
	current *session.AnalysisSession
	client  *stream.Client

	// partial accumulates streamed assistant content for the turn
	partial strings.Builder
}

// New creates a panel for the given trace. The bus may be shared with
// other panel-adjacent components; the panel never closes it.
func New(trace TraceInfo, sessions *session.Manager, coordinator *intervention.Coordinator,
	requester stream.Requester, streamCfg stream.Config, streamURL string,
	bus *Bus, logger *slog.Logger) *Panel {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Panel{
		trace:       trace,
		fingerprint: session.Fingerprint(trace.StartNs, trace.EndNs, trace.Title),
		sessions:    sessions,
		coordinator: coordinator,
		requester:   requester,
		streamCfg:   streamCfg,
		streamURL:   streamURL,
		bus:         bus,
		logger:      logger.With("component", "panel"),
	}
	coordinator.OnResolved = func(action string) {
		bus.Publish(TopicInterventionResolved, action)
	}
	return p
}

// Fingerprint returns the trace fingerprint this panel is bucketed under.
func (p *Panel) Fingerprint() string {
	return p.fingerprint
}

// Open prepares the panel: runs the one-time legacy migration for this
// fingerprint, then resumes the most recently active session or creates
// a fresh one. The chosen session becomes current.
func (p *Panel) Open(ctx context.Context) error {
	if err := p.sessions.MigrateLegacy(ctx, p.fingerprint, p.trace.Name); err != nil {
		return fmt.Errorf("legacy migration: %w", err)
	}

	existing, err := p.sessions.ListSessions(ctx, p.fingerprint)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	var current *session.AnalysisSession
	if len(existing) > 0 {
		sess := existing[0] // most recently active
		current = &sess
	} else {
		current, err = p.sessions.CreateSession(ctx, p.fingerprint, p.trace.Name)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
	}

	p.mu.Lock()
	p.current = current
	p.mu.Unlock()

	p.logger.Debug("panel opened",
		"session_id", current.SessionID,
		"messages", len(current.Messages))
	return nil
}

// Current returns the current session, or nil before Open.
func (p *Panel) Current() *session.AnalysisSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// NewSession abandons the current handle and starts a fresh session for
// the same trace. Any active stream is cancelled first.
func (p *Panel) NewSession(ctx context.Context) error {
	p.CancelTurn()
	p.coordinator.Clear()

	sess, err := p.sessions.CreateSession(ctx, p.fingerprint, p.trace.Name)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
	return nil
}

// StartTurn runs one full analysis turn: appends the user message,
// reconciles backend continuity, cancels any previous stream, then
// drives the stream until a terminal frame, clean end, cancellation, or
// retry exhaustion. Blocks for the duration of the turn. Errors surface
// as system messages; the returned error is for the caller's logging.
func (p *Panel) StartTurn(ctx context.Context, prompt string) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return fmt.Errorf("panel not open")
	}
	sessionID := p.current.SessionID
	p.appendMessageLocked(session.RoleUser, prompt, "")
	p.partial.Reset()
	p.mu.Unlock()

	if err := p.persist(ctx); err != nil {
		p.logger.Warn("persisting user message failed", "error", err)
	}

	// Reconcile client-held identity against the backend before the turn
	if err := p.sessions.Reconcile(ctx, p.fingerprint, sessionID); err != nil {
		p.logger.Warn("continuity reconciliation failed", "error", err)
	}
	if err := p.reloadCurrent(ctx, sessionID); err != nil {
		return err
	}

	// Single active stream per panel: drop any previous client
	p.CancelTurn()

	client := stream.NewClient(p.requester, p.buildDispatcher(), p.streamCfg, p.statusNotice, p.logger)
	p.mu.Lock()
	p.client = client
	endpoint := p.turnEndpoint(prompt)
	p.mu.Unlock()

	runErr := client.Run(ctx, endpoint)

	p.mu.Lock()
	p.clearFlowLocked(flowProgress, flowStatus)
	p.mu.Unlock()

	if runErr != nil {
		p.appendMessage(session.RoleSystem,
			"Analysis connection lost. Check your network and try again.", "")
	}

	if err := p.persist(context.WithoutCancel(ctx)); err != nil {
		p.logger.Warn("persisting turn failed", "error", err)
	}
	return runErr
}

// CancelTurn cancels the active stream, if any. Idempotent.
func (p *Panel) CancelTurn() {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.mu.Unlock()

	if client != nil {
		client.Cancel()
	}
}

// ClearChat empties the current session's messages and resets any
// pending intervention.
func (p *Panel) ClearChat(ctx context.Context) error {
	p.CancelTurn()
	p.coordinator.Clear()

	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return fmt.Errorf("panel not open")
	}
	p.current.Messages = []session.Message{}
	p.mu.Unlock()

	if err := p.persist(ctx); err != nil {
		return err
	}
	p.bus.Publish(TopicChatCleared, nil)
	return nil
}

// Close tears the panel down: cancels any stream and clears the
// intervention state. The session store and bus outlive the panel.
func (p *Panel) Close() {
	p.CancelTurn()
	p.coordinator.Clear()
}

// buildDispatcher wires frame handlers for one turn.
func (p *Panel) buildDispatcher() *stream.Dispatcher {
	d := stream.NewDispatcher(p.logger)

	d.Register(protocol.FrameAnalysisStarted, func(frame protocol.Frame) {
		payload, err := protocol.DecodePayload(frame)
		if err != nil {
			p.logger.Warn("bad started frame", "error", err)
			return
		}
		started := payload.(protocol.StartedPayload)
		p.adoptIdentity(started)
	})

	d.Register(protocol.FrameProgress, func(frame protocol.Frame) {
		payload, err := protocol.DecodePayload(frame)
		if err != nil {
			p.logger.Warn("bad progress frame", "error", err)
			return
		}
		progress := payload.(protocol.ProgressPayload)
		text := progress.Message
		if text == "" {
			text = progress.Phase
		}
		p.upsertFlowMessage(flowProgress, text)
	})

	d.Register(protocol.FrameAssistantMessage, func(frame protocol.Frame) {
		payload, err := protocol.DecodePayload(frame)
		if err != nil {
			p.logger.Warn("bad message frame", "error", err)
			return
		}
		msg := payload.(protocol.MessagePayload)
		if msg.Partial {
			p.partial.WriteString(msg.Content)
			p.upsertFlowMessage(flowStreaming, p.partial.String())
			return
		}
		content := msg.Content
		if content == "" {
			content = p.partial.String()
		}
		p.finalizeStreaming(content)
	})

	d.Register(protocol.FrameInterventionRequired, func(frame protocol.Frame) {
		payload, err := protocol.DecodePayload(frame)
		if err != nil {
			p.logger.Warn("bad intervention frame", "error", err)
			return
		}
		descriptor := payload.(protocol.InterventionPayload)
		p.coordinator.Activate(descriptor)
		p.bus.Publish(TopicInterventionOpened, descriptor)
	})

	d.Register(protocol.FrameAnalysisCompleted, func(frame protocol.Frame) {
		payload, err := protocol.DecodePayload(frame)
		if err != nil {
			p.logger.Warn("bad completion frame", "error", err)
			return
		}
		done := payload.(protocol.CompletionPayload)
		if p.partial.Len() > 0 {
			p.finalizeStreaming(p.partial.String())
		}
		if done.Summary != "" {
			p.mu.Lock()
			if p.current != nil {
				p.current.Summary = done.Summary
			}
			p.mu.Unlock()
		}
		p.bus.Publish(TopicAnalysisDone, done)
	})

	d.Register(protocol.FrameError, func(frame protocol.Frame) {
		payload, err := protocol.DecodePayload(frame)
		if err != nil {
			p.logger.Warn("bad error frame", "error", err)
			return
		}
		backendErr := payload.(protocol.ErrorPayload)
		p.appendMessage(session.RoleSystem, "Analysis failed: "+backendErr.Message, "")
	})

	return d
}

// adoptIdentity records backend handles announced at turn start.
func (p *Panel) adoptIdentity(started protocol.StartedPayload) {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	if started.AgentSessionID != "" {
		p.current.AgentSessionID = started.AgentSessionID
	}
	if started.TraceID != "" {
		p.current.BackendTraceID = started.TraceID
	}
	p.mu.Unlock()
}

// turnEndpoint builds the streaming URL for the turn. An empty agent
// session ID is omitted, which the backend reads as "start a new
// conversation chain".
func (p *Panel) turnEndpoint(prompt string) string {
	values := url.Values{}
	values.Set("prompt", prompt)
	if p.current != nil {
		if p.current.AgentSessionID != "" {
			values.Set("session_id", p.current.AgentSessionID)
		}
		if p.current.BackendTraceID != "" {
			values.Set("trace_id", p.current.BackendTraceID)
		}
	}
	return p.streamURL + "?" + values.Encode()
}

// statusNotice surfaces reconnect progress as a flow-tagged system line.
func (p *Panel) statusNotice(msg string) {
	p.upsertFlowMessage(flowStatus, msg)
}

// finalizeStreaming replaces the streaming placeholder with the final
// assistant message.
func (p *Panel) finalizeStreaming(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearFlowLocked(flowStreaming)
	p.partial.Reset()
	if content != "" {
		p.appendMessageLocked(session.RoleAssistant, content, "")
	}
}

// upsertFlowMessage replaces the message carrying flowTag, or appends
// one if none exists.
func (p *Panel) upsertFlowMessage(flowTag, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	for i := range p.current.Messages {
		if p.current.Messages[i].FlowTag == flowTag {
			p.current.Messages[i].Content = content
			p.current.Messages[i].Timestamp = time.Now()
			return
		}
	}
	p.appendMessageLocked(session.RoleAssistant, content, flowTag)
}

func (p *Panel) appendMessage(role, content, flowTag string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendMessageLocked(role, content, flowTag)
}

// appendMessageLocked appends a message. Must be called with mu held.
func (p *Panel) appendMessageLocked(role, content, flowTag string) {
	if p.current == nil {
		return
	}
	p.current.Messages = append(p.current.Messages, session.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		FlowTag:   flowTag,
	})
}

// clearFlowLocked drops messages carrying any of the given flow tags.
// Must be called with mu held.
func (p *Panel) clearFlowLocked(flowTags ...string) {
	if p.current == nil {
		return
	}
	kept := p.current.Messages[:0]
	for _, msg := range p.current.Messages {
		drop := false
		for _, tag := range flowTags {
			if tag != "" && msg.FlowTag == tag {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, msg)
		}
	}
	p.current.Messages = kept
}

// persist writes the current session's mutable fields back through the
// continuity manager.
func (p *Panel) persist(ctx context.Context) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return nil
	}
	sessionID := p.current.SessionID
	messages := append([]session.Message(nil), p.current.Messages...)
	agentSessionID := p.current.AgentSessionID
	backendTraceID := p.current.BackendTraceID
	summary := p.current.Summary
	p.mu.Unlock()

	return p.sessions.UpdateSession(ctx, p.fingerprint, sessionID, session.Patch{
		Messages:       &messages,
		AgentSessionID: &agentSessionID,
		BackendTraceID: &backendTraceID,
		Summary:        &summary,
	})
}

// reloadCurrent refreshes the in-memory session after the manager may
// have mutated it (e.g. reconciliation clearing the agent session ID).
func (p *Panel) reloadCurrent(ctx context.Context, sessionID string) error {
	sess, err := p.sessions.LoadSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("reloading session: %w", err)
	}
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()
	return nil
}
