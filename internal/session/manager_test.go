// ABOUTME: Tests for session persistence, continuity, migration, and retention
// ABOUTME: Uses the in-memory KV and a scripted resume client

package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/trace-assist/internal/store"
)

// stubResume returns a fixed outcome and records what it was asked.
type stubResume struct {
	outcome     ResumeOutcome
	calls       int
	lastSession string
	lastTraceID string
}

func (s *stubResume) Resume(_ context.Context, agentSessionID, traceID string) ResumeOutcome {
	s.calls++
	s.lastSession = agentSessionID
	s.lastTraceID = traceID
	return s.outcome
}

func newTestManager(t *testing.T) (*Manager, *store.MemKV) {
	t.Helper()
	kv := store.NewMemKV()
	return NewManager(kv, nil, 0, nil), kv
}

func TestCreateAndListSessions(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	first, err := mgr.CreateSession(ctx, "fp-1", "boot-trace")
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, "fp-1", first.TraceFingerprint)
	assert.Equal(t, "boot-trace", first.TraceName)
	assert.NotNil(t, first.Messages)

	second, err := mgr.CreateSession(ctx, "fp-1", "boot-trace")
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	sessions, err := mgr.ListSessions(ctx, "fp-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	// Sessions for another trace live in their own bucket
	other, err := mgr.ListSessions(ctx, "fp-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestListSessionsOrderedByActivity(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return base }
	older, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	mgr.now = func() time.Time { return base.Add(time.Hour) }
	newer, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	sessions, err := mgr.ListSessions(ctx, "fp-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.SessionID, sessions[0].SessionID)
	assert.Equal(t, older.SessionID, sessions[1].SessionID)
}

func TestUpdateSessionAppliesPatch(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	agentID := "agent-7"
	summary := "found a lock contention hotspot"
	messages := []Message{{ID: "m1", Role: RoleUser, Content: "why is startup slow?"}}
	err = mgr.UpdateSession(ctx, "fp-1", sess.SessionID, Patch{
		AgentSessionID: &agentID,
		Summary:        &summary,
		Messages:       &messages,
	})
	require.NoError(t, err)

	loaded, err := mgr.LoadSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "agent-7", loaded.AgentSessionID)
	assert.Equal(t, summary, loaded.Summary)
	require.Len(t, loaded.Messages, 1)
	assert.Equal(t, "why is startup slow?", loaded.Messages[0].Content)

	// Unpatched fields are untouched
	assert.Equal(t, "t", loaded.TraceName)
}

func TestUpdateSessionNotFound(t *testing.T) {
	mgr, _ := newTestManager(t)

	err := mgr.UpdateSession(context.Background(), "fp-1", "no-such-id", Patch{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateSessionBumpsLastActiveMonotonically(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr.now = func() time.Time { return base }
	sess, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	mgr.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, mgr.UpdateSession(ctx, "fp-1", sess.SessionID, Patch{}))

	loaded, err := mgr.LoadSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), loaded.LastActiveAt)

	// A clock that moves backwards never rewinds LastActiveAt
	mgr.now = func() time.Time { return base.Add(-time.Hour) }
	require.NoError(t, mgr.UpdateSession(ctx, "fp-1", sess.SessionID, Patch{}))

	loaded, err = mgr.LoadSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), loaded.LastActiveAt)
}

func TestLoadSessionScansAllBuckets(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "fp-1", "a")
	require.NoError(t, err)
	target, err := mgr.CreateSession(ctx, "fp-2", "b")
	require.NoError(t, err)

	loaded, err := mgr.LoadSession(ctx, target.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "fp-2", loaded.TraceFingerprint)

	_, err = mgr.LoadSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDeleteSession(t *testing.T) {
	mgr, kv := newTestManager(t)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteSession(ctx, sess.SessionID))

	_, err = mgr.LoadSession(ctx, sess.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Deleting the last session removes the bucket key entirely
	assert.Equal(t, 0, kv.Len())

	assert.ErrorIs(t, mgr.DeleteSession(ctx, sess.SessionID), ErrSessionNotFound)
}

func TestReconcileDiscontinuedClearsAgentSession(t *testing.T) {
	kv := store.NewMemKV()
	resume := &stubResume{outcome: ResumeDiscontinued}
	mgr := NewManager(kv, resume, 0, nil)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	agentID := "agent-1"
	traceID := "trace-1"
	require.NoError(t, mgr.UpdateSession(ctx, "fp-1", sess.SessionID, Patch{
		AgentSessionID: &agentID,
		BackendTraceID: &traceID,
	}))

	require.NoError(t, mgr.Reconcile(ctx, "fp-1", sess.SessionID))

	assert.Equal(t, 1, resume.calls)
	assert.Equal(t, "agent-1", resume.lastSession)
	assert.Equal(t, "trace-1", resume.lastTraceID)

	loaded, err := mgr.LoadSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Empty(t, loaded.AgentSessionID)
	// History and the trace handle survive the discontinuity
	assert.Equal(t, "trace-1", loaded.BackendTraceID)
}

func TestReconcileTransientKeepsIdentity(t *testing.T) {
	kv := store.NewMemKV()
	resume := &stubResume{outcome: ResumeTransient}
	mgr := NewManager(kv, resume, 0, nil)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	agentID := "agent-1"
	traceID := "trace-1"
	require.NoError(t, mgr.UpdateSession(ctx, "fp-1", sess.SessionID, Patch{
		AgentSessionID: &agentID,
		BackendTraceID: &traceID,
	}))

	require.NoError(t, mgr.Reconcile(ctx, "fp-1", sess.SessionID))

	loaded, err := mgr.LoadSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", loaded.AgentSessionID)
}

func TestReconcileNoOpWithoutBackendHandles(t *testing.T) {
	kv := store.NewMemKV()
	resume := &stubResume{outcome: ResumeDiscontinued}
	mgr := NewManager(kv, resume, 0, nil)
	ctx := context.Background()

	sess, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	require.NoError(t, mgr.Reconcile(ctx, "fp-1", sess.SessionID))
	assert.Equal(t, 0, resume.calls)
}

func TestMigrateLegacyCreatesSession(t *testing.T) {
	mgr, kv := newTestManager(t)
	ctx := context.Background()

	legacy := map[string]any{
		"messages": []Message{
			{ID: "m1", Role: RoleUser, Content: "old question"},
			{ID: "m2", Role: RoleAssistant, Content: "old answer"},
		},
		"trace_id": "trace-legacy",
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "legacy/chat_state", data))

	require.NoError(t, mgr.MigrateLegacy(ctx, "fp-1", "boot-trace"))

	sessions, err := mgr.ListSessions(ctx, "fp-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].Messages, 2)
	assert.Equal(t, "trace-legacy", sessions[0].BackendTraceID)
	assert.Equal(t, "boot-trace", sessions[0].TraceName)
}

func TestMigrateLegacyRunsAtMostOnce(t *testing.T) {
	mgr, kv := newTestManager(t)
	ctx := context.Background()

	data, err := json.Marshal(map[string]any{
		"messages": []Message{{ID: "m1", Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "legacy/chat_state", data))

	require.NoError(t, mgr.MigrateLegacy(ctx, "fp-1", "t"))
	require.NoError(t, mgr.MigrateLegacy(ctx, "fp-1", "t"))

	sessions, err := mgr.ListSessions(ctx, "fp-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestMigrateLegacySkipsWhenSessionsExist(t *testing.T) {
	mgr, kv := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	data, err := json.Marshal(map[string]any{
		"messages": []Message{{ID: "m1", Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "legacy/chat_state", data))

	require.NoError(t, mgr.MigrateLegacy(ctx, "fp-1", "t"))

	sessions, err := mgr.ListSessions(ctx, "fp-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Empty(t, sessions[0].Messages)
}

func TestMigrateLegacyNoLegacyState(t *testing.T) {
	mgr, _ := newTestManager(t)

	require.NoError(t, mgr.MigrateLegacy(context.Background(), "fp-1", "t"))

	sessions, err := mgr.ListSessions(context.Background(), "fp-1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSweepExpired(t *testing.T) {
	kv := store.NewMemKV()
	mgr := NewManager(kv, nil, 30*24*time.Hour, nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mgr.now = func() time.Time { return base.Add(-40 * 24 * time.Hour) }
	stale, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	mgr.now = func() time.Time { return base.Add(-time.Hour) }
	fresh, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	mgr.now = func() time.Time { return base.Add(-35 * 24 * time.Hour) }
	_, err = mgr.CreateSession(ctx, "fp-2", "other")
	require.NoError(t, err)

	mgr.now = func() time.Time { return base }
	deleted, err := mgr.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := mgr.ListSessions(ctx, "fp-1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.SessionID, remaining[0].SessionID)

	_, err = mgr.LoadSession(ctx, stale.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// fp-2's bucket emptied out and its key was removed
	keys, err := kv.Keys(ctx, "sessions/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestSweepExpiredNothingToDo(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.CreateSession(ctx, "fp-1", "t")
	require.NoError(t, err)

	deleted, err := mgr.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	a := Fingerprint(100, 200, "boot")
	b := Fingerprint(100, 200, "boot")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	assert.NotEqual(t, a, Fingerprint(100, 201, "boot"))
	assert.NotEqual(t, a, Fingerprint(101, 200, "boot"))
	assert.NotEqual(t, a, Fingerprint(100, 200, "shutdown"))
}
