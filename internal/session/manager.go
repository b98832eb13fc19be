// ABOUTME: Session continuity manager - persistent identity for multi-turn conversations
// ABOUTME: CRUD over fingerprint buckets, resume reconciliation, legacy migration, retention

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/2389/trace-assist/internal/store"
)

const (
	// bucketPrefix keys one JSON array of sessions per trace fingerprint.
	bucketPrefix = "sessions/"

	// legacyStateKey is the pre-bucket single-session chat store.
	legacyStateKey = "legacy/chat_state"

	// DefaultRetention is how long inactive sessions are kept.
	DefaultRetention = 30 * 24 * time.Hour
)

// Manager owns all session persistence. The UI holds sessions only
// through this API; the KV store must not be written by anyone else.
type Manager struct {
	kv        store.KV
	resume    ResumeClient
	retention time.Duration
	logger    *slog.Logger

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewManager creates a session manager. Pass resume nil to disable
// continuity checks, retention 0 for the default window, logger nil for
// default.
func NewManager(kv store.KV, resume ResumeClient, retention time.Duration, logger *slog.Logger) *Manager {
	if retention == 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		kv:        kv,
		resume:    resume,
		retention: retention,
		logger:    logger.With("component", "session"),
		now:       time.Now,
	}
}

// CreateSession allocates a new session for the fingerprint and appends
// it to the bucket. The returned session becomes the caller's "current".
func (m *Manager) CreateSession(ctx context.Context, fingerprint, traceName string) (*AnalysisSession, error) {
	bucket, err := m.loadBucket(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := AnalysisSession{
		SessionID:        uuid.New().String(),
		TraceFingerprint: fingerprint,
		TraceName:        traceName,
		CreatedAt:        now,
		LastActiveAt:     now,
		Messages:         []Message{},
	}
	bucket = append(bucket, sess)

	if err := m.saveBucket(ctx, fingerprint, bucket); err != nil {
		return nil, err
	}

	m.logger.Debug("session created",
		"session_id", sess.SessionID,
		"fingerprint", fingerprint)
	return &sess, nil
}

// UpdateSession merges patch fields into the matching session and bumps
// LastActiveAt. Returns ErrSessionNotFound if the session is not in the
// fingerprint's bucket; callers must not assume success.
func (m *Manager) UpdateSession(ctx context.Context, fingerprint, sessionID string, patch Patch) error {
	bucket, err := m.loadBucket(ctx, fingerprint)
	if err != nil {
		return err
	}

	for i := range bucket {
		if bucket[i].SessionID != sessionID {
			continue
		}
		applyPatch(&bucket[i], patch)

		// LastActiveAt never moves backwards
		if now := m.now(); now.After(bucket[i].LastActiveAt) {
			bucket[i].LastActiveAt = now
		}
		return m.saveBucket(ctx, fingerprint, bucket)
	}
	return ErrSessionNotFound
}

// LoadSession searches all fingerprint buckets for the session. Callers
// restoring from a bookmark or history UI don't know the bucket a priori.
func (m *Manager) LoadSession(ctx context.Context, sessionID string) (*AnalysisSession, error) {
	keys, err := m.kv.Keys(ctx, bucketPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing session buckets: %w", err)
	}

	for _, key := range keys {
		bucket, err := m.loadBucketKey(ctx, key)
		if err != nil {
			return nil, err
		}
		for i := range bucket {
			if bucket[i].SessionID == sessionID {
				sess := bucket[i]
				return &sess, nil
			}
		}
	}
	return nil, ErrSessionNotFound
}

// DeleteSession removes the session from whichever bucket holds it.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	keys, err := m.kv.Keys(ctx, bucketPrefix)
	if err != nil {
		return fmt.Errorf("listing session buckets: %w", err)
	}

	for _, key := range keys {
		bucket, err := m.loadBucketKey(ctx, key)
		if err != nil {
			return err
		}
		for i := range bucket {
			if bucket[i].SessionID != sessionID {
				continue
			}
			bucket = append(bucket[:i], bucket[i+1:]...)
			return m.saveBucketKey(ctx, key, bucket)
		}
	}
	return ErrSessionNotFound
}

// ListSessions returns the fingerprint's sessions ordered by
// LastActiveAt descending, for display.
func (m *Manager) ListSessions(ctx context.Context, fingerprint string) ([]AnalysisSession, error) {
	bucket, err := m.loadBucket(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	sort.Slice(bucket, func(i, j int) bool {
		return bucket[i].LastActiveAt.After(bucket[j].LastActiveAt)
	})
	return bucket, nil
}

// Reconcile checks backend continuity before a new analysis turn. Only
// meaningful once a server-side trace handle exists; otherwise a no-op.
// On unrecoverable discontinuity the local AgentSessionID is cleared so
// the next turn starts a fresh server-side chain; transient failures
// keep the existing identity and proceed optimistically.
func (m *Manager) Reconcile(ctx context.Context, fingerprint, sessionID string) error {
	if m.resume == nil {
		return nil
	}

	sess, err := m.findInBucket(ctx, fingerprint, sessionID)
	if err != nil {
		return err
	}
	if sess.BackendTraceID == "" || sess.AgentSessionID == "" {
		// Nothing to reconcile yet
		return nil
	}

	outcome := m.resume.Resume(ctx, sess.AgentSessionID, sess.BackendTraceID)
	m.logger.Debug("continuity check",
		"session_id", sessionID,
		"outcome", outcome.String())

	if outcome == ResumeDiscontinued {
		m.logger.Info("backend session lost, starting fresh conversation chain",
			"session_id", sessionID)
		cleared := ""
		return m.UpdateSession(ctx, fingerprint, sessionID, Patch{AgentSessionID: &cleared})
	}
	return nil
}

// legacyState is the pre-bucket single-session store shape.
type legacyState struct {
	Messages       []Message `json:"messages"`
	BackendTraceID string    `json:"trace_id,omitempty"`
}

// MigrateLegacy synthesizes one session from the legacy single-session
// store, at most once per fingerprint: the presence of any session for
// the fingerprint is itself the already-migrated marker.
func (m *Manager) MigrateLegacy(ctx context.Context, fingerprint, traceName string) error {
	bucket, err := m.loadBucket(ctx, fingerprint)
	if err != nil {
		return err
	}
	if len(bucket) > 0 {
		return nil
	}

	data, err := m.kv.Get(ctx, legacyStateKey)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading legacy state: %w", err)
	}

	var legacy legacyState
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parsing legacy state: %w", err)
	}
	if len(legacy.Messages) == 0 {
		return nil
	}

	now := m.now()
	sess := AnalysisSession{
		SessionID:        uuid.New().String(),
		TraceFingerprint: fingerprint,
		TraceName:        traceName,
		BackendTraceID:   legacy.BackendTraceID,
		CreatedAt:        now,
		LastActiveAt:     now,
		Messages:         legacy.Messages,
	}

	if err := m.saveBucket(ctx, fingerprint, []AnalysisSession{sess}); err != nil {
		return err
	}
	m.logger.Info("migrated legacy chat state",
		"fingerprint", fingerprint,
		"messages", len(legacy.Messages))
	return nil
}

// SweepExpired deletes sessions inactive longer than the retention
// window; buckets left empty are removed entirely. Returns the number of
// sessions deleted.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	keys, err := m.kv.Keys(ctx, bucketPrefix)
	if err != nil {
		return 0, fmt.Errorf("listing session buckets: %w", err)
	}

	cutoff := m.now().Add(-m.retention)
	deleted := 0

	for _, key := range keys {
		bucket, err := m.loadBucketKey(ctx, key)
		if err != nil {
			return deleted, err
		}

		kept := bucket[:0]
		for _, sess := range bucket {
			if sess.LastActiveAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, sess)
		}
		if len(kept) == len(bucket) {
			continue
		}
		if err := m.saveBucketKey(ctx, key, kept); err != nil {
			return deleted, err
		}
	}

	if deleted > 0 {
		m.logger.Info("retention sweep complete", "deleted", deleted)
	}
	return deleted, nil
}

// findInBucket returns the session from its fingerprint bucket.
func (m *Manager) findInBucket(ctx context.Context, fingerprint, sessionID string) (*AnalysisSession, error) {
	bucket, err := m.loadBucket(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	for i := range bucket {
		if bucket[i].SessionID == sessionID {
			sess := bucket[i]
			return &sess, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *Manager) loadBucket(ctx context.Context, fingerprint string) ([]AnalysisSession, error) {
	return m.loadBucketKey(ctx, bucketPrefix+fingerprint)
}

func (m *Manager) loadBucketKey(ctx context.Context, key string) ([]AnalysisSession, error) {
	data, err := m.kv.Get(ctx, key)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bucket %q: %w", key, err)
	}

	var bucket []AnalysisSession
	if err := json.Unmarshal(data, &bucket); err != nil {
		return nil, fmt.Errorf("parsing bucket %q: %w", key, err)
	}
	return bucket, nil
}

func (m *Manager) saveBucket(ctx context.Context, fingerprint string, bucket []AnalysisSession) error {
	return m.saveBucketKey(ctx, bucketPrefix+fingerprint, bucket)
}

func (m *Manager) saveBucketKey(ctx context.Context, key string, bucket []AnalysisSession) error {
	if len(bucket) == 0 {
		return m.kv.Delete(ctx, key)
	}

	data, err := json.Marshal(bucket)
	if err != nil {
		return fmt.Errorf("encoding bucket %q: %w", key, err)
	}
	if err := m.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("writing bucket %q: %w", key, err)
	}
	return nil
}

func applyPatch(sess *AnalysisSession, patch Patch) {
	if patch.TraceName != nil {
		sess.TraceName = *patch.TraceName
	}
	if patch.BackendTraceID != nil {
		sess.BackendTraceID = *patch.BackendTraceID
	}
	if patch.AgentSessionID != nil {
		sess.AgentSessionID = *patch.AgentSessionID
	}
	if patch.Messages != nil {
		sess.Messages = *patch.Messages
	}
	if patch.PinnedResults != nil {
		sess.PinnedResults = *patch.PinnedResults
	}
	if patch.Bookmarks != nil {
		sess.Bookmarks = *patch.Bookmarks
	}
	if patch.Summary != nil {
		sess.Summary = *patch.Summary
	}
}
