// ABOUTME: Resume/continuity endpoint client and outcome classification
// ABOUTME: Splits failures into unrecoverable discontinuity vs transient

package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ResumeOutcome classifies a continuity check against the backend.
type ResumeOutcome int

const (
	// ResumeOK: the backend still knows the agent session; keep it.
	ResumeOK ResumeOutcome = iota
	// ResumeDiscontinued: the backend lost the session; clear the local
	// agent session ID so the next turn starts a fresh chain.
	ResumeDiscontinued
	// ResumeTransient: the check itself failed (network, 5xx, timeout);
	// keep the existing ID and proceed optimistically.
	ResumeTransient
)

// ResumeClient checks whether a server-side conversation handle is still
// valid for a registered trace.
type ResumeClient interface {
	Resume(ctx context.Context, agentSessionID, traceID string) ResumeOutcome
}

// mismatchCode is the backend's explicit discontinuity marker.
const mismatchCode = "TRACE_ID_MISMATCH"

// HTTPResumeClient implements ResumeClient against the backend's resume
// endpoint.
type HTTPResumeClient struct {
	Endpoint string
	Client   *http.Client
}

type resumeRequest struct {
	SessionID string `json:"sessionId"`
	TraceID   string `json:"traceId"`
}

type resumeResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// Resume posts {sessionId, traceId} and classifies the response:
// 2xx is success; 404, a TRACE_ID_MISMATCH code, or a "Session not
// found" error message is an unrecoverable discontinuity; anything else
// is transient. History is never dropped on a flaky network.
func (r *HTTPResumeClient) Resume(ctx context.Context, agentSessionID, traceID string) ResumeOutcome {
	body, err := json.Marshal(resumeRequest{SessionID: agentSessionID, TraceID: traceID})
	if err != nil {
		return ResumeTransient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return ResumeTransient
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return ResumeTransient
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ResumeDiscontinued
	}

	// Check the body for the explicit discontinuity markers before
	// falling back to status classification
	var parsed resumeResponse
	if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); readErr == nil {
		_ = json.Unmarshal(data, &parsed)
	}
	if parsed.Code == mismatchCode || strings.Contains(parsed.Error, "Session not found") {
		return ResumeDiscontinued
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return ResumeOK
	}
	return ResumeTransient
}

var _ ResumeClient = (*HTTPResumeClient)(nil)

// String returns the outcome name for logging.
func (o ResumeOutcome) String() string {
	switch o {
	case ResumeOK:
		return "ok"
	case ResumeDiscontinued:
		return "discontinued"
	case ResumeTransient:
		return "transient"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}
