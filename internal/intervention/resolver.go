// ABOUTME: Resolution endpoint client for intervention confirm/abort
// ABOUTME: Posts the user's decision and returns the backend's verdict

package intervention

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// ResolutionRequest is the wire form of a user's intervention decision.
// CustomInput is included only when the selected option's action is
// "custom".
type ResolutionRequest struct {
	InterventionID   string `json:"interventionId"`
	Action           string `json:"action"`
	SelectedOptionID string `json:"selectedOptionId,omitempty"`
	CustomInput      string `json:"customInput,omitempty"`
}

// ResolutionResponse is the backend's verdict on a resolution attempt.
type ResolutionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Resolver submits intervention resolutions to the backend.
type Resolver interface {
	Resolve(ctx context.Context, req ResolutionRequest) (ResolutionResponse, error)
}

// HTTPResolver implements Resolver against the backend's resolution
// endpoint.
type HTTPResolver struct {
	Endpoint string
	Client   *http.Client
}

// Resolve posts the decision and decodes {success, error?}.
func (r *HTTPResolver) Resolve(ctx context.Context, req ResolutionRequest) (ResolutionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ResolutionResponse{}, fmt.Errorf("encoding resolution: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return ResolutionResponse{}, fmt.Errorf("building resolution request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return ResolutionResponse{}, fmt.Errorf("posting resolution: %w", err)
	}
	defer resp.Body.Close()

	var result ResolutionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ResolutionResponse{}, fmt.Errorf("decoding resolution response: %w", err)
	}
	if (resp.StatusCode < 200 || resp.StatusCode >= 300) && result.Error == "" {
		return result, fmt.Errorf("resolution endpoint returned status %d", resp.StatusCode)
	}
	return result, nil
}

var _ Resolver = (*HTTPResolver)(nil)
