// ABOUTME: Tests for the HTTP resolution client
// ABOUTME: Wire shape, verdict decoding, and status error handling

package intervention

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePostsDecision(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	r := &HTTPResolver{Endpoint: srv.URL}
	resp, err := r.Resolve(context.Background(), ResolutionRequest{
		InterventionID:   "int-1",
		Action:           "custom",
		SelectedOptionID: "opt-custom",
		CustomInput:      "check the IO scheduler",
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "int-1", got["interventionId"])
	assert.Equal(t, "custom", got["action"])
	assert.Equal(t, "opt-custom", got["selectedOptionId"])
	assert.Equal(t, "check the IO scheduler", got["customInput"])
}

func TestResolveBackendRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":"intervention expired"}`))
	}))
	defer srv.Close()

	r := &HTTPResolver{Endpoint: srv.URL}
	resp, err := r.Resolve(context.Background(), ResolutionRequest{InterventionID: "int-1", Action: "abort"})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "intervention expired", resp.Error)
}

func TestResolveBareStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	r := &HTTPResolver{Endpoint: srv.URL}
	_, err := r.Resolve(context.Background(), ResolutionRequest{InterventionID: "int-1", Action: "abort"})

	assert.Error(t, err)
}

func TestResolveNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	r := &HTTPResolver{Endpoint: srv.URL}
	_, err := r.Resolve(context.Background(), ResolutionRequest{InterventionID: "int-1", Action: "abort"})

	assert.Error(t, err)
}
