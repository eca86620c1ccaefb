package evalexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDecodesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eval/run", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tone", body["datasetId"])

		json.NewEncoder(w).Encode(RunResult{
			RunID:            "run-42",
			PassRate:         0.85,
			AverageScore:     4.2,
			TotalCases:       20,
			ErrorCases:       1,
			ArtifactVersions: map[string]string{"tone-guard": "3"},
			Status:           "complete",
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.Run(context.Background(), "tone")
	require.NoError(t, err)
	assert.Equal(t, "run-42", result.RunID)
	assert.Equal(t, 0.85, result.PassRate)
	assert.Equal(t, "3", result.ArtifactVersions["tone-guard"])
}

func TestRunRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(RunResult{RunID: "run-2", Status: "complete"})
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, Retries: 2})
	require.NoError(t, err)

	result, err := client.Run(context.Background(), "tone")
	require.NoError(t, err)
	assert.Equal(t, "run-2", result.RunID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRunExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL, Retries: 1})
	require.NoError(t, err)

	_, err = client.Run(context.Background(), "tone")
	assert.Error(t, err)
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient(HTTPClientConfig{})
	assert.Error(t, err)
}
