package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight/portfolio-analyst/internal/observability/notify"
)

func TestNewClientRequiresWebhookURL(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestSendJobFailurePostsFormattedMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{WebhookURL: srv.URL, Channel: "#alerts"})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{
		JobID:      "job-1",
		UserID:     "user-1",
		Error:      "portfolio not found",
		ErrorClass: "data_error",
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		AgentErrors: map[string]string{
			"charter": "timeout after 60s",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "#alerts", got["channel"])
	assert.Equal(t, "portfolio-analyst", got["username"])
	text, _ := got["text"].(string)
	assert.Contains(t, text, "`job-1`")
	assert.Contains(t, text, "Severity: critical")
	assert.Contains(t, text, "Error: portfolio not found")
	assert.Contains(t, text, "charter: timeout after 60s")
	assert.Contains(t, text, "2025-06-01T12:00:00Z")
}

func TestSendJobFailureRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 2})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendJobFailureExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
