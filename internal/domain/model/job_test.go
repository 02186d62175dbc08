package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusValid(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, true},
		{JobStatusRunning, true},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatus("queued"), false},
		{JobStatus(""), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Valid(), "status %q", tt.status)
	}
}

func TestJobStatusTransitionsAreMonotonic(t *testing.T) {
	all := []JobStatus{JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed}

	allowed := map[JobStatus][]JobStatus{
		JobStatusPending: {JobStatusRunning},
		JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestJobStatusTerminalStatesNeverTransition(t *testing.T) {
	for _, terminal := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
		require.True(t, terminal.Terminal())
		for _, next := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed} {
			assert.False(t, terminal.CanTransition(next), "%s -> %s", terminal, next)
		}
	}
}

func TestCreateJobRequestValidate(t *testing.T) {
	require.Error(t, (&CreateJobRequest{}).Validate())
	require.Error(t, (&CreateJobRequest{UserID: "   "}).Validate())
	require.NoError(t, (&CreateJobRequest{UserID: "user-1"}).Validate())
}

func TestQueueMessageValidate(t *testing.T) {
	require.Error(t, (&QueueMessage{}).Validate())
	require.Error(t, (&QueueMessage{JobID: "not-a-uuid"}).Validate())
	require.NoError(t, (&QueueMessage{JobID: "7d2f9a54-31c2-45a1-9d1f-0cc0b47ff1f6"}).Validate())
}
