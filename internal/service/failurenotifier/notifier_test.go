package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finsight/portfolio-analyst/internal/observability/notify"
)

func TestNotifyJobFailureFansOutToAllSinks(t *testing.T) {
	var mu sync.Mutex
	var delivered []string

	record := func(name string) notify.Sink {
		return notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, name+":"+payload.JobID)
			return nil
		})
	}

	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "slack", Sink: record("slack")},
		{Name: "audit", Sink: record("audit")},
	}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})

	assert.ElementsMatch(t, []string{"slack:job-1", "audit:job-1"}, delivered)
}

func TestNotifyJobFailureDefaultsSeverity(t *testing.T) {
	var got notify.JobFailurePayload
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Sink: notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
			got = payload
			return nil
		})},
	}})

	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
	assert.Equal(t, notify.SeverityCritical, got.Severity)
}

func TestNotifyJobFailureSinkErrorDoesNotPropagate(t *testing.T) {
	svc := NewService(Options{Sinks: []SinkRegistration{
		{Name: "broken", Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
			return errors.New("webhook down")
		})},
	}})

	// Must not panic or block.
	svc.NotifyJobFailure(context.Background(), notify.JobFailurePayload{JobID: "job-1"})
}

func TestEnabled(t *testing.T) {
	assert.False(t, NewService(Options{}).Enabled())
	assert.False(t, NewService(Options{Sinks: []SinkRegistration{{Name: "nil"}}}).Enabled())

	svc := NewService(Options{Sinks: []SinkRegistration{
		{Sink: notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error { return nil })},
	}})
	assert.True(t, svc.Enabled())

	var nilSvc *Service
	assert.False(t, nilSvc.Enabled())
}
