package agents

import "fmt"

// TransientError indicates an infrastructure-level failure talking to a
// capability: a timeout, a connection failure, or a 5xx reply. Transient
// errors are safe to retry when the caller has a retry policy; nothing in
// the invoker retries on its own.
type TransientError struct {
	Capability string
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("capability %s unavailable: %v", e.Capability, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FailureError indicates the capability was reached but reported failure:
// success=false, an error field, or a non-retryable status. Agent failures
// are scoped to a single specialist and never fail the whole job.
type FailureError struct {
	Capability string
	Message    string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("capability %s failed: %s", e.Capability, e.Message)
}
