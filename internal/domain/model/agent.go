package model

import "encoding/json"

// Specialist capability names. Each produces exactly one named result field
// on the job record.
const (
	AgentReporter   = "reporter"
	AgentCharter    = "charter"
	AgentRetirement = "retirement"
	AgentClassifier = "classifier"
)

// AgentResult is the outcome of invoking one specialist capability for one
// job. Results are transient: only the payload of a successful result is
// written into the job record, and failures land in the job's per-agent
// error log.
type AgentResult struct {
	Agent     string          `json:"agent"`
	Succeeded bool            `json:"succeeded"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// Success constructs a successful AgentResult.
func Success(agent string, payload json.RawMessage) AgentResult {
	return AgentResult{Agent: agent, Succeeded: true, Payload: payload}
}

// Failure constructs a failed AgentResult from an error.
func Failure(agent string, err error) AgentResult {
	res := AgentResult{Agent: agent}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}

// AgentRequest is the request body sent to a specialist capability.
type AgentRequest struct {
	JobID       string             `json:"job_id"`
	Portfolio   *PortfolioSnapshot `json:"portfolio"`
	Preferences json.RawMessage    `json:"preferences,omitempty"`
}

// ClassifyRequest is the request body sent to the classification capability.
type ClassifyRequest struct {
	Instruments []InstrumentRef `json:"instruments"`
}

// ClassifyResponse is the classification capability's reply.
type ClassifyResponse struct {
	Tagged          int               `json:"tagged"`
	Updated         []string          `json:"updated"`
	Errors          []ClassifyError   `json:"errors,omitempty"`
	Classifications []*Classification `json:"classifications"`
}

// ClassifyError reports a per-symbol classification failure.
type ClassifyError struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}
