package service

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// DefaultSummaryExpression selects the reporter payload field the job
// summary is read from.
const DefaultSummaryExpression = "summary"

// SummaryExtractor pulls the human-readable job summary out of the reporter
// agent's payload with a configurable JMESPath expression.
type SummaryExtractor struct {
	expression string
	evaluator  JMESPathEvaluator
}

// NewSummaryExtractor validates the expression and builds an extractor. An
// empty expression falls back to the default.
func NewSummaryExtractor(expression string, evaluator JMESPathEvaluator) (*SummaryExtractor, error) {
	if strings.TrimSpace(expression) == "" {
		expression = DefaultSummaryExpression
	}
	if evaluator == nil {
		evaluator = jmespathLibEvaluator{}
	}
	if err := evaluator.Validate(expression); err != nil {
		return nil, fmt.Errorf("invalid summary expression %q: %w", expression, err)
	}
	return &SummaryExtractor{expression: expression, evaluator: evaluator}, nil
}

// Extract evaluates the expression against the reporter payload and returns
// the summary string, or nil when the payload has none. A non-string result
// is treated as absent rather than an error: reporter payload shapes vary
// and a missing summary must never fail a job.
func (e *SummaryExtractor) Extract(payload json.RawMessage) *string {
	if e == nil || len(payload) == 0 {
		return nil
	}

	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil
	}

	result, err := e.evaluator.Evaluate(e.expression, data)
	if err != nil {
		return nil
	}

	summary, ok := result.(string)
	if !ok || strings.TrimSpace(summary) == "" {
		return nil
	}
	return &summary
}
