// Package agents provides the generic remote-capability client used to reach
// specialist analysis agents, plus the explicit retry policy applied to the
// one call that warrants it.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxResponseBodyBytes = 1 << 20 // capability payloads are small; cap reads at 1MB

// Endpoint describes how to reach one capability.
type Endpoint struct {
	URL     string
	Timeout time.Duration
}

// Invoker sends a request to a named capability and returns the unwrapped
// reply payload.
type Invoker interface {
	Invoke(ctx context.Context, capability string, timeout time.Duration, request any) (json.RawMessage, error)
}

// InvokerOptions configures an HTTPInvoker.
type InvokerOptions struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Endpoints  map[string]Endpoint
}

// HTTPInvoker invokes capabilities over HTTP POST with JSON bodies.
type HTTPInvoker struct {
	http      *http.Client
	logger    *slog.Logger
	endpoints map[string]Endpoint
}

// NewInvoker constructs an HTTPInvoker.
func NewInvoker(opts InvokerOptions) (*HTTPInvoker, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("at least one capability endpoint is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPInvoker{
		http:      hc,
		logger:    logger.With("component", "agent_invoker"),
		endpoints: opts.Endpoints,
	}, nil
}

// Invoke posts the request to the named capability and waits for a reply
// within the timeout. Timeouts and connection failures come back as
// *TransientError; a reachable capability reporting failure comes back as
// *FailureError. The reply is normalized: either a raw payload or a
// {statusCode, body} envelope (with body possibly a JSON-encoded string)
// unwraps to the same logical payload.
func (i *HTTPInvoker) Invoke(
	ctx context.Context,
	capability string,
	timeout time.Duration,
	request any,
) (json.RawMessage, error) {
	ep, ok := i.endpoints[capability]
	if !ok {
		return nil, fmt.Errorf("unknown capability %q", capability)
	}
	if timeout <= 0 {
		timeout = ep.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", capability, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", capability, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := i.http.Do(req)
	if err != nil {
		return nil, &TransientError{Capability: capability, Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			i.logger.WarnContext(ctx, "close capability response body", "capability", capability, "error", cerr)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, &TransientError{Capability: capability, Err: fmt.Errorf("read response: %w", err)}
	}

	i.logger.DebugContext(ctx, "capability invoked",
		"capability", capability,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &TransientError{
			Capability: capability,
			Err:        fmt.Errorf("status %d: %s", resp.StatusCode, truncate(raw, 256)),
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &FailureError{
			Capability: capability,
			Message:    fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(raw, 256)),
		}
	}

	payload, err := unwrapEnvelope(raw)
	if err != nil {
		return nil, &FailureError{Capability: capability, Message: err.Error()}
	}
	return payload, nil
}

// responseEnvelope is the proxied reply shape some capabilities answer with.
type responseEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// unwrapEnvelope normalizes the two reply shapes into one logical payload.
// An envelope's body may itself be a JSON-encoded string and is decoded one
// more level in that case.
func unwrapEnvelope(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	var env responseEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil || env.StatusCode == 0 {
		// Not an envelope; the body is already the payload.
		return trimmed, nil
	}

	if env.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("envelope status %d: %s", env.StatusCode, truncate(env.Body, 256))
	}

	inner := bytes.TrimSpace(env.Body)
	if len(inner) == 0 {
		return nil, errors.New("envelope has empty body")
	}
	if inner[0] == '"' {
		var encoded string
		if err := json.Unmarshal(inner, &encoded); err != nil {
			return nil, fmt.Errorf("decode envelope body string: %w", err)
		}
		return json.RawMessage(encoded), nil
	}
	return inner, nil
}

// agentReply is the standard specialist reply shape.
type agentReply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// DecodeAgentReply parses a specialist capability payload, returning the data
// field on success and a *FailureError when the capability reported failure.
func DecodeAgentReply(capability string, payload json.RawMessage) (json.RawMessage, error) {
	var reply agentReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return nil, &FailureError{
			Capability: capability,
			Message:    fmt.Sprintf("malformed reply: %v", err),
		}
	}
	if !reply.Success {
		msg := reply.Error
		if msg == "" {
			msg = "capability reported failure without detail"
		}
		return nil, &FailureError{Capability: capability, Message: msg}
	}
	if len(bytes.TrimSpace(reply.Data)) == 0 {
		return nil, &FailureError{Capability: capability, Message: "success reply carried no data"}
	}
	return reply.Data, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
