package agentapi

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
)

// AsyncClient mirrors the message and status operations of Client with
// context-aware methods. Suspension happens only at the network I/O
// boundary; each call carries exactly one in-flight request and no
// pipelining is implied.
type AsyncClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	closed  atomic.Bool
}

// NewAsyncClient constructs an AsyncClient for the given base URL. An empty
// baseURL selects DefaultBaseURL.
func NewAsyncClient(baseURL string, opts ...Option) *AsyncClient {
	o := buildOptions(opts)
	return &AsyncClient{
		baseURL: normalizeBaseURL(baseURL),
		apiKey:  o.apiKey,
		httpc:   o.httpc,
	}
}

// Close releases the transport. Any use of the client afterwards fails with
// *ClosedClientError.
func (c *AsyncClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.httpc.CloseIdleConnections()
	return nil
}

// SendMessage delivers content to the agent, honoring ctx cancellation at
// the network boundary.
func (c *AsyncClient) SendMessage(ctx context.Context, content string, kind MessageKind) (SendResult, error) {
	const op = "send message"
	if c.closed.Load() {
		return SendResult{}, &ClosedClientError{Op: op}
	}
	payload := struct {
		Content string      `json:"content"`
		Type    MessageKind `json:"type"`
	}{Content: content, Type: kind}

	data, err := doJSON(ctx, c.httpc, op, c.apiKey, http.MethodPost, c.baseURL+"/message", payload)
	if err != nil {
		return SendResult{}, err
	}
	return decodeEnvelope[SendResult](data)
}

// Status fetches the agent's current execution state, honoring ctx
// cancellation at the network boundary.
func (c *AsyncClient) Status(ctx context.Context) (Status, error) {
	const op = "fetch status"
	if c.closed.Load() {
		return Status{}, &ClosedClientError{Op: op}
	}
	data, err := doRequest(ctx, c.httpc, op, c.apiKey, http.MethodGet, c.baseURL+"/status", nil, "")
	if err != nil {
		return Status{}, err
	}
	status, err := decodeEnvelope[Status](data)
	if err != nil {
		return Status{}, err
	}
	switch status.Status {
	case AgentStatusRunning, AgentStatusStable:
	default:
		return Status{}, &FormatError{Field: "status", Err: fmt.Errorf("unknown value %q", status.Status)}
	}
	return status, nil
}
