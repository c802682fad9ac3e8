package agentapi

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// PollInterval is the fixed delay between status polls in WaitUntilIdle.
const PollInterval = 500 * time.Millisecond

// Client is the synchronous facade over a single running agent. One HTTP
// transport with one fixed timeout and one bearer credential is shared by
// every operation; there is no per-call override. A Client assumes one
// logical caller at a time.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	clock   Clock

	closed atomic.Bool

	mu           sync.Mutex
	conversation Conversation
}

// NewClient constructs a Client for the given base URL. An empty baseURL
// selects DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	o := buildOptions(opts)
	return &Client{
		baseURL: normalizeBaseURL(baseURL),
		apiKey:  o.apiKey,
		httpc:   o.httpc,
		clock:   o.clock,
	}
}

// Close releases the transport. Any use of the client afterwards fails with
// *ClosedClientError.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.httpc.CloseIdleConnections()
	return nil
}

func (c *Client) checkOpen(op string) error {
	if c.closed.Load() {
		return &ClosedClientError{Op: op}
	}
	return nil
}

// SendMessage delivers content to the agent. MessageKindUser is persisted
// into the history and processed by the agent; MessageKindRaw is forwarded
// as raw input and never persisted.
func (c *Client) SendMessage(content string, kind MessageKind) (SendResult, error) {
	const op = "send message"
	if err := c.checkOpen(op); err != nil {
		return SendResult{}, err
	}
	payload := struct {
		Content string      `json:"content"`
		Type    MessageKind `json:"type"`
	}{Content: content, Type: kind}

	data, err := doJSON(context.Background(), c.httpc, op, c.apiKey, http.MethodPost, c.baseURL+"/message", payload)
	if err != nil {
		return SendResult{}, err
	}
	return decodeEnvelope[SendResult](data)
}

// Status fetches the agent's current execution state. No side effects
// beyond the network call.
func (c *Client) Status() (Status, error) {
	const op = "fetch status"
	if err := c.checkOpen(op); err != nil {
		return Status{}, err
	}
	data, err := doRequest(context.Background(), c.httpc, op, c.apiKey, http.MethodGet, c.baseURL+"/status", nil, "")
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

type wireMessage struct {
	ID      *int    `json:"id"`
	Content *string `json:"content"`
	Role    *string `json:"role"`
	Time    *string `json:"time"`
}

type wireMessages struct {
	Messages []wireMessage `json:"messages"`
}

// Messages fetches the full conversation history, replacing the cached
// copy. Ordering is the server's and is preserved as-is.
func (c *Client) Messages() (Conversation, error) {
	const op = "fetch messages"
	if err := c.checkOpen(op); err != nil {
		return Conversation{}, err
	}
	data, err := doRequest(context.Background(), c.httpc, op, c.apiKey, http.MethodGet, c.baseURL+"/messages", nil, "")
	if err != nil {
		return Conversation{}, err
	}
	wire, err := decodeEnvelope[wireMessages](data)
	if err != nil {
		return Conversation{}, err
	}

	conv := Conversation{Messages: make([]Message, 0, len(wire.Messages))}
	for _, m := range wire.Messages {
		msg, err := m.toMessage()
		if err != nil {
			return Conversation{}, err
		}
		conv.Messages = append(conv.Messages, msg)
	}

	c.mu.Lock()
	c.conversation = conv
	c.mu.Unlock()
	return conv, nil
}

func (m wireMessage) toMessage() (Message, error) {
	switch {
	case m.ID == nil:
		return Message{}, &FormatError{Field: "id", Err: fmt.Errorf("missing")}
	case m.Content == nil:
		return Message{}, &FormatError{Field: "content", Err: fmt.Errorf("missing")}
	case m.Role == nil:
		return Message{}, &FormatError{Field: "role", Err: fmt.Errorf("missing")}
	case m.Time == nil:
		return Message{}, &FormatError{Field: "time", Err: fmt.Errorf("missing")}
	}
	t, err := parseMessageTime(*m.Time)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: *m.ID, Content: *m.Content, Role: Role(*m.Role), Time: t}, nil
}

// Conversation returns the most recently fetched history without a network
// call. It is empty until Messages has succeeded once.
func (c *Client) Conversation() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation
}

// Upload reads the file at path fully into memory and sends it as multipart
// form data under the field name "file", using the file's base name as the
// filename. A missing local path fails with *NotFoundError before any
// network request is issued.
func (c *Client) Upload(path string) (UploadResult, error) {
	const op = "upload file"
	if err := c.checkOpen(op); err != nil {
		return UploadResult{}, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return UploadResult{}, &NotFoundError{Path: path, Err: err}
		}
		return UploadResult{}, fmt.Errorf("agentapi: %s: %w", op, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return UploadResult{}, fmt.Errorf("agentapi: %s: %w", op, err)
	}
	if _, err := part.Write(content); err != nil {
		return UploadResult{}, fmt.Errorf("agentapi: %s: %w", op, err)
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("agentapi: %s: %w", op, err)
	}

	data, err := doRequest(context.Background(), c.httpc, op, c.apiKey, http.MethodPost, c.baseURL+"/upload", &body, writer.FormDataContentType())
	if err != nil {
		return UploadResult{}, err
	}
	return decodeEnvelope[UploadResult](data)
}

// WaitUntilIdle polls Status every PollInterval until the agent reports
// idle or the timeout elapses. It returns true when the agent became idle,
// false on timeout. The timeout is the only bound; callers needing
// cancellation should run this on an interruptible goroutine.
func (c *Client) WaitUntilIdle(timeout time.Duration) (bool, error) {
	const op = "wait until idle"
	if err := c.checkOpen(op); err != nil {
		return false, err
	}

	deadline := c.clock.Now().Add(timeout)
	for {
		status, err := c.Status()
		if err != nil {
			return false, err
		}
		if status.IsIdle() {
			return true, nil
		}
		if !c.clock.Now().Before(deadline) {
			return false, nil
		}
		c.clock.Sleep(PollInterval)
	}
}

// Chat sends prompt as a user message, immediately fetches the history, and
// returns the content of the newest message, or "" when the history is
// empty. It does not wait for the agent to settle; compose WaitUntilIdle
// first when a settled answer is required.
func (c *Client) Chat(prompt string) (string, error) {
	if _, err := c.SendMessage(prompt, MessageKindUser); err != nil {
		return "", err
	}
	conv, err := c.Messages()
	if err != nil {
		return "", err
	}
	if last := conv.Last(); last != nil {
		return last.Content, nil
	}
	return "", nil
}

// Health probes the server's liveness endpoint.
func (c *Client) Health() error {
	const op = "health check"
	if err := c.checkOpen(op); err != nil {
		return err
	}
	_, err := doRequest(context.Background(), c.httpc, op, c.apiKey, http.MethodGet, c.baseURL+"/health", nil, "")
	return err
}
