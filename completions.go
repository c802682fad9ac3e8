package agentapi

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultPreferredModel is the model a routing rule falls back to when no
// explicit server-side rule exists for an agent.
const DefaultPreferredModel = "claude-3-5-sonnet-20241022"

var ruleValidator = validator.New()

// RoutingRule describes server-side routing policy for one agent. The
// MaxRetries field documents server behavior; the client itself never
// retries.
type RoutingRule struct {
	Agent          string   `json:"agent" validate:"required"`
	PreferredModel string   `json:"preferred_model" validate:"required"`
	FallbackModels []string `json:"fallback_models"`
	MaxRetries     int      `json:"max_retries" validate:"gte=0"`
	TimeoutSeconds int      `json:"timeout_seconds" validate:"gte=0"`
}

// DefaultRoutingRule returns the rule assumed for an agent with no explicit
// server-side configuration.
func DefaultRoutingRule(agent string) RoutingRule {
	return RoutingRule{
		Agent:          agent,
		PreferredModel: DefaultPreferredModel,
		FallbackModels: []string{},
		MaxRetries:     3,
		TimeoutSeconds: 30,
	}
}

// Validate checks the rule's field constraints.
func (r RoutingRule) Validate() error {
	if err := ruleValidator.Struct(r); err != nil {
		return fmt.Errorf("agentapi: invalid routing rule: %w", err)
	}
	return nil
}

// AgentSession is one active session as reported by the admin surface.
// Started is a unix-epoch timestamp in seconds.
type AgentSession struct {
	ID       string         `json:"id"`
	Agent    string         `json:"agent"`
	Started  int64          `json:"started"`
	Models   []string       `json:"models"`
	Metadata map[string]any `json:"metadata"`
}

// Choice is one candidate answer in a chat completion response.
type Choice struct {
	Message openai.ChatCompletionMessage `json:"message"`
}

// ChatResponse is the typed result of a chat completion.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []Choice     `json:"choices"`
	Usage   openai.Usage `json:"usage"`
}

// Text returns the first choice's message content, or "" when the response
// carries no choices.
func (r ChatResponse) Text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// CompletionsClient is the second SDK flavor: it covers the OpenAI-style
// completion endpoint and the administrative rule and session surface. Like
// Client it holds one transport, one timeout, and one credential.
type CompletionsClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	closed  atomic.Bool
}

// NewCompletionsClient constructs a CompletionsClient for the given base
// URL. An empty baseURL selects DefaultBaseURL.
func NewCompletionsClient(baseURL string, opts ...Option) *CompletionsClient {
	o := buildOptions(opts)
	return &CompletionsClient{
		baseURL: normalizeBaseURL(baseURL),
		apiKey:  o.apiKey,
		httpc:   o.httpc,
	}
}

// Close releases the transport. Any use of the client afterwards fails with
// *ClosedClientError.
func (c *CompletionsClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.httpc.CloseIdleConnections()
	return nil
}

func (c *CompletionsClient) checkOpen(op string) error {
	if c.closed.Load() {
		return &ClosedClientError{Op: op}
	}
	return nil
}

type completionRequest struct {
	Agent    string                         `json:"agent"`
	Model    string                         `json:"model,omitempty"`
	Messages []openai.ChatCompletionMessage `json:"messages"`
}

// CreateChatCompletion posts messages to the completion endpoint on behalf
// of agent. An empty model leaves model selection to the server's routing
// rules.
func (c *CompletionsClient) CreateChatCompletion(ctx context.Context, agent string, messages []openai.ChatCompletionMessage, model string) (ChatResponse, error) {
	const op = "create chat completion"
	if err := c.checkOpen(op); err != nil {
		return ChatResponse{}, err
	}
	payload := completionRequest{Agent: agent, Model: model, Messages: messages}
	data, err := doJSON(ctx, c.httpc, op, c.apiKey, http.MethodPost, c.baseURL+"/v1/chat/completions", payload)
	if err != nil {
		return ChatResponse{}, err
	}
	return decodeJSON[ChatResponse](data)
}

// Complete sends prompt as a single user message for the default agent and
// returns the response text.
func (c *CompletionsClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, "default", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, "")
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

type rulesResponse struct {
	Rules []RoutingRule `json:"rules"`
}

// ListRoutingRules fetches every explicitly configured routing rule.
func (c *CompletionsClient) ListRoutingRules(ctx context.Context) ([]RoutingRule, error) {
	const op = "list routing rules"
	if err := c.checkOpen(op); err != nil {
		return nil, err
	}
	data, err := doRequest(ctx, c.httpc, op, c.apiKey, http.MethodGet, c.baseURL+"/admin/rules", nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[rulesResponse](data)
	if err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// GetRoutingRule returns the rule configured for agent. When no server-side
// rule exists it returns DefaultRoutingRule(agent), not an error; presence
// therefore does not imply an explicit configuration was set.
func (c *CompletionsClient) GetRoutingRule(ctx context.Context, agent string) (RoutingRule, error) {
	rules, err := c.ListRoutingRules(ctx)
	if err != nil {
		return RoutingRule{}, err
	}
	for _, rule := range rules {
		if rule.Agent == agent {
			return rule, nil
		}
	}
	return DefaultRoutingRule(agent), nil
}

// SetRoutingRule stores rule on the server, keyed by its agent id. The rule
// is validated locally first.
func (c *CompletionsClient) SetRoutingRule(ctx context.Context, rule RoutingRule) error {
	const op = "set routing rule"
	if err := c.checkOpen(op); err != nil {
		return err
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := doJSON(ctx, c.httpc, op, c.apiKey, http.MethodPost, c.baseURL+"/admin/rules", rule)
	return err
}

type sessionsResponse struct {
	Sessions []AgentSession `json:"sessions"`
}

// ListSessions fetches the active sessions in server-reported order.
func (c *CompletionsClient) ListSessions(ctx context.Context) ([]AgentSession, error) {
	const op = "list sessions"
	if err := c.checkOpen(op); err != nil {
		return nil, err
	}
	data, err := doRequest(ctx, c.httpc, op, c.apiKey, http.MethodGet, c.baseURL+"/admin/sessions", nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := decodeJSON[sessionsResponse](data)
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Health probes the server's liveness endpoint.
func (c *CompletionsClient) Health(ctx context.Context) error {
	const op = "health check"
	if err := c.checkOpen(op); err != nil {
		return err
	}
	_, err := doRequest(ctx, c.httpc, op, c.apiKey, http.MethodGet, c.baseURL+"/health", nil, "")
	return err
}
