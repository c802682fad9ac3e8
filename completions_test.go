package agentapi_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	openai "github.com/sashabaranov/go-openai"

	agentapi "github.com/coder/agentapi-sdk-go"
	"github.com/coder/agentapi-sdk-go/agenttest"
)

func TestCreateChatCompletion(t *testing.T) {
	_, url := startServer(t, agenttest.WithResponder(strings.ToUpper))
	client := agentapi.NewCompletionsClient(url)
	defer client.Close()

	resp, err := client.CreateChatCompletion(context.Background(), "reviewer", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "review this"},
	}, "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, agentapi.DefaultPreferredModel, resp.Model, "model comes from the default routing rule")
	assert.Equal(t, "REVIEW THIS", resp.Text())
	assert.Equal(t, 2, resp.Usage.PromptTokens)
}

func TestCreateChatCompletionModelOverride(t *testing.T) {
	_, url := startServer(t)
	client := agentapi.NewCompletionsClient(url)
	defer client.Close()

	resp, err := client.CreateChatCompletion(context.Background(), "reviewer", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
	}, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)
}

func TestComplete(t *testing.T) {
	_, url := startServer(t, agenttest.WithResponder(func(string) string { return "done" }))
	client := agentapi.NewCompletionsClient(url)
	defer client.Close()

	text, err := client.Complete(context.Background(), "do the thing")
	require.NoError(t, err)
	assert.Equal(t, "done", text)
}

func TestGetRoutingRuleDefaultsWhenAbsent(t *testing.T) {
	_, url := startServer(t)
	client := agentapi.NewCompletionsClient(url)
	defer client.Close()

	rule, err := client.GetRoutingRule(context.Background(), "ghost")
	require.NoError(t, err)

	assert.Equal(t, "ghost", rule.Agent)
	assert.Equal(t, "claude-3-5-sonnet-20241022", rule.PreferredModel)
	assert.Empty(t, rule.FallbackModels)
	assert.Equal(t, 3, rule.MaxRetries)
	assert.Equal(t, 30, rule.TimeoutSeconds)
}

func TestRoutingRuleRoundTrip(t *testing.T) {
	_, url := startServer(t)
	client := agentapi.NewCompletionsClient(url)
	defer client.Close()

	ctx := context.Background()
	want := agentapi.RoutingRule{
		Agent:          "reviewer",
		PreferredModel: "claude-3-5-sonnet-20241022",
		FallbackModels: []string{"gpt-4o", "gemini-1.5-pro"},
		MaxRetries:     5,
		TimeoutSeconds: 45,
	}
	require.NoError(t, client.SetRoutingRule(ctx, want))

	got, err := client.GetRoutingRule(ctx, "reviewer")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	rules, err := client.ListRoutingRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, want, rules[0])
}

func TestSetRoutingRuleValidatesLocally(t *testing.T) {
	_, url := startServer(t)
	transport := &countingTransport{base: http.DefaultTransport}
	client := agentapi.NewCompletionsClient(url, agentapi.WithHTTPClient(&http.Client{Transport: transport}))
	defer client.Close()

	err := client.SetRoutingRule(context.Background(), agentapi.RoutingRule{PreferredModel: "m"})
	require.Error(t, err)
	assert.Zero(t, transport.requests(), "invalid rules are rejected before reaching the wire")
}

func TestListSessions(t *testing.T) {
	_, url := startServer(t)
	client := agentapi.NewCompletionsClient(url)
	defer client.Close()

	ctx := context.Background()
	sessions, err := client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = client.CreateChatCompletion(ctx, "reviewer", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
	}, "")
	require.NoError(t, err)

	sessions, err = client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "reviewer", sessions[0].Agent)
	assert.True(t, strings.HasPrefix(sessions[0].ID, "sess_"))
	assert.NotZero(t, sessions[0].Started)
}

func TestCompletionsClientClosed(t *testing.T) {
	_, url := startServer(t)
	client := agentapi.NewCompletionsClient(url)
	require.NoError(t, client.Close())

	var closedErr *agentapi.ClosedClientError
	_, err := client.ListRoutingRules(context.Background())
	assert.ErrorAs(t, err, &closedErr)
	_, err = client.CreateChatCompletion(context.Background(), "a", nil, "")
	assert.ErrorAs(t, err, &closedErr)
	_, err = client.ListSessions(context.Background())
	assert.ErrorAs(t, err, &closedErr)
	assert.ErrorAs(t, client.Health(context.Background()), &closedErr)
}
