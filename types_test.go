package agentapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	openai "github.com/sashabaranov/go-openai"
)

func TestMessageDerivations(t *testing.T) {
	user := Message{ID: 1, Content: "first\nsecond", Role: RoleUser, Time: time.Now()}
	agent := Message{ID: 2, Content: "reply", Role: RoleAgent, Time: time.Now()}

	assert.True(t, user.IsUser())
	assert.False(t, user.IsAgent())
	assert.True(t, agent.IsAgent())
	assert.False(t, agent.IsUser())
	assert.Equal(t, []string{"first", "second"}, user.Lines())
}

func TestConversation(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var conv Conversation
		assert.Nil(t, conv.Last())
		assert.Empty(t, conv.UserMessages())
		assert.Empty(t, conv.AgentMessages())
	})

	t.Run("ordered", func(t *testing.T) {
		conv := Conversation{Messages: []Message{
			{ID: 0, Content: "hi", Role: RoleUser},
			{ID: 1, Content: "hello", Role: RoleAgent},
			{ID: 2, Content: "bye", Role: RoleUser},
		}}
		assert.Equal(t, 2, conv.Last().ID)
		assert.Len(t, conv.UserMessages(), 2)
		assert.Len(t, conv.AgentMessages(), 1)
		assert.Equal(t, "hello", conv.AgentMessages()[0].Content)
	})
}

func TestStatusDerivations(t *testing.T) {
	running := Status{Status: AgentStatusRunning, AgentType: AgentTypeClaude}
	stable := Status{Status: AgentStatusStable, AgentType: AgentTypeGoose}

	assert.True(t, running.IsRunning())
	assert.False(t, running.IsIdle())
	assert.True(t, stable.IsIdle())
	assert.False(t, stable.IsRunning())
}

func TestChatResponseText(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		assert.Equal(t, "", ChatResponse{}.Text())
	})

	t.Run("first choice", func(t *testing.T) {
		resp := ChatResponse{Choices: []Choice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "one"}},
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "two"}},
		}}
		assert.Equal(t, "one", resp.Text())
	})
}

func TestDefaultRoutingRule(t *testing.T) {
	rule := DefaultRoutingRule("reviewer")
	assert.Equal(t, "reviewer", rule.Agent)
	assert.Equal(t, "claude-3-5-sonnet-20241022", rule.PreferredModel)
	assert.Empty(t, rule.FallbackModels)
	assert.Equal(t, 3, rule.MaxRetries)
	assert.Equal(t, 30, rule.TimeoutSeconds)
}

func TestRoutingRuleValidate(t *testing.T) {
	assert.NoError(t, DefaultRoutingRule("a").Validate())

	assert.Error(t, RoutingRule{PreferredModel: "m"}.Validate(), "agent is required")
	assert.Error(t, RoutingRule{Agent: "a"}.Validate(), "preferred model is required")
	assert.Error(t, RoutingRule{Agent: "a", PreferredModel: "m", MaxRetries: -1}.Validate())
}
