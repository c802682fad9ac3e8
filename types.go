package agentapi

import (
	"strings"
	"time"
)

// MessageKind selects how the server treats a sent message.
type MessageKind string

const (
	// MessageKindUser is persisted into the conversation history and handed
	// to the agent for processing.
	MessageKindUser MessageKind = "user"
	// MessageKindRaw is forwarded as raw input and never persisted.
	MessageKindRaw MessageKind = "raw"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// AgentStatus is the server-reported execution state of the agent.
type AgentStatus string

const (
	AgentStatusRunning AgentStatus = "running"
	AgentStatusStable  AgentStatus = "stable"
)

// AgentType identifies which agent program the server is driving.
type AgentType string

const (
	AgentTypeClaude AgentType = "claude"
	AgentTypeGoose  AgentType = "goose"
	AgentTypeAider  AgentType = "aider"
	AgentTypeGemini AgentType = "gemini"
	AgentTypeAmp    AgentType = "amp"
	AgentTypeCodex  AgentType = "codex"
)

// Message is a single entry in the agent conversation. Ids are assigned by
// the server and stable across fetches.
type Message struct {
	ID      int
	Content string
	Role    Role
	Time    time.Time
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool { return m.Role == RoleUser }

// IsAgent reports whether the message was authored by the agent.
func (m Message) IsAgent() bool { return m.Role == RoleAgent }

// Lines splits the message content on newlines.
func (m Message) Lines() []string { return strings.Split(m.Content, "\n") }

// Conversation is the ordered message history as reported by the server.
// Order is the server's chronological order and is never re-sorted here.
type Conversation struct {
	Messages []Message
}

// Last returns the most recent message, or nil when the history is empty.
func (c Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// UserMessages returns the messages authored by the user, in order.
func (c Conversation) UserMessages() []Message {
	return c.filter(Message.IsUser)
}

// AgentMessages returns the messages authored by the agent, in order.
func (c Conversation) AgentMessages() []Message {
	return c.filter(Message.IsAgent)
}

func (c Conversation) filter(keep func(Message) bool) []Message {
	var out []Message
	for _, m := range c.Messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// Status is the agent state returned by the status endpoint.
type Status struct {
	Status    AgentStatus `json:"status"`
	AgentType AgentType   `json:"agent_type"`
}

// IsRunning reports whether the agent is actively processing.
func (s Status) IsRunning() bool { return s.Status == AgentStatusRunning }

// IsIdle reports whether the agent is stable and ready for input.
func (s Status) IsIdle() bool { return s.Status == AgentStatusStable }

// SendResult is the acknowledgement for a sent message.
type SendResult struct {
	OK bool `json:"ok"`
}

// UploadResult describes a completed file upload.
type UploadResult struct {
	OK       bool   `json:"ok"`
	FilePath string `json:"file_path"`
}
