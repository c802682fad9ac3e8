package agenttest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	agentapi "github.com/coder/agentapi-sdk-go"
)

const defaultMaxBodyBytes = int64(10 << 20) // 10 MiB

// Responder produces the agent's reply to a user message.
type Responder func(content string) string

// EchoResponder replies with the user's own content.
func EchoResponder(content string) string { return content }

// Server is an in-memory agentapi server. Zero or more clients may talk to
// it through Handler; test code drives the agent side with SetStatus and
// AddAgentMessage.
type Server struct {
	apiKey    string
	agentType agentapi.AgentType
	logger    *slog.Logger
	responder Responder
	rules     RuleStore
	sessions  SessionStore
	metrics   *metrics
	router    chi.Router

	mu       sync.Mutex
	status   agentapi.AgentStatus
	messages []agentapi.Message
	nextID   int
	uploads  map[string][]byte
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAPIKey requires the given bearer token on every request. Empty
// disables authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithAgentType sets the agent kind reported by the status endpoint.
func WithAgentType(t agentapi.AgentType) ServerOption {
	return func(s *Server) { s.agentType = t }
}

// WithLogger sets the structured logger. Defaults to a discarding logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithResponder sets the reply generator applied to incoming user messages.
// A nil responder leaves replies entirely to AddAgentMessage.
func WithResponder(r Responder) ServerOption {
	return func(s *Server) { s.responder = r }
}

// WithRuleStore overrides the routing-rule store. Defaults to memory.
func WithRuleStore(store RuleStore) ServerOption {
	return func(s *Server) { s.rules = store }
}

// WithSessionStore overrides the session store. Defaults to memory.
func WithSessionStore(store SessionStore) ServerOption {
	return func(s *Server) { s.sessions = store }
}

// WithStatus sets the initial agent status. Defaults to stable.
func WithStatus(status agentapi.AgentStatus) ServerOption {
	return func(s *Server) { s.status = status }
}

// NewServer constructs a Server with the given options.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		agentType: agentapi.AgentTypeClaude,
		logger:    slog.New(slog.DiscardHandler),
		status:    agentapi.AgentStatusStable,
		uploads:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rules == nil {
		s.rules = NewMemoryRuleStore()
	}
	if s.sessions == nil {
		s.sessions = NewMemorySessionStore()
	}
	s.metrics = newMetrics()

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(logging(s.logger))
	r.Use(recovery(s.logger))
	r.Use(s.metrics.middleware)
	r.Use(bodyLimit(defaultMaxBodyBytes))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.metrics.handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(auth(s.apiKey))

		r.Post("/message", s.handleCreateMessage)
		r.Get("/status", s.handleStatus)
		r.Get("/messages", s.handleMessages)
		r.Post("/upload", s.handleUpload)
		r.Post("/v1/chat/completions", s.handleChatCompletions)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/rules", s.handleListRules)
			r.Post("/rules", s.handleSetRule)
			r.Get("/sessions", s.handleListSessions)
		})
	})

	s.router = r
	return s
}

// Handler returns the server's HTTP handler, ready for httptest.NewServer
// or an *http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// SetStatus changes the agent status reported to clients.
func (s *Server) SetStatus(status agentapi.AgentStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// AddAgentMessage appends an agent-authored message to the history and
// returns its assigned id.
func (s *Server) AddAgentMessage(content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(content, agentapi.RoleAgent)
}

// Snapshot returns a copy of the current conversation history.
func (s *Server) Snapshot() []agentapi.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agentapi.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Upload returns the stored content of an uploaded file by base name.
func (s *Server) Upload(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.uploads[name]
	return data, ok
}

func (s *Server) appendLocked(content string, role agentapi.Role) int {
	id := s.nextID
	s.nextID++
	s.messages = append(s.messages, agentapi.Message{
		ID:      id,
		Content: content,
		Role:    role,
		Time:    time.Now().UTC(),
	})
	return id
}

type envelope struct {
	Body any `json:"body"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeEnveloped wraps payload under a "body" key, matching the quirk of
// the core endpoints.
func writeEnveloped(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, envelope{Body: payload})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	writeEnveloped(w, http.StatusOK, agentapi.Status{
		Status:    status,
		AgentType: s.agentType,
	})
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	switch agentapi.MessageKind(req.Type) {
	case agentapi.MessageKindUser:
		s.mu.Lock()
		s.appendLocked(req.Content, agentapi.RoleUser)
		if s.responder != nil {
			s.appendLocked(s.responder(req.Content), agentapi.RoleAgent)
		}
		s.mu.Unlock()
	case agentapi.MessageKindRaw:
		// Raw input reaches the agent's terminal and is never persisted.
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("unknown message type %q", req.Type),
		})
		return
	}

	writeEnveloped(w, http.StatusOK, agentapi.SendResult{OK: true})
}

type wireMessage struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	Role    string `json:"role"`
	Time    string `json:"time"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	wire := make([]wireMessage, len(s.messages))
	for i, m := range s.messages {
		wire[i] = wireMessage{
			ID:      m.ID,
			Content: m.Content,
			Role:    string(m.Role),
			Time:    m.Time.UTC().Format("2006-01-02T15:04:05.999999999Z"),
		}
	}
	s.mu.Unlock()

	writeEnveloped(w, http.StatusOK, map[string]any{"messages": wire})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	name := header.Filename
	s.mu.Lock()
	s.uploads[name] = content
	s.mu.Unlock()

	writeEnveloped(w, http.StatusOK, agentapi.UploadResult{
		OK:       true,
		FilePath: "/uploads/" + name,
	})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Agent    string `json:"agent"`
		Model    string `json:"model"`
		Prompt   string `json:"prompt"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	agent := req.Agent
	if agent == "" {
		agent = "default"
	}

	model := req.Model
	if model == "" {
		rule, ok, err := s.rules.Get(r.Context(), agent)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if !ok {
			rule = agentapi.DefaultRoutingRule(agent)
		}
		model = rule.PreferredModel
	}

	if _, err := s.sessions.GetOrCreate(r.Context(), agent, model); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	prompt := req.Prompt
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}

	reply := prompt
	if s.responder != nil {
		reply = s.responder(prompt)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":    "chatcmpl-" + uuid.NewString(),
		"model": model,
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": reply}},
		},
		"usage": map[string]int{
			"prompt_tokens":     tokenEstimate(prompt),
			"completion_tokens": tokenEstimate(reply),
			"total_tokens":      tokenEstimate(prompt) + tokenEstimate(reply),
		},
	})
}

func tokenEstimate(s string) int {
	return len(strings.Fields(s))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.rules.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rules == nil {
		rules = []agentapi.RoutingRule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleSetRule(w http.ResponseWriter, r *http.Request) {
	var rule agentapi.RoutingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := rule.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.rules.Set(r.Context(), rule); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []agentapi.AgentSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
