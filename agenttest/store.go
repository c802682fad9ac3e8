// Package agenttest provides an in-memory agentapi server for SDK tests and
// local development. It reproduces the wire contract of the real service,
// including the per-endpoint body envelope quirk, bearer authentication,
// and the administrative rule and session surface.
package agenttest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	agentapi "github.com/coder/agentapi-sdk-go"
)

// RuleStore persists routing rules keyed by agent id.
type RuleStore interface {
	Get(ctx context.Context, agent string) (agentapi.RoutingRule, bool, error)
	Set(ctx context.Context, rule agentapi.RoutingRule) error
	List(ctx context.Context) ([]agentapi.RoutingRule, error)
}

// SessionStore tracks active agent sessions.
type SessionStore interface {
	GetOrCreate(ctx context.Context, agent string, model string) (agentapi.AgentSession, error)
	List(ctx context.Context) ([]agentapi.AgentSession, error)
}

// MemoryRuleStore is a RuleStore held in process memory.
type MemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]agentapi.RoutingRule
}

// NewMemoryRuleStore constructs an empty MemoryRuleStore.
func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{rules: make(map[string]agentapi.RoutingRule)}
}

func (s *MemoryRuleStore) Get(_ context.Context, agent string) (agentapi.RoutingRule, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[agent]
	return rule, ok, nil
}

func (s *MemoryRuleStore) Set(_ context.Context, rule agentapi.RoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.Agent] = rule
	return nil
}

func (s *MemoryRuleStore) List(_ context.Context) ([]agentapi.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]agentapi.RoutingRule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Agent < rules[j].Agent })
	return rules, nil
}

// MemorySessionStore is a SessionStore held in process memory. Sessions
// older than the reuse window are not reused.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]agentapi.AgentSession
	now      func() time.Time
}

const sessionReuseWindow = time.Hour

// NewMemorySessionStore constructs an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]agentapi.AgentSession),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) GetOrCreate(_ context.Context, agent string, model string) (agentapi.AgentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-sessionReuseWindow).Unix()
	for _, sess := range s.sessions {
		if sess.Agent == agent && sess.Started >= cutoff {
			return sess, nil
		}
	}

	sess := agentapi.AgentSession{
		ID:       "sess_" + uuid.NewString(),
		Agent:    agent,
		Started:  s.now().Unix(),
		Models:   []string{model},
		Metadata: map[string]any{},
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *MemorySessionStore) List(_ context.Context) ([]agentapi.AgentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]agentapi.AgentSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Started != sessions[j].Started {
			return sessions[i].Started < sessions[j].Started
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}
