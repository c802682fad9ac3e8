package agenttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	agentapi "github.com/coder/agentapi-sdk-go"
)

const (
	redisRulesKey    = "agentapi:rules"
	redisSessionsKey = "agentapi:sessions"
)

// RedisRuleStore persists routing rules in a redis hash so a dev server
// survives restarts.
type RedisRuleStore struct {
	client *redis.Client
}

// NewRedisRuleStore constructs a RedisRuleStore on an existing client.
func NewRedisRuleStore(client *redis.Client) *RedisRuleStore {
	return &RedisRuleStore{client: client}
}

func (s *RedisRuleStore) Get(ctx context.Context, agent string) (agentapi.RoutingRule, bool, error) {
	raw, err := s.client.HGet(ctx, redisRulesKey, agent).Result()
	if err == redis.Nil {
		return agentapi.RoutingRule{}, false, nil
	}
	if err != nil {
		return agentapi.RoutingRule{}, false, fmt.Errorf("redis rule get: %w", err)
	}
	var rule agentapi.RoutingRule
	if err := json.Unmarshal([]byte(raw), &rule); err != nil {
		return agentapi.RoutingRule{}, false, fmt.Errorf("redis rule decode: %w", err)
	}
	return rule, true, nil
}

func (s *RedisRuleStore) Set(ctx context.Context, rule agentapi.RoutingRule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("redis rule encode: %w", err)
	}
	if err := s.client.HSet(ctx, redisRulesKey, rule.Agent, data).Err(); err != nil {
		return fmt.Errorf("redis rule set: %w", err)
	}
	return nil
}

func (s *RedisRuleStore) List(ctx context.Context) ([]agentapi.RoutingRule, error) {
	raw, err := s.client.HGetAll(ctx, redisRulesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rule list: %w", err)
	}
	agents := make([]string, 0, len(raw))
	for agent := range raw {
		agents = append(agents, agent)
	}
	sort.Strings(agents)

	rules := make([]agentapi.RoutingRule, 0, len(agents))
	for _, agent := range agents {
		var rule agentapi.RoutingRule
		if err := json.Unmarshal([]byte(raw[agent]), &rule); err != nil {
			return nil, fmt.Errorf("redis rule decode: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// RedisSessionStore persists sessions in a redis hash.
type RedisSessionStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionStore constructs a RedisSessionStore on an existing client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: time.Now}
}

func (s *RedisSessionStore) GetOrCreate(ctx context.Context, agent string, model string) (agentapi.AgentSession, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return agentapi.AgentSession{}, err
	}
	cutoff := s.now().Add(-sessionReuseWindow).Unix()
	for _, sess := range sessions {
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
	data, err := json.Marshal(sess)
	if err != nil {
		return agentapi.AgentSession{}, fmt.Errorf("redis session encode: %w", err)
	}
	if err := s.client.HSet(ctx, redisSessionsKey, sess.ID, data).Err(); err != nil {
		return agentapi.AgentSession{}, fmt.Errorf("redis session set: %w", err)
	}
	return sess, nil
}

func (s *RedisSessionStore) List(ctx context.Context) ([]agentapi.AgentSession, error) {
	raw, err := s.client.HGetAll(ctx, redisSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session list: %w", err)
	}
	sessions := make([]agentapi.AgentSession, 0, len(raw))
	for _, value := range raw {
		var sess agentapi.AgentSession
		if err := json.Unmarshal([]byte(value), &sess); err != nil {
			return nil, fmt.Errorf("redis session decode: %w", err)
		}
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
