// Package presence mirrors agent seat state into Redis so external
// dashboards can poll it without holding a gateway connection. The
// mirror is advisory: writes are fire-and-forget and a nil *Store is a
// valid no-op when Redis is not configured.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callforge/switchboard/internal/domain"
	"github.com/callforge/switchboard/internal/logging"
)

// keyTTL bounds how long a stale entry survives a crashed coordinator.
const keyTTL = 10 * time.Minute

// Store writes agent state keys of the form presence:agent:<id>.
type Store struct {
	client *redis.Client
	log    *logging.Logger
}

// Open connects to Redis and validates connectivity with a PING.
func Open(ctx context.Context, addr, password string, db int, log *logging.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Sub("presence").Info().Str("addr", addr).Msg("presence store connected")
	return &Store{client: client, log: log.Sub("presence")}, nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.client.Close()
}

func agentKey(agentID string) string {
	return "presence:agent:" + agentID
}

// SetAgentState records the agent's current state with a TTL. Errors are
// logged only; presence never gates a call transition.
func (s *Store) SetAgentState(agentID string, state domain.AgentState) {
	if s == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Set(ctx, agentKey(agentID), string(state), keyTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("agentId", agentID).Msg("presence write failed")
		}
	}()
}

// ClearAgent removes the agent's presence key, typically on logout.
func (s *Store) ClearAgent(agentID string) {
	if s == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Del(ctx, agentKey(agentID)).Err(); err != nil {
			s.log.Warn().Err(err).Str("agentId", agentID).Msg("presence clear failed")
		}
	}()
}

// AgentState reads an agent's mirrored state. Returns empty when unset.
func (s *Store) AgentState(ctx context.Context, agentID string) (domain.AgentState, error) {
	if s == nil {
		return "", nil
	}
	val, err := s.client.Get(ctx, agentKey(agentID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return domain.AgentState(val), nil
}
