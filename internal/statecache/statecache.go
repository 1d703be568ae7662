// Package statecache mirrors position management state into Redis so
// operational tooling can inspect it. When Redis is unavailable it falls back
// to an in-memory cache so the trading loop continues without interruption.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"forex-trading-engine/internal/manager"
)

const (
	// keyPrefix namespaces management-state keys: mgmt:state:{ticket}.
	keyPrefix = "mgmt:state"

	// stateTTL bounds how long stale entries survive a crashed purge.
	stateTTL = 24 * time.Hour
)

// Cache stores management state in Redis with an in-memory fallback.
type Cache struct {
	client         *redis.Client
	logger         zerolog.Logger
	mu             sync.RWMutex
	fallback       map[int64]*manager.ManagementState
	redisAvailable atomic.Bool
}

// New creates a cache. A nil client puts the cache in memory-only mode.
func New(client *redis.Client, logger zerolog.Logger) *Cache {
	c := &Cache{
		client:   client,
		logger:   logger.With().Str("component", "statecache").Logger(),
		fallback: make(map[int64]*manager.ManagementState),
	}
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err == nil {
			c.redisAvailable.Store(true)
		} else {
			c.logger.Warn().Err(err).Msg("redis unavailable, using in-memory fallback")
		}
	}
	return c
}

var _ manager.StateSink = (*Cache)(nil)

func stateKey(ticket int64) string {
	return fmt.Sprintf("%s:%d", keyPrefix, ticket)
}

// SaveManagementState writes the state snapshot for one ticket.
func (c *Cache) SaveManagementState(ctx context.Context, state *manager.ManagementState) error {
	copied := *state
	c.mu.Lock()
	c.fallback[state.Ticket] = &copied
	c.mu.Unlock()

	if c.client == nil || !c.redisAvailable.Load() {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state for ticket %d: %w", state.Ticket, err)
	}
	if err := c.client.Set(ctx, stateKey(state.Ticket), data, stateTTL).Err(); err != nil {
		c.redisAvailable.Store(false)
		c.logger.Warn().Err(err).Msg("redis write failed, falling back to memory")
		return nil
	}
	return nil
}

// DeleteManagementState removes the state for a closed ticket.
func (c *Cache) DeleteManagementState(ctx context.Context, ticket int64) error {
	c.mu.Lock()
	delete(c.fallback, ticket)
	c.mu.Unlock()

	if c.client == nil || !c.redisAvailable.Load() {
		return nil
	}
	if err := c.client.Del(ctx, stateKey(ticket)).Err(); err != nil {
		c.redisAvailable.Store(false)
		c.logger.Warn().Err(err).Msg("redis delete failed, falling back to memory")
	}
	return nil
}

// GetManagementState loads the state for one ticket, preferring Redis.
func (c *Cache) GetManagementState(ctx context.Context, ticket int64) (*manager.ManagementState, bool) {
	if c.client != nil && c.redisAvailable.Load() {
		data, err := c.client.Get(ctx, stateKey(ticket)).Bytes()
		if err == nil {
			var state manager.ManagementState
			if jsonErr := json.Unmarshal(data, &state); jsonErr == nil {
				return &state, true
			}
		} else if err != redis.Nil {
			c.redisAvailable.Store(false)
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.fallback[ticket]
	if !ok {
		return nil, false
	}
	copied := *state
	return &copied, true
}

// ListManagementStates returns every cached state from the fallback map. The
// fallback is kept in lockstep with Redis writes, so it is authoritative for
// the current process.
func (c *Cache) ListManagementStates() []manager.ManagementState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]manager.ManagementState, 0, len(c.fallback))
	for _, state := range c.fallback {
		out = append(out, *state)
	}
	return out
}
