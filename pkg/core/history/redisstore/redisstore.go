// Package redisstore is a Redis-backed HistoryStore for deployments where
// conversation history must survive a gateway restart.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calleq/calleq/pkg/core"
	"github.com/calleq/calleq/pkg/core/types"
)

const (
	historyKeyPrefix = "calleq:history:"

	// Sessions that are never closed still expire from Redis.
	defaultTTL = 24 * time.Hour
)

// Store persists each session's turns as a Redis list of JSON documents.
// Append order is the list order, which preserves the append-only contract.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// New creates a Redis-backed history store.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Store) key(sessionID string) string {
	return historyKeyPrefix + sessionID
}

// Create reserves the session's history list. A single sentinel-free list
// cannot represent "exists but empty", so existence is a separate marker key.
func (s *Store) Create(ctx context.Context, sessionID string) error {
	if err := s.client.Set(ctx, s.key(sessionID)+":active", "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("reserve session history: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(sessionID)+":active").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Append adds one turn. Per-session turn sequencing is the orchestrator's
// job, so the LLen/RPush pair here does not race with itself.
func (s *Store) Append(ctx context.Context, sessionID string, role types.Role, text string) (types.Turn, error) {
	ok, err := s.exists(ctx, sessionID)
	if err != nil {
		return types.Turn{}, fmt.Errorf("check session: %w", err)
	}
	if !ok {
		return types.Turn{}, core.NewSessionNotFoundError(sessionID)
	}

	key := s.key(sessionID)
	length, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return types.Turn{}, fmt.Errorf("history length: %w", err)
	}

	turn := types.Turn{
		Role:      role,
		Text:      text,
		Ordinal:   int(length),
		Timestamp: s.now().UTC(),
	}
	doc, err := json.Marshal(turn)
	if err != nil {
		return types.Turn{}, fmt.Errorf("encode turn: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, doc)
	pipe.Expire(ctx, key, s.ttl)
	pipe.Expire(ctx, key+":active", s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.Turn{}, fmt.Errorf("append turn: %w", err)
	}
	return turn, nil
}

func (s *Store) Recent(ctx context.Context, sessionID string, k int) ([]types.Turn, error) {
	if k <= 0 {
		ok, err := s.exists(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, core.NewSessionNotFoundError(sessionID)
		}
		return []types.Turn{}, nil
	}
	return s.rangeTurns(ctx, sessionID, int64(-k), -1)
}

func (s *Store) All(ctx context.Context, sessionID string) ([]types.Turn, error) {
	return s.rangeTurns(ctx, sessionID, 0, -1)
}

func (s *Store) rangeTurns(ctx context.Context, sessionID string, start, stop int64) ([]types.Turn, error) {
	ok, err := s.exists(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !ok {
		return nil, core.NewSessionNotFoundError(sessionID)
	}

	raw, err := s.client.LRange(ctx, s.key(sessionID), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	turns := make([]types.Turn, 0, len(raw))
	for _, doc := range raw {
		var turn types.Turn
		if err := json.Unmarshal([]byte(doc), &turn); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func (s *Store) Drop(ctx context.Context, sessionID string) error {
	key := s.key(sessionID)
	if err := s.client.Del(ctx, key, key+":active").Err(); err != nil {
		return fmt.Errorf("drop session history: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
