package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/memtrail/memtrail/pkg/conversation"
)

// RedisStore persists each session log as a Redis list, one JSON turn per
// element. RPUSH keeps append order; LRANGE 0 -1 loads the full log.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("sessionstore: redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func redisKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// Append pushes turns onto the session list.
func (s *RedisStore) Append(ctx context.Context, sessionID string, turns ...conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("sessionstore: marshal turn: %w", err)
		}
		values = append(values, data)
	}
	if err := s.client.RPush(ctx, redisKey(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("sessionstore: append: %w", err)
	}
	return nil
}

// Load returns the session log in append order.
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	raw, err := s.client.LRange(ctx, redisKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("sessionstore: load: %w", err)
	}
	turns := make([]conversation.Turn, 0, len(raw))
	for _, item := range raw {
		var turn conversation.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("sessionstore: decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
