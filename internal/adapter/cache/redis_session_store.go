package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentigee/relay-auth/internal/domain/oauth"
	"github.com/sentigee/relay-auth/internal/repository"
)

const sessionKeyPrefix = "relay:authurl:"

// RedisSessionStore implements SessionStore backed by Redis, so the pending
// authorization URL survives process restarts during the setup flow.
type RedisSessionStore struct {
	client redis.UniversalClient
}

var _ repository.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// SaveAuthURL stashes the URL under the session key with TTL.
func (s *RedisSessionStore) SaveAuthURL(ctx context.Context, sessionID, authURL string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(sessionID), authURL, ttl).Err(); err != nil {
		return fmt.Errorf("persist auth url: %w", err)
	}
	return nil
}

// GetAuthURL loads the stashed URL.
func (s *RedisSessionStore) GetAuthURL(ctx context.Context, sessionID string) (string, error) {
	authURL, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", oauth.ErrNoPendingAuthorization
		}
		return "", fmt.Errorf("load auth url: %w", err)
	}
	return authURL, nil
}

// DeleteAuthURL removes the session key.
func (s *RedisSessionStore) DeleteAuthURL(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete auth url: %w", err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}
