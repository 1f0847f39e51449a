package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MirrorPrefix is the Redis key prefix for all session mirror hashes.
	MirrorPrefix = "session:user:"

	// MirrorTTL is the time-to-live for mirror keys. Bound sessions refresh
	// it on activity; a crashed server's leftovers age out on their own.
	MirrorTTL = 1 * time.Hour
)

// Store mirrors the set of bound sessions into Redis for operational
// visibility (which server holds which user, since when). The in-memory
// Registry remains the delivery source of truth; the mirror is never read
// on the push path.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this WS server instance
}

// NewStore creates a session mirror connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create records a bound session for userID with the connection ID and this
// server's name.
func (s *Store) Create(ctx context.Context, userID int64, connID string) error {
	key := MirrorPrefix + strconv.FormatInt(userID, 10)
	now := time.Now().Unix()

	entry := map[string]interface{}{
		"user_id":      userID,
		"conn_id":      connID,
		"server":       s.serverName,
		"connected_at": now,
		"last_active":  now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, entry)
	pipe.Expire(ctx, key, MirrorTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Touch refreshes last_active and the TTL for userID's mirror entry.
func (s *Store) Touch(ctx context.Context, userID int64) error {
	key := MirrorPrefix + strconv.FormatInt(userID, 10)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, MirrorTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes the mirror entry, but only if it still records connID.
// This mirrors the Registry's stale-close guard: an old channel closing
// after a reconnect must not wipe the fresh entry.
func (s *Store) Delete(ctx context.Context, userID int64, connID string) error {
	key := MirrorPrefix + strconv.FormatInt(userID, 10)
	current, err := s.client.HGet(ctx, key, "conn_id").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if current != connID {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages
// (rate limiting shares the same connection).
func (s *Store) Client() *redis.Client {
	return s.client
}
