// Package redisstore keeps the LinkPlus token snapshot in a single Redis key, so
// that restarts on a different host can pick up the rotated refresh token.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/go-lightwave/linkplus/lightwave"
)

// DefaultKey is the key used when none is configured.
const DefaultKey = "linkplus:auth_response"

// Store implements lightwave.Store on top of a Redis client.
type Store struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the Redis key holding the snapshot.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithTTL expires the snapshot after ttl. Zero keeps it forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New creates a Store using client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		redis: client,
		key:   DefaultKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the Redis key in use.
func (s *Store) Key() string {
	return s.key
}

// Load returns the snapshot, or lightwave.ErrNoSnapshot when the key is absent.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, lightwave.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token snapshot: %w", err)
	}
	return data, nil
}

// Save overwrites the snapshot.
func (s *Store) Save(ctx context.Context, snapshot []byte) error {
	if len(snapshot) == 0 {
		return fmt.Errorf("%w: empty snapshot", lightwave.ErrInvalidArgument)
	}
	if err := s.redis.Set(ctx, s.key, snapshot, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write token snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to delete token snapshot: %w", err)
	}
	return nil
}
