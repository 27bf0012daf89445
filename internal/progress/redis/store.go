// Package redis provides the Redis-backed progress store used in production,
// where upload handlers and runners live in different processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/resourcewatch/resourcewatch/internal/progress"
)

const keyPrefix = "resourcewatch:progress:"

// Config controls the Redis connection and snapshot retention.
type Config struct {
	Addr     string
	Password string
	DB       int
	// TTL bounds how long an orphaned snapshot survives; the durable job
	// record takes over once the job is terminal, so short is fine.
	TTL time.Duration
}

// Store writes snapshots as JSON values with a TTL.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewStore connects a Redis client and verifies it with a ping.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}, nil
}

// NewStoreWithClient wraps an existing client (primarily for testing).
func NewStoreWithClient(client *goredis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// Set overwrites the snapshot for the token.
func (s *Store) Set(ctx context.Context, token uuid.UUID, snap progress.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal progress snapshot: %w", err)
	}
	if err := s.client.Set(ctx, Key(token), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set progress snapshot: %w", err)
	}
	return nil
}

// Get returns the snapshot for the token, reporting absence without error.
func (s *Store) Get(ctx context.Context, token uuid.UUID) (progress.Snapshot, bool, error) {
	payload, err := s.client.Get(ctx, Key(token)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return progress.Snapshot{}, false, nil
		}
		return progress.Snapshot{}, false, fmt.Errorf("get progress snapshot: %w", err)
	}
	var snap progress.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return progress.Snapshot{}, false, fmt.Errorf("unmarshal progress snapshot: %w", err)
	}
	return snap, true, nil
}

// Key builds the Redis key for a correlation token.
func Key(token uuid.UUID) string {
	return keyPrefix + token.String()
}
