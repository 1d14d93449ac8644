package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSnapshotStore keeps the snapshot under key pairfs:snapshot:<coordinator id>.
type RedisSnapshotStore struct {
	client        *redis.Client
	key           string
	coordinatorID string
	logger        *zap.Logger
}

// NewRedisSnapshotStore creates a Redis snapshot store and verifies the connection.
func NewRedisSnapshotStore(host string, port int, password string, db, maxRetries, poolSize int, coordinatorID string, logger *zap.Logger) (*RedisSnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", host, port),
		Password:   password,
		DB:         db,
		MaxRetries: maxRetries,
		PoolSize:   poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisSnapshotStore(client, coordinatorID, logger), nil
}

func newRedisSnapshotStore(client *redis.Client, coordinatorID string, logger *zap.Logger) *RedisSnapshotStore {
	return &RedisSnapshotStore{
		client:        client,
		key:           "pairfs:snapshot:" + coordinatorID,
		coordinatorID: coordinatorID,
		logger:        logger,
	}
}

// Load reads the snapshot. A missing key yields an empty snapshot.
func (s *RedisSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save rewrites the snapshot key without expiry.
func (s *RedisSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(s.coordinatorID, snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// Ping checks the Redis connection
func (s *RedisSnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
