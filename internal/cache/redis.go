package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const jobStatusPrefix = "vibecheck:job:"

// JobStatusKey returns the Redis key holding a job's mirrored status.
func JobStatusKey(jobID string) string {
	return jobStatusPrefix + jobID + ":status"
}

// RedisStatusMirror mirrors analysis job statuses into Redis so other
// processes (or this one after a restart) can answer status lookups.
type RedisStatusMirror struct {
	client *redis.Client
}

// NewRedisStatusMirror creates a mirror from a redis:// URL.
func NewRedisStatusMirror(redisURL string) (*RedisStatusMirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStatusMirror{client: redis.NewClient(opts)}, nil
}

// Ping checks connectivity.
func (m *RedisStatusMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// SetJobStatus stores status for jobID with the given expiry.
func (m *RedisStatusMirror) SetJobStatus(ctx context.Context, jobID, status string, ttl time.Duration) error {
	return m.client.Set(ctx, JobStatusKey(jobID), status, ttl).Err()
}

// GetJobStatus returns the mirrored status. The bool is false when the key
// does not exist.
func (m *RedisStatusMirror) GetJobStatus(ctx context.Context, jobID string) (string, bool, error) {
	val, err := m.client.Get(ctx, JobStatusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Close releases the underlying connection pool.
func (m *RedisStatusMirror) Close() error {
	return m.client.Close()
}
