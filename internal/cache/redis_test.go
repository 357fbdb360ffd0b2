package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/HendryAvila/vibe-check/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected mirror.
func setupRedis(t *testing.T) *cache.RedisStatusMirror {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	m, err := cache.NewRedisStatusMirror("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestJobStatusKey(t *testing.T) {
	assert.Equal(t, "vibecheck:job:o_r#42#abc:status", cache.JobStatusKey("o_r#42#abc"))
}

func TestNewRedisStatusMirror_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisStatusMirror("not a url")
	assert.Error(t, err)
}

func TestRedisStatusMirror_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	m := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Ping(ctx))

	_, found, err := m.GetJobStatus(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.SetJobStatus(ctx, "o_r#1#x", "completed", time.Minute))
	status, found, err := m.GetJobStatus(ctx, "o_r#1#x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "completed", status)
}
