package redis_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/number_pool_service/repository/redis"
	"github.com/aradsms/otp_gateway/internal/platform/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *cache.RedisCache {
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

	rc, err := cache.NewRedisCache("redis://" + host + ":" + port.Port())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestRateLimitRepository_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	repo := redis.NewRateLimitRepository(setupRedis(t), time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	state, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, state)

	windowStart := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &domain.RateLimitState{TenantID: 5, RequestCount: 3, WindowStart: windowStart}))

	state, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 3, state.RequestCount)
	assert.True(t, state.WindowStart.Equal(windowStart))
	assert.True(t, state.SuspendedUntil.IsZero())

	suspendedUntil := windowStart.Add(15 * time.Minute)
	require.NoError(t, repo.Save(ctx, &domain.RateLimitState{TenantID: 5, RequestCount: 5, WindowStart: windowStart, SuspendedUntil: suspendedUntil}))

	state, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, state.SuspendedUntil.Equal(suspendedUntil))

	require.NoError(t, repo.Reset(ctx, 5))
	state, err = repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.NoError(t, repo.Reset(ctx, 5), "resetting a missing key is not an error")
}
