package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/otp_gateway/internal/platform/config"
)

func TestOpen_Memory(t *testing.T) {
	cfg := &config.Config{StoreDriver: "memory", RateLimitBackend: "postgres"}

	s, err := Open(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer s.Close()

	assert.NotNil(t, s.Leases)
	assert.NotNil(t, s.Numbers)
	assert.NotNil(t, s.Countries)
	assert.NotNil(t, s.RateLimits)
	assert.NotNil(t, s.Tenants)
	assert.NotNil(t, s.Inbox)
	assert.NotNil(t, s.Settings)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StoreDriver: "sqlite"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
