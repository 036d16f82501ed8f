package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/platform/cache"
	"github.com/aradsms/otp_gateway/internal/platform/database"
)

const keyPrefix = "ratelimit:tenant:"

// RateLimitRepository keeps rate limit state in one Redis hash per tenant. Keys expire after
// ttl so idle tenants do not accumulate.
type RateLimitRepository struct {
	cache  *cache.RedisCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewRateLimitRepository(c *cache.RedisCache, ttl time.Duration, logger *slog.Logger) *RateLimitRepository {
	return &RateLimitRepository{cache: c, ttl: ttl, logger: logger}
}

func key(tenantID int64) string {
	return keyPrefix + strconv.FormatInt(tenantID, 10)
}

func (r *RateLimitRepository) Get(ctx context.Context, tenantID int64) (*domain.RateLimitState, error) {
	fields, err := r.cache.HGetAll(ctx, key(tenantID))
	if err != nil {
		r.logger.ErrorContext(ctx, "Error reading rate limit state from redis", "error", err, "tenant_id", tenantID)
		return nil, fmt.Errorf("%w: %w", database.ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	state := &domain.RateLimitState{TenantID: tenantID}
	if state.RequestCount, err = strconv.Atoi(fields["request_count"]); err != nil {
		return nil, fmt.Errorf("parse request_count: %w", err)
	}
	if state.WindowStart, err = time.Parse(time.RFC3339Nano, fields["window_start"]); err != nil {
		return nil, fmt.Errorf("parse window_start: %w", err)
	}
	if v := fields["suspended_until"]; v != "" {
		if state.SuspendedUntil, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("parse suspended_until: %w", err)
		}
	}
	return state, nil
}

func (r *RateLimitRepository) Save(ctx context.Context, state *domain.RateLimitState) error {
	suspendedUntil := ""
	if !state.SuspendedUntil.IsZero() {
		suspendedUntil = state.SuspendedUntil.UTC().Format(time.RFC3339Nano)
	}
	fields := map[string]any{
		"request_count":   state.RequestCount,
		"window_start":    state.WindowStart.UTC().Format(time.RFC3339Nano),
		"suspended_until": suspendedUntil,
	}
	if err := r.cache.HSetWithExpiry(ctx, key(state.TenantID), fields, r.ttl); err != nil {
		r.logger.ErrorContext(ctx, "Error saving rate limit state to redis", "error", err, "tenant_id", state.TenantID)
		return fmt.Errorf("%w: %w", database.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RateLimitRepository) Reset(ctx context.Context, tenantID int64) error {
	if err := r.cache.Delete(ctx, key(tenantID)); err != nil {
		r.logger.ErrorContext(ctx, "Error deleting rate limit state from redis", "error", err, "tenant_id", tenantID)
		return fmt.Errorf("%w: %w", database.ErrStoreUnavailable, err)
	}
	return nil
}
