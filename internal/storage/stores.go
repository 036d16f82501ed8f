// Package storage selects the repository implementations named by the configuration.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	billingPg "github.com/aradsms/otp_gateway/internal/billing_service/repository/postgres"
	inboundDomain "github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	inboundPg "github.com/aradsms/otp_gateway/internal/inbound_processor_service/repository/postgres"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	poolPg "github.com/aradsms/otp_gateway/internal/number_pool_service/repository/postgres"
	poolRedis "github.com/aradsms/otp_gateway/internal/number_pool_service/repository/redis"
	"github.com/aradsms/otp_gateway/internal/platform/cache"
	"github.com/aradsms/otp_gateway/internal/platform/config"
	"github.com/aradsms/otp_gateway/internal/platform/database"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	settingsPg "github.com/aradsms/otp_gateway/internal/settings_service/repository/postgres"
	"github.com/aradsms/otp_gateway/internal/storage/memory"
)

// Stores bundles every repository a binary may need.
type Stores struct {
	Leases     poolDomain.LeaseRepository
	Numbers    poolDomain.NumberRepository
	Countries  poolDomain.CountryRepository
	RateLimits poolDomain.RateLimitRepository
	Tenants    billingDomain.TenantRepository
	Inbox      inboundDomain.InboxRepository
	Settings   settingsDomain.Repository

	pingers []func(ctx context.Context) error
	closers []func()
}

// Open connects the configured backends. With STORE_DRIVER=postgres the migrations are
// applied first. The caller must call Close.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	s := &Stores{}

	switch cfg.StoreDriver {
	case "memory":
		mem := memory.NewStore()
		s.Leases = mem.Leases()
		s.Numbers = mem.Numbers()
		s.Countries = mem.Countries()
		s.RateLimits = mem.RateLimits()
		s.Tenants = mem.Tenants()
		s.Inbox = mem.Inbox()
		s.Settings = mem.Settings()
		logger.Warn("Using in-memory store; state is lost on restart and not shared between processes")
	case "postgres":
		if err := database.RunMigrations(cfg.PostgresDSN, cfg.MigrationsPath); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		pool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		s.pingers = append(s.pingers, pool.Ping)

		s.Leases = poolPg.NewPgLeaseRepository(pool, logger.With("component", "lease_repository_pg"))
		s.Numbers = poolPg.NewPgNumberRepository(pool, logger.With("component", "number_repository_pg"))
		s.Countries = poolPg.NewPgCountryRepository(pool, logger.With("component", "country_repository_pg"))
		s.RateLimits = poolPg.NewPgRateLimitRepository(pool, logger.With("component", "rate_limit_repository_pg"))
		s.Tenants = billingPg.NewPgTenantRepository(pool, logger)
		s.Inbox = inboundPg.NewPgInboxRepository(pool, logger.With("component", "inbox_repository_pg"))
		s.Settings = settingsPg.NewPgSettingsRepository(pool, logger.With("component", "settings_repository_pg"))
		logger.Info("Connected to PostgreSQL", "migrations_path", cfg.MigrationsPath)
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.RateLimitBackend == "redis" {
		rc, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			s.Close()
			return nil, err
		}
		if err := rc.Ping(ctx); err != nil {
			_ = rc.Close()
			s.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		s.closers = append(s.closers, func() { _ = rc.Close() })
		s.pingers = append(s.pingers, rc.Ping)

		// State must outlive both the window and a suspension.
		ttl := cfg.RateLimitWindow + cfg.SuspensionDuration
		s.RateLimits = poolRedis.NewRateLimitRepository(rc, ttl, logger.With("component", "rate_limit_repository_redis"))
		logger.Info("Rate limit state kept in Redis", "ttl", ttl)
	}

	return s, nil
}

// Ping checks every networked backend.
func (s *Stores) Ping(ctx context.Context) error {
	for _, ping := range s.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
