package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	billingApp "github.com/aradsms/otp_gateway/internal/billing_service/app"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/adapters/notifier"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/app"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/extractor"
	poolApp "github.com/aradsms/otp_gateway/internal/number_pool_service/app"
	"github.com/aradsms/otp_gateway/internal/platform/config"
	"github.com/aradsms/otp_gateway/internal/platform/logger"
	"github.com/aradsms/otp_gateway/internal/platform/messagebroker"
	settingsApp "github.com/aradsms/otp_gateway/internal/settings_service/app"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/aradsms/otp_gateway/internal/storage"
)

const (
	serviceName     = "inbound_processor_service"
	feedBufferSize  = 100
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Main context for startup and long-running operations until shutdown signal
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Starting service...")
	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"store_driver", cfg.StoreDriver,
		"rate_limit_backend", cfg.RateLimitBackend,
		"nats_url", cfg.NATSURL,
		"metrics_port", cfg.MetricsPort,
		"grpc_health_port", cfg.GRPCHealthPort,
	)

	stores, err := storage.Open(mainCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	nc, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	appLogger.Info("NATS connection initialized")

	natsNotifier := notifier.NewNATSNotifier(nc, notifier.Subjects{
		Notify:       cfg.NotifySubject,
		DeleteSource: cfg.SourceDeleteSubject,
		PoolAlert:    cfg.PoolAlertSubject,
	}, cfg.NotifyRatePerSecond, appLogger)

	settings := settingsApp.NewSettingsService(stores.Settings, settingsDomain.Settings{
		AllocationEnabled:        true,
		BatchSize:                cfg.BatchSize,
		MaxActiveLeasesPerTenant: cfg.MaxActiveLeasesPerTenant,
		PerMessageRevenue:        cfg.RevenueAmount,
		MinWithdrawal:            cfg.MinWithdrawalAmount,
	}, appLogger)
	ledger := billingApp.NewLedgerService(stores.Tenants, billingApp.LedgerConfig{
		PerMessageRevenue: cfg.RevenueAmount,
		MinWithdrawal:     cfg.MinWithdrawalAmount,
	}, appLogger).WithSettings(settings)

	rateLimiter := poolApp.NewRateLimiter(stores.RateLimits, poolApp.RateLimitConfig{
		Threshold:  cfg.RateLimitThreshold,
		Window:     cfg.RateLimitWindow,
		Suspension: cfg.SuspensionDuration,
	}, appLogger.With("component", "rate_limiter"))
	pool := poolApp.NewPoolService(stores.Leases, stores.Numbers, stores.Countries, rateLimiter, natsNotifier, ledger,
		poolApp.PoolConfig{BatchSize: cfg.BatchSize, MaxActiveLeasesPerTenant: cfg.MaxActiveLeasesPerTenant},
		appLogger.With("component", "pool_service")).WithSettings(settings)
	reconciler := poolApp.NewReconciler(stores.Countries, cfg.ReconcileInterval, appLogger.With("component", "reconciler"))

	router := app.NewRouter(stores.Inbox, pool, ledger, natsNotifier, appLogger)
	sweeper := app.NewSweeper(stores.Inbox, router, app.SweepConfig{
		BatchSize:           cfg.SweepBatchSize,
		Interval:            cfg.SweepInterval,
		ProcessedRetention:  cfg.ProcessedRetention,
		StalePendingCeiling: cfg.StalePendingCeiling,
	}, appLogger)

	feedEvents := make(chan domain.FeedEvent, feedBufferSize)
	smsConsumer := app.NewSMSConsumer(nc, appLogger, feedEvents)
	smsProcessor := app.NewSMSProcessor(stores.Inbox, extractor.New(), router, appLogger)

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		return smsConsumer.StartConsuming(groupCtx, cfg.FeedSubject, cfg.FeedQueueGroup)
	})
	g.Go(func() error {
		return ignoreCanceled(smsProcessor.Run(groupCtx, feedEvents))
	})
	g.Go(func() error {
		return ignoreCanceled(sweeper.Run(groupCtx))
	})
	g.Go(func() error {
		return ignoreCanceled(reconciler.Run(groupCtx))
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCHealthPort))
		if err != nil {
			return fmt.Errorf("failed to listen for gRPC health: %w", err)
		}
		appLogger.Info("gRPC health server listening", "port", cfg.GRPCHealthPort)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		appLogger.Info("Metrics server listening", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})

	// Servers stop when any component fails or on signal.
	g.Go(func() error {
		<-groupCtx.Done()
		healthServer.Shutdown()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics server shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	// Health follows the backing stores and the NATS connection.
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			status := healthpb.HealthCheckResponse_SERVING
			pingCtx, cancel := context.WithTimeout(groupCtx, 2*time.Second)
			if err := stores.Ping(pingCtx); err != nil || !nc.IsConnected() {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				appLogger.Warn("Health check failing", "store_error", err, "nats_connected", nc.IsConnected())
			}
			cancel()
			healthServer.SetServingStatus("", status)
			healthServer.SetServingStatus(serviceName, status)

			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	appLogger.Info("Service components initialized and workers started. Service is ready.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		appLogger.Info("Received termination signal", "signal", sig.String())
	case groupErr = <-watchGroup(g):
		appLogger.Error("A critical component failed, initiating shutdown", "error", groupErr)
	}

	appLogger.Info("Attempting graceful shutdown...")
	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Error during graceful shutdown of components", "error", err)
	}
	appLogger.Info("Service shutdown complete.")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchGroup is a helper to monitor an errgroup for early exit.
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()
	return errCh
}
