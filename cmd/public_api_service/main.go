package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	billingApp "github.com/aradsms/otp_gateway/internal/billing_service/app"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/adapters/notifier"
	inboundApp "github.com/aradsms/otp_gateway/internal/inbound_processor_service/app"
	poolApp "github.com/aradsms/otp_gateway/internal/number_pool_service/app"
	"github.com/aradsms/otp_gateway/internal/platform/config"
	"github.com/aradsms/otp_gateway/internal/platform/logger"
	"github.com/aradsms/otp_gateway/internal/platform/messagebroker"
	publicApp "github.com/aradsms/otp_gateway/internal/public_api_service/app"
	"github.com/aradsms/otp_gateway/internal/public_api_service/middleware"
	httptransport "github.com/aradsms/otp_gateway/internal/public_api_service/transport/http"
	settingsApp "github.com/aradsms/otp_gateway/internal/settings_service/app"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/aradsms/otp_gateway/internal/storage"
)

const serviceName = "public_api_service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Public API service starting...", "port", cfg.PublicAPIServicePort, "store_driver", cfg.StoreDriver)

	stores, err := storage.Open(context.Background(), cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	// Pool exhaustion alerts and refresh notifications are best-effort; the API keeps
	// serving without NATS.
	var alerter poolApp.PoolAlerter
	var tenantNotifier inboundApp.Notifier
	natsClient, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS; pool alerts and refresh notifications disabled", "error", err)
	} else {
		defer natsClient.Close()
		natsNotifier := notifier.NewNATSNotifier(natsClient, notifier.Subjects{
			Notify:       cfg.NotifySubject,
			DeleteSource: cfg.SourceDeleteSubject,
			PoolAlert:    cfg.PoolAlertSubject,
		}, cfg.NotifyRatePerSecond, appLogger)
		alerter = natsNotifier
		tenantNotifier = natsNotifier
		appLogger.Info("Successfully connected to NATS")
	}

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
	pool := poolApp.NewPoolService(stores.Leases, stores.Numbers, stores.Countries, rateLimiter, alerter, ledger,
		poolApp.PoolConfig{BatchSize: cfg.BatchSize, MaxActiveLeasesPerTenant: cfg.MaxActiveLeasesPerTenant},
		appLogger.With("component", "pool_service")).WithSettings(settings)
	reconciler := poolApp.NewReconciler(stores.Countries, cfg.ReconcileInterval, appLogger.With("component", "reconciler"))
	messageRouter := inboundApp.NewRouter(stores.Inbox, pool, ledger, tenantNotifier, appLogger)
	refresher := inboundApp.NewRefresher(stores.Inbox, pool, messageRouter, cfg.SweepBatchSize, appLogger)
	status := publicApp.NewStatusService(ledger, pool, stores.Inbox, settings, appLogger)

	validate := validator.New()
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Numbers: httptransport.NewNumberHandler(pool, ledger, refresher, appLogger, validate),
		Admin:   httptransport.NewAdminHandler(pool, ledger, reconciler, settings, status, rateLimiter, appLogger, validate),
		Auth:    middleware.AuthMiddleware(cfg.JWTSecret, ledger, appLogger),
		Health: func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := stores.Ping(ctx); err != nil {
				appLogger.WarnContext(ctx, "Health check failed", "error", err)
				http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
		Timeout: 60 * time.Second,
		Logger:  appLogger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.PublicAPIServicePort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("Public API server listening", "port", cfg.PublicAPIServicePort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed to serve", "error", err)
			os.Exit(1)
		}
	}()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, syscall.SIGINT, syscall.SIGTERM)
	<-quitChan
	appLogger.Info("Shutdown signal received, shutting down HTTP server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		appLogger.Error("HTTP server shutdown failed", "error", err)
	} else {
		appLogger.Info("HTTP server shut down gracefully.")
	}
	appLogger.Info("Public API service shut down.")
}
