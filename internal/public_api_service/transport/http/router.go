package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aradsms/otp_gateway/internal/public_api_service/middleware"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Numbers *NumberHandler
	Admin   *AdminHandler
	Auth    func(http.Handler) http.Handler
	Health  http.HandlerFunc
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRouter builds the public HTTP surface: /v1 tenant routes, /v1/admin operator routes,
// /healthz and /metrics.
func NewRouter(cfg RouterConfig) chi.Router {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.Timeout))
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/healthz", cfg.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(cfg.Auth)
		cfg.Numbers.RegisterRoutes(v1)
		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.RequireAdmin(cfg.Logger))
			cfg.Admin.RegisterRoutes(admin)
		})
	})
	return r
}
