package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	inboundApp "github.com/aradsms/otp_gateway/internal/inbound_processor_service/app"
	poolApp "github.com/aradsms/otp_gateway/internal/number_pool_service/app"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/public_api_service/middleware"
)

// PoolCommands is the slice of the pool service the HTTP surface drives.
type PoolCommands interface {
	Allocate(ctx context.Context, tenantID int64, countryCode string, requested int) (*poolApp.AllocationResult, error)
	Release(ctx context.Context, req poolApp.ReleaseRequest) (*poolApp.ReleaseResult, error)
	ReleaseAll(ctx context.Context, tenantID int64, hard bool) (int, error)
	ListActive(ctx context.Context, tenantID int64) ([]*poolDomain.Lease, error)
	Countries(ctx context.Context) ([]poolDomain.CountryAggregate, error)
	ImportNumbers(ctx context.Context, numbers []poolDomain.NewNumber) (poolDomain.ImportResult, error)
}

// LedgerCommands is the slice of the ledger the HTTP surface drives.
type LedgerCommands interface {
	EnsureTenant(ctx context.Context, tenantID int64) (*billingDomain.Tenant, error)
	DailyStats(ctx context.Context, tenantID int64) (*billingDomain.DailyStats, error)
	Credit(ctx context.Context, tenantID int64, amount decimal.Decimal) (*billingDomain.Tenant, error)
	ApproveWithdrawal(ctx context.Context, tenantID int64, amount decimal.Decimal) (*billingDomain.Tenant, error)
	SetBanned(ctx context.Context, tenantID int64, banned bool) error
}

// TenantRefresher routes a tenant's pending backlog on demand.
type TenantRefresher interface {
	RefreshTenant(ctx context.Context, tenantID int64) (inboundApp.RefreshReport, error)
}

// NumberHandler serves the tenant-facing leasing routes.
type NumberHandler struct {
	pool      PoolCommands
	ledger    LedgerCommands
	refresher TenantRefresher
	logger    *slog.Logger
	validate  *validator.Validate
}

// NewNumberHandler creates a new NumberHandler.
func NewNumberHandler(pool PoolCommands, ledger LedgerCommands, refresher TenantRefresher, logger *slog.Logger, validate *validator.Validate) *NumberHandler {
	return &NumberHandler{
		pool:      pool,
		ledger:    ledger,
		refresher: refresher,
		logger:    logger.With("component", "number_handler"),
		validate:  validate,
	}
}

// RegisterRoutes mounts the tenant routes. AuthMiddleware must already be applied to r.
func (h *NumberHandler) RegisterRoutes(r chi.Router) {
	r.Post("/numbers/allocate", h.Allocate)
	r.Get("/numbers", h.ListNumbers)
	r.Post("/numbers/refresh", h.Refresh)
	r.Post("/leases/release-all", h.ReleaseAll)
	r.Post("/leases/{leaseID}/release", h.Release)
	r.Get("/countries", h.ListCountries)
	r.Get("/me", h.Me)
}

func (h *NumberHandler) tenant(w http.ResponseWriter, r *http.Request) (middleware.AuthenticatedTenant, bool) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "AuthenticatedTenant not found in context")
		respondWithError(w, http.StatusUnauthorized, CodeForbidden, "Authentication required")
	}
	return tenant, ok
}

func (h *NumberHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req AllocateRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Validation failed: "+err.Error())
		return
	}

	result, err := h.pool.Allocate(ctx, tenant.ID, req.CountryCode, req.Count)
	if err != nil {
		h.logger.WarnContext(ctx, "Allocation failed", "tenant_id", tenant.ID, "country_code", req.CountryCode, "error", err)
		switch {
		case errors.Is(err, poolDomain.ErrRateLimited):
			allocationResponsesTotal.WithLabelValues(CodeRateLimited).Inc()
		case errors.Is(err, poolDomain.ErrAllocationDisabled):
			allocationResponsesTotal.WithLabelValues(CodeMaintenance).Inc()
		}
		respondWithDomainError(w, err)
		return
	}
	if result.AtCapacity {
		allocationResponsesTotal.WithLabelValues(CodeCapacityExceeded).Inc()
		respondWithError(w, http.StatusConflict, CodeCapacityExceeded, poolDomain.ErrCapacityExceeded.Error())
		return
	}
	if result.PoolExhausted {
		allocationResponsesTotal.WithLabelValues(CodePoolExhausted).Inc()
		respondWithError(w, http.StatusNotFound, CodePoolExhausted, poolDomain.ErrPoolExhausted.Error())
		return
	}

	allocationResponsesTotal.WithLabelValues("OK").Inc()
	respondWithJSON(w, http.StatusOK, AllocateResponse{
		Numbers:     toLeaseDTOs(result.Leases),
		Requested:   result.Requested,
		Partial:     len(result.Leases) < result.Requested,
		ActiveCount: result.ActiveCount,
		MaxActive:   result.MaxActive,
	})
}

func (h *NumberHandler) ListNumbers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	leases, err := h.pool.ListActive(ctx, tenant.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list active leases", "tenant_id", tenant.ID, "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ListLeasesResponse{Numbers: toLeaseDTOs(leases), Count: len(leases)})
}

// Refresh routes messages that arrived for the caller's numbers but are still pending.
func (h *NumberHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	report, err := h.refresher.RefreshTenant(ctx, tenant.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Refresh failed", "tenant_id", tenant.ID, "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

func (h *NumberHandler) Release(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	leaseID, err := uuid.Parse(chi.URLParam(r, "leaseID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid lease ID format")
		return
	}
	var req ReleaseRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.pool.Release(ctx, poolApp.ReleaseRequest{LeaseID: leaseID, TenantID: tenant.ID, Hard: req.Hard})
	if err != nil {
		h.logger.WarnContext(ctx, "Release failed", "tenant_id", tenant.ID, "lease_id", leaseID, "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ReleaseResponse{Lease: toLeaseDTO(result.Lease), Retired: result.Retirement != nil})
}

func (h *NumberHandler) ReleaseAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	var req ReleaseRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}

	released, err := h.pool.ReleaseAll(ctx, tenant.ID, req.Hard)
	if err != nil {
		h.logger.ErrorContext(ctx, "Release all failed", "tenant_id", tenant.ID, "released", released, "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ReleaseAllResponse{Released: released, Hard: req.Hard})
}

func (h *NumberHandler) ListCountries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	countries, err := h.pool.Countries(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list countries", "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ListCountriesResponse{Countries: toCountryDTOs(countries)})
}

func (h *NumberHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := h.tenant(w, r)
	if !ok {
		return
	}
	account, err := h.ledger.EnsureTenant(ctx, tenant.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load tenant", "tenant_id", tenant.ID, "error", err)
		respondWithDomainError(w, err)
		return
	}
	stats, err := h.ledger.DailyStats(ctx, tenant.ID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load daily stats", "tenant_id", tenant.ID, "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, MeResponse{Tenant: account, Today: stats})
}
