package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	poolApp "github.com/aradsms/otp_gateway/internal/number_pool_service/app"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	publicApp "github.com/aradsms/otp_gateway/internal/public_api_service/app"
	"github.com/aradsms/otp_gateway/internal/public_api_service/middleware"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
)

// AggregateReconciler rebuilds country aggregates on demand.
type AggregateReconciler interface {
	ReconcileOnce(ctx context.Context) ([]poolDomain.CountryAggregate, error)
}

// SettingsCommands reads and changes the runtime settings.
type SettingsCommands interface {
	Current(ctx context.Context) (settingsDomain.Settings, error)
	Update(ctx context.Context, u settingsDomain.Update) (settingsDomain.Settings, error)
}

// StatusReader builds the admin dashboard snapshot.
type StatusReader interface {
	Status(ctx context.Context) (*publicApp.Status, error)
}

// SuspensionLifter ends a tenant's allocation suspension.
type SuspensionLifter interface {
	Lift(ctx context.Context, tenantID int64) error
}

// AdminHandler serves the operator routes.
type AdminHandler struct {
	pool        PoolCommands
	ledger      LedgerCommands
	reconciler  AggregateReconciler
	settings    SettingsCommands
	status      StatusReader
	suspensions SuspensionLifter
	logger      *slog.Logger
	validate    *validator.Validate
}

func NewAdminHandler(
	pool PoolCommands,
	ledger LedgerCommands,
	reconciler AggregateReconciler,
	settings SettingsCommands,
	status StatusReader,
	suspensions SuspensionLifter,
	logger *slog.Logger,
	validate *validator.Validate,
) *AdminHandler {
	return &AdminHandler{
		pool:        pool,
		ledger:      ledger,
		reconciler:  reconciler,
		settings:    settings,
		status:      status,
		suspensions: suspensions,
		logger:      logger.With("component", "admin_handler"),
		validate:    validate,
	}
}

// RegisterRoutes mounts the admin routes. RequireAdmin must already be applied to r.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/numbers/import", h.ImportNumbers)
	r.Post("/tenants/{tenantID}/withdrawals", h.ApproveWithdrawal)
	r.Post("/tenants/{tenantID}/credit", h.Credit)
	r.Post("/tenants/{tenantID}/ban", h.SetBanned)
	r.Post("/leases/{leaseID}/release", h.ReleaseLease)
	r.Post("/tenants/{tenantID}/unsuspend", h.Unsuspend)
	r.Post("/reconcile", h.Reconcile)
	r.Get("/settings", h.GetSettings)
	r.Patch("/settings", h.UpdateSettings)
	r.Get("/summary", h.Summary)
}

func tenantIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	return id, err == nil && id > 0
}

func (h *AdminHandler) ImportNumbers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ImportNumbersRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Validation failed: "+err.Error())
		return
	}

	result, err := h.pool.ImportNumbers(ctx, req.Numbers)
	if err != nil {
		h.logger.ErrorContext(ctx, "Import failed", "count", len(req.Numbers), "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid tenant ID")
		return
	}
	var req AmountRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}

	tenant, err := h.ledger.ApproveWithdrawal(ctx, tenantID, req.Amount)
	if err != nil {
		h.logger.WarnContext(ctx, "Withdrawal rejected", "tenant_id", tenantID, "amount", req.Amount.String(), "error", err)
		respondWithDomainError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "Withdrawal approved", "tenant_id", tenantID, "amount", req.Amount.String())
	respondWithJSON(w, http.StatusOK, tenant)
}

func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid tenant ID")
		return
	}
	var req AmountRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}

	tenant, err := h.ledger.Credit(ctx, tenantID, req.Amount)
	if err != nil {
		h.logger.WarnContext(ctx, "Manual credit rejected", "tenant_id", tenantID, "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tenant)
}

func (h *AdminHandler) SetBanned(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid tenant ID")
		return
	}
	req := BanRequest{Banned: true}
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.ledger.SetBanned(ctx, tenantID, req.Banned); err != nil {
		respondWithDomainError(w, err)
		return
	}
	operator, _ := middleware.TenantFromContext(ctx)
	h.logger.InfoContext(ctx, "Tenant ban updated", "tenant_id", tenantID, "banned", req.Banned, "operator_id", operator.ID)
	respondWithJSON(w, http.StatusOK, BanResponse{TenantID: tenantID, Banned: req.Banned})
}

func (h *AdminHandler) ReleaseLease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
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

	result, err := h.pool.Release(ctx, poolApp.ReleaseRequest{LeaseID: leaseID, Admin: true, Hard: req.Hard})
	if err != nil {
		h.logger.WarnContext(ctx, "Admin release failed", "lease_id", leaseID, "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ReleaseResponse{Lease: toLeaseDTO(result.Lease), Retired: result.Retirement != nil})
}

func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	countries, err := h.reconciler.ReconcileOnce(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Manual reconcile failed", "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ListCountriesResponse{Countries: toCountryDTOs(countries)})
}

func (h *AdminHandler) Unsuspend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, ok := tenantIDParam(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid tenant ID")
		return
	}
	if err := h.suspensions.Lift(ctx, tenantID); err != nil {
		h.logger.ErrorContext(ctx, "Failed to lift suspension", "tenant_id", tenantID, "error", err)
		respondWithDomainError(w, err)
		return
	}
	operator, _ := middleware.TenantFromContext(ctx)
	h.logger.InfoContext(ctx, "Tenant suspension lifted", "tenant_id", tenantID, "operator_id", operator.ID)
	respondWithJSON(w, http.StatusOK, UnsuspendResponse{TenantID: tenantID, Suspended: false})
}

func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, err := h.settings.Current(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load settings", "error", err)
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, current)
}

func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateSettingsRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "Validation failed: "+err.Error())
		return
	}
	update := req.toUpdate()
	if update.IsEmpty() {
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, "No settings to update")
		return
	}

	updated, err := h.settings.Update(ctx, update)
	if err != nil {
		h.logger.WarnContext(ctx, "Settings update rejected", "error", err)
		respondWithDomainError(w, err)
		return
	}
	operator, _ := middleware.TenantFromContext(ctx)
	h.logger.InfoContext(ctx, "Settings updated", "operator_id", operator.ID, "allocation_enabled", updated.AllocationEnabled)
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.status.Status(ctx)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}
