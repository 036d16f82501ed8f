package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/platform/database"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
)

const (
	CodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	CodePoolExhausted       = "POOL_EXHAUSTED"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeConflict            = "CONFLICT"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeUnavailable         = "STORE_UNAVAILABLE"
	CodeMaintenance         = "MAINTENANCE"
	CodeInternal            = "INTERNAL"
)

// Helper to respond with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

// Helper to respond with an error
func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, GenericErrorResponse{Error: message, Code: code})
}

// decodeBody decodes an optional JSON body; an empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// respondWithDomainError maps service errors onto HTTP statuses.
func respondWithDomainError(w http.ResponseWriter, err error) {
	var rateLimited *poolDomain.RateLimitedError
	switch {
	case errors.As(err, &rateLimited):
		seconds := int(math.Ceil(rateLimited.Remaining.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		respondWithError(w, http.StatusTooManyRequests, CodeRateLimited, err.Error())
	case errors.Is(err, poolDomain.ErrRateLimited):
		respondWithError(w, http.StatusTooManyRequests, CodeRateLimited, err.Error())
	case errors.Is(err, poolDomain.ErrLeaseNotFound),
		errors.Is(err, poolDomain.ErrCountryNotFound),
		errors.Is(err, billingDomain.ErrTenantNotFound):
		respondWithError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, poolDomain.ErrNotLeaseOwner):
		respondWithError(w, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, poolDomain.ErrLeaseNotActive):
		respondWithError(w, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, billingDomain.ErrInsufficientBalance):
		respondWithError(w, http.StatusConflict, CodeInsufficientBalance, err.Error())
	case errors.Is(err, poolDomain.ErrAllocationDisabled):
		respondWithError(w, http.StatusServiceUnavailable, CodeMaintenance, err.Error())
	case errors.Is(err, billingDomain.ErrBelowMinimumWithdrawal),
		errors.Is(err, billingDomain.ErrInvalidAmount),
		errors.Is(err, settingsDomain.ErrInvalidSettings):
		respondWithError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, database.ErrStoreUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, CodeUnavailable, "Store temporarily unavailable")
	default:
		respondWithError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
