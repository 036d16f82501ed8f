package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedTenantContextKey = ContextKey("authenticatedTenant")
)

// AuthenticatedTenant holds the caller resolved from the bearer token.
type AuthenticatedTenant struct {
	ID      int64
	IsAdmin bool
}

// Claims are the JWT claims the gateway accepts. The subject carries the tenant id.
type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// TenantLookup reads tenant state for the ban check. *billing app.LedgerService implements it.
type TenantLookup interface {
	GetTenant(ctx context.Context, tenantID int64) (*billingDomain.Tenant, error)
}

// TenantFromContext returns the tenant stored by AuthMiddleware.
func TenantFromContext(ctx context.Context) (AuthenticatedTenant, bool) {
	t, ok := ctx.Value(AuthenticatedTenantContextKey).(AuthenticatedTenant)
	return t, ok
}

// WithTenant stores an authenticated tenant in ctx. Handler tests use it to skip token parsing.
func WithTenant(ctx context.Context, t AuthenticatedTenant) context.Context {
	return context.WithValue(ctx, AuthenticatedTenantContextKey, t)
}

// IssueToken signs an HS256 token for tenantID. Used by operator tooling and tests.
func IssueToken(secret string, tenantID int64, admin bool, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = strconv.FormatInt(tenantID, 10)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Admin: admin, RegisteredClaims: claims})
	return token.SignedString([]byte(secret))
}

// ParseToken validates an HS256 token and resolves its tenant.
func ParseToken(secret, tokenString string) (AuthenticatedTenant, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return AuthenticatedTenant{}, err
	}
	if !token.Valid {
		return AuthenticatedTenant{}, jwt.ErrSignatureInvalid
	}

	tenantID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || tenantID <= 0 {
		return AuthenticatedTenant{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	return AuthenticatedTenant{ID: tenantID, IsAdmin: claims.Admin}, nil
}

// AuthMiddleware authenticates bearer tokens and rejects banned tenants.
// Tenants unknown to the ledger are let through; they are created on first use.
func AuthMiddleware(secret string, tenants TenantLookup, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Authorization header missing")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.WarnContext(r.Context(), "Invalid Authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			tenant, err := ParseToken(secret, parts[1])
			if err != nil {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			if !tenant.IsAdmin {
				t, err := tenants.GetTenant(r.Context(), tenant.ID)
				switch {
				case err == nil && t.IsBanned:
					logger.WarnContext(r.Context(), "Banned tenant rejected", "tenant_id", tenant.ID)
					http.Error(w, "Tenant is banned", http.StatusForbidden)
					return
				case err != nil && !errors.Is(err, billingDomain.ErrTenantNotFound):
					logger.ErrorContext(r.Context(), "Failed to load tenant for ban check", "tenant_id", tenant.ID, "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}

// RequireAdmin lets only operator tokens through. AuthMiddleware must run first.
func RequireAdmin(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, ok := TenantFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "AuthenticatedTenant not found in context. AuthMiddleware must run first.")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !tenant.IsAdmin {
				logger.WarnContext(r.Context(), "Admin route denied", "tenant_id", tenant.ID, "path", r.URL.Path)
				http.Error(w, "Forbidden: admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
