package http

import (
	"time"

	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenericErrorResponse for API errors. Code is a stable machine-readable identifier.
type GenericErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AllocateRequest asks for numbers of one country. Count 0 means the configured batch size.
type AllocateRequest struct {
	CountryCode string `json:"country_code" validate:"required,max=8"`
	Count       int    `json:"count" validate:"gte=0,lte=100"`
}

// LeaseDTO is the tenant-facing view of a lease.
type LeaseDTO struct {
	ID             uuid.UUID       `json:"id"`
	Number         string          `json:"number"`
	CountryCode    string          `json:"country_code"`
	CountryFlag    string          `json:"country_flag,omitempty"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	ReleasedAt     *time.Time      `json:"released_at,omitempty"`
	MessagesRouted int64           `json:"messages_routed"`
	RevenueAccrued decimal.Decimal `json:"revenue_accrued"`
	LastMessageAt  *time.Time      `json:"last_message_at,omitempty"`
}

// AllocateResponse lists the leases created by one allocation call.
type AllocateResponse struct {
	Numbers     []LeaseDTO `json:"numbers"`
	Requested   int        `json:"requested"`
	Partial     bool       `json:"partial"`
	ActiveCount int        `json:"active_count"`
	MaxActive   int        `json:"max_active"`
}

// ListLeasesResponse lists a tenant's active leases.
type ListLeasesResponse struct {
	Numbers []LeaseDTO `json:"numbers"`
	Count   int        `json:"count"`
}

// ReleaseRequest selects soft (default) or hard release.
type ReleaseRequest struct {
	Hard bool `json:"hard"`
}

// ReleaseResponse reports a single release.
type ReleaseResponse struct {
	Lease   LeaseDTO `json:"lease"`
	Retired bool     `json:"retired"`
}

// ReleaseAllResponse reports how many leases were released.
type ReleaseAllResponse struct {
	Released int  `json:"released"`
	Hard     bool `json:"hard"`
}

// CountryDTO is a country aggregate with its availability.
type CountryDTO struct {
	CountryCode string `json:"country_code"`
	Name        string `json:"name"`
	Flag        string `json:"flag"`
	Total       int    `json:"total"`
	Leased      int    `json:"leased"`
	Available   int    `json:"available"`
}

// ListCountriesResponse lists every known country.
type ListCountriesResponse struct {
	Countries []CountryDTO `json:"countries"`
}

// MeResponse is the tenant's account with today's usage.
type MeResponse struct {
	Tenant *billingDomain.Tenant     `json:"tenant"`
	Today  *billingDomain.DailyStats `json:"today"`
}

// ImportNumbersRequest is an operator import batch.
type ImportNumbersRequest struct {
	Numbers []poolDomain.NewNumber `json:"numbers" validate:"required,min=1,max=10000,dive"`
}

// AmountRequest carries a money amount; JSON numbers and strings are both accepted.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// BanRequest sets or clears the ban flag.
type BanRequest struct {
	Banned bool `json:"banned"`
}

// BanResponse echoes the new ban state.
type BanResponse struct {
	TenantID int64 `json:"tenant_id"`
	Banned   bool  `json:"banned"`
}

// UnsuspendResponse confirms a lifted suspension.
type UnsuspendResponse struct {
	TenantID  int64 `json:"tenant_id"`
	Suspended bool  `json:"suspended"`
}

// UpdateSettingsRequest is a partial settings change; omitted fields are left alone.
type UpdateSettingsRequest struct {
	AllocationEnabled        *bool            `json:"allocation_enabled"`
	BatchSize                *int             `json:"batch_size" validate:"omitempty,gte=1,lte=100"`
	MaxActiveLeasesPerTenant *int             `json:"max_active_leases_per_tenant" validate:"omitempty,gte=1,lte=10000"`
	PerMessageRevenue        *decimal.Decimal `json:"per_message_revenue"`
	MinWithdrawal            *decimal.Decimal `json:"min_withdrawal"`
}

func (r UpdateSettingsRequest) toUpdate() settingsDomain.Update {
	return settingsDomain.Update{
		AllocationEnabled:        r.AllocationEnabled,
		BatchSize:                r.BatchSize,
		MaxActiveLeasesPerTenant: r.MaxActiveLeasesPerTenant,
		PerMessageRevenue:        r.PerMessageRevenue,
		MinWithdrawal:            r.MinWithdrawal,
	}
}

func toLeaseDTO(l *poolDomain.Lease) LeaseDTO {
	dto := LeaseDTO{
		ID:             l.ID,
		Number:         l.Number,
		CountryCode:    l.CountryCode,
		CountryFlag:    l.CountryFlag,
		Active:         l.Active,
		CreatedAt:      l.CreatedAt,
		MessagesRouted: l.MessagesRouted,
		RevenueAccrued: l.RevenueAccrued,
	}
	if l.ReleasedAt.Valid {
		t := l.ReleasedAt.Time
		dto.ReleasedAt = &t
	}
	if l.LastMessageAt.Valid {
		t := l.LastMessageAt.Time
		dto.LastMessageAt = &t
	}
	return dto
}

func toLeaseDTOs(leases []*poolDomain.Lease) []LeaseDTO {
	dtos := make([]LeaseDTO, len(leases))
	for i, l := range leases {
		dtos[i] = toLeaseDTO(l)
	}
	return dtos
}

func toCountryDTOs(countries []poolDomain.CountryAggregate) []CountryDTO {
	dtos := make([]CountryDTO, len(countries))
	for i, c := range countries {
		dtos[i] = CountryDTO{
			CountryCode: c.CountryCode,
			Name:        c.Name,
			Flag:        c.Flag,
			Total:       c.Total,
			Leased:      c.Leased,
			Available:   c.Available(),
		}
	}
	return dtos
}
