package app

import (
	"context"
	"time"

	"github.com/aradsms/otp_gateway/internal/billing_service/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockTenantRepository struct {
	mock.Mock
}

func (m *MockTenantRepository) Ensure(ctx context.Context, tenantID int64, now time.Time) (*domain.Tenant, error) {
	args := m.Called(ctx, tenantID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantRepository) Get(ctx context.Context, tenantID int64) (*domain.Tenant, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantRepository) Credit(ctx context.Context, tenantID int64, amount decimal.Decimal, now time.Time) (*domain.Tenant, error) {
	args := m.Called(ctx, tenantID, amount, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantRepository) Debit(ctx context.Context, tenantID int64, amount decimal.Decimal, now time.Time) (*domain.Tenant, error) {
	args := m.Called(ctx, tenantID, amount, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantRepository) CreditForMessage(ctx context.Context, credit domain.MessageCredit) (*domain.CreditResult, error) {
	args := m.Called(ctx, credit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreditResult), args.Error(1)
}

func (m *MockTenantRepository) SetBanned(ctx context.Context, tenantID int64, banned bool) error {
	return m.Called(ctx, tenantID, banned).Error(0)
}

func (m *MockTenantRepository) RecordNumbersTaken(ctx context.Context, tenantID int64, count int, day time.Time) error {
	return m.Called(ctx, tenantID, count, day).Error(0)
}

func (m *MockTenantRepository) Summary(ctx context.Context, day, activeSince time.Time) (*domain.LedgerSummary, error) {
	args := m.Called(ctx, day, activeSince)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerSummary), args.Error(1)
}

func (m *MockTenantRepository) GetDailyStats(ctx context.Context, tenantID int64, day time.Time) (*domain.DailyStats, error) {
	args := m.Called(ctx, tenantID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyStats), args.Error(1)
}
