package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	billingApp "github.com/aradsms/otp_gateway/internal/billing_service/app"
	billingDomain "github.com/aradsms/otp_gateway/internal/billing_service/domain"
	inboundDomain "github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	settingsApp "github.com/aradsms/otp_gateway/internal/settings_service/app"
	settingsDomain "github.com/aradsms/otp_gateway/internal/settings_service/domain"
	"github.com/aradsms/otp_gateway/internal/storage/memory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockLedgerSummarizer struct {
	mock.Mock
}

func (m *MockLedgerSummarizer) Summary(ctx context.Context) (*billingDomain.LedgerSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingDomain.LedgerSummary), args.Error(1)
}

func TestStatusService_Status(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	_, err := store.Numbers().Import(ctx, []poolDomain.NewNumber{
		{Number: "+14155550100", CountryCode: "US"},
		{Number: "+14155550101", CountryCode: "US"},
		{Number: "+447700900100", CountryCode: "GB"},
	}, testNow)
	require.NoError(t, err)
	_, err = store.Leases().Allocate(ctx, 7, "GB", 1, testNow)
	require.NoError(t, err)
	require.NoError(t, store.Inbox().Create(ctx,
		inboundDomain.NewInboundMessage(uuid.New(), "src-1", "hi", testNow, "+14155550100", "", inboundDomain.KindPlain)))

	ledger := billingApp.NewLedgerService(store.Tenants(), billingApp.LedgerConfig{}, discardLogger()).
		WithClock(func() time.Time { return testNow })
	_, err = ledger.Credit(ctx, 7, decimal.NewFromInt(2))
	require.NoError(t, err)
	settings := settingsApp.NewSettingsService(store.Settings(), settingsDomain.Settings{AllocationEnabled: true, BatchSize: 1, MaxActiveLeasesPerTenant: 50}, discardLogger())

	svc := NewStatusService(ledger, poolCountries{store: store}, store.Inbox(), settings, discardLogger()).
		WithClock(func() time.Time { return testNow })

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, testNow, status.GeneratedAt)
	assert.Equal(t, PoolStatus{Countries: 2, Numbers: 3, Leased: 1, Available: 2, Exhausted: []string{"GB"}}, status.Pool)
	assert.Equal(t, MessageStatus{Pending: 1}, status.Messages)
	assert.Equal(t, int64(1), status.Ledger.Tenants)
	assert.True(t, status.Ledger.TotalBalance.Equal(decimal.NewFromInt(2)))
	assert.True(t, status.Settings.AllocationEnabled)
}

func TestStatusService_SourceErrorFailsSnapshot(t *testing.T) {
	store := memory.NewStore()
	ledger := new(MockLedgerSummarizer)
	ledger.On("Summary", mock.Anything).Return(nil, errors.New("connection refused"))
	settings := settingsApp.NewSettingsService(store.Settings(), settingsDomain.Settings{}, discardLogger())

	_, err := NewStatusService(ledger, poolCountries{store: store}, store.Inbox(), settings, discardLogger()).Status(context.Background())
	assert.Error(t, err)
}

// poolCountries adapts the memory country repository to CountryLister.
type poolCountries struct {
	store *memory.Store
}

func (p poolCountries) Countries(ctx context.Context) ([]poolDomain.CountryAggregate, error) {
	return p.store.Countries().List(ctx)
}
