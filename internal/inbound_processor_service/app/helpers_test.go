package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	billingApp "github.com/aradsms/otp_gateway/internal/billing_service/app"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	leasedNumber = "+14155550100"
	tenantID     = int64(77)
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyTenant(ctx context.Context, n domain.TenantNotification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotifier) DeleteSource(ctx context.Context, d domain.SourceDeletion) error {
	return m.Called(ctx, d).Error(0)
}

type MockMessageRouter struct {
	mock.Mock
}

func (m *MockMessageRouter) Route(ctx context.Context, msg *domain.InboundMessage) (Outcome, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(Outcome), args.Error(1)
}

// storeLeaseFinder adapts the memory lease repository to LeaseFinder.
type storeLeaseFinder struct {
	repo *memory.LeaseRepository
}

func (f storeLeaseFinder) ActiveLeaseFor(ctx context.Context, number string) (*poolDomain.Lease, error) {
	return f.repo.FindActiveByNumber(ctx, number)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type routerFixture struct {
	store    *memory.Store
	ledger   *billingApp.LedgerService
	notifier *MockNotifier
	router   *Router
	lease    *poolDomain.Lease
}

// setupRouter seeds one US number leased to tenantID.
func setupRouter(t *testing.T) *routerFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	_, err := store.Numbers().Import(ctx, []poolDomain.NewNumber{
		{Number: leasedNumber, CountryCode: "US", CountryFlag: "🇺🇸"},
		{Number: "+14155550199", CountryCode: "US", CountryFlag: "🇺🇸"},
	}, baseTime)
	require.NoError(t, err)
	leases, err := store.Leases().Allocate(ctx, tenantID, "US", 1, baseTime)
	require.NoError(t, err)
	require.Len(t, leases, 1)
	require.Equal(t, leasedNumber, leases[0].Number)

	ledger := billingApp.NewLedgerService(store.Tenants(), billingApp.LedgerConfig{
		PerMessageRevenue: decimal.RequireFromString("0.005"),
		MinWithdrawal:     decimal.RequireFromString("3.0"),
	}, discardLogger()).WithClock(func() time.Time { return baseTime })

	notifier := new(MockNotifier)
	router := NewRouter(store.Inbox(), storeLeaseFinder{repo: store.Leases()}, ledger, notifier, discardLogger()).
		WithClock(func() time.Time { return baseTime })

	return &routerFixture{store: store, ledger: ledger, notifier: notifier, router: router, lease: leases[0]}
}

// track stores a pending message built from text and returns it.
func (f *routerFixture) track(t *testing.T, sourceID, number, code string, kind domain.MessageKind, receivedAt time.Time) *domain.InboundMessage {
	t.Helper()
	msg := domain.NewInboundMessage(newID(), sourceID, "text for "+sourceID, receivedAt, number, code, kind)
	require.NoError(t, f.store.Inbox().Create(context.Background(), msg))
	return msg
}
