package app

import (
	"context"
	"errors"
	"testing"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/aradsms/otp_gateway/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// storeLeaseLister adapts the memory lease repository to TenantLeaseLister.
type storeLeaseLister struct {
	repo *memory.LeaseRepository
}

func (l storeLeaseLister) ListActive(ctx context.Context, tenantID int64) ([]*poolDomain.Lease, error) {
	return l.repo.ListActiveByTenant(ctx, tenantID)
}

type MockTenantLeaseLister struct {
	mock.Mock
}

func (m *MockTenantLeaseLister) ListActive(ctx context.Context, tenantID int64) ([]*poolDomain.Lease, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*poolDomain.Lease), args.Error(1)
}

func TestRefresher_RoutesOnlyTheTenantsBacklog(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()

	// Lease the second number to another tenant.
	other, err := f.store.Leases().Allocate(ctx, 99, "US", 1, baseTime)
	require.NoError(t, err)
	require.Len(t, other, 1)

	mine := f.track(t, "src-mine", leasedNumber, "483920", domain.KindOTP, baseTime)
	plain := f.track(t, "src-plain", leasedNumber, "", domain.KindPlain, baseTime.Add(1))
	theirs := f.track(t, "src-theirs", other[0].Number, "111222", domain.KindOTP, baseTime)

	f.notifier.On("NotifyTenant", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("DeleteSource", mock.Anything, mock.Anything).Return(nil)

	refresher := NewRefresher(f.store.Inbox(), storeLeaseLister{repo: f.store.Leases()}, f.router, 10, discardLogger())
	report, err := refresher.RefreshTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, RefreshReport{Numbers: 1, Pending: 2, Routed: 2, Credited: 1}, report)

	assert.Equal(t, domain.StateRouted, f.store.Inbox().Get(mine.ID).State)
	assert.Equal(t, domain.StateRouted, f.store.Inbox().Get(plain.ID).State)
	assert.Equal(t, domain.StatePending, f.store.Inbox().Get(theirs.ID).State)

	tenant, err := f.ledger.GetTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, tenant.Balance.Equal(decimal.RequireFromString("0.005")))

	again, err := refresher.RefreshTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Pending)
}

func TestRefresher_NoLeasesIsEmpty(t *testing.T) {
	leases := new(MockTenantLeaseLister)
	leases.On("ListActive", mock.Anything, int64(5)).Return([]*poolDomain.Lease{}, nil)
	router := new(MockMessageRouter)

	refresher := NewRefresher(memory.NewStore().Inbox(), leases, router, 0, discardLogger())
	report, err := refresher.RefreshTenant(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, RefreshReport{}, report)
	router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything)
}

func TestRefresher_CountsRouteFailures(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	msg := domain.NewInboundMessage(newID(), "src-1", "text", baseTime, leasedNumber, "1234", domain.KindOTP)
	require.NoError(t, store.Inbox().Create(ctx, msg))

	leases := new(MockTenantLeaseLister)
	leases.On("ListActive", mock.Anything, tenantID).Return([]*poolDomain.Lease{{Number: leasedNumber, TenantID: tenantID}}, nil)
	router := new(MockMessageRouter)
	router.On("Route", mock.Anything, mock.Anything).Return(Outcome{}, errors.New("ledger unavailable"))

	report, err := NewRefresher(store.Inbox(), leases, router, 10, discardLogger()).RefreshTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Routed)
}

func TestRefresher_LeaseListErrorIsReturned(t *testing.T) {
	leases := new(MockTenantLeaseLister)
	storeErr := errors.New("connection refused")
	leases.On("ListActive", mock.Anything, int64(5)).Return(nil, storeErr)

	_, err := NewRefresher(memory.NewStore().Inbox(), leases, new(MockMessageRouter), 10, discardLogger()).RefreshTenant(context.Background(), 5)
	assert.ErrorIs(t, err, storeErr)
}
