package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	poolDomain "github.com/aradsms/otp_gateway/internal/number_pool_service/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return m.Called(ctx, subject, data).Error(0)
}

var testSubjects = Subjects{Notify: "otp.notify.tenant", DeleteSource: "otp.feed.delete", PoolAlert: "ops.pool.exhausted"}

func newTestNotifier(p Publisher) *NATSNotifier {
	return NewNATSNotifier(p, testSubjects, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNATSNotifier_NotifyTenant(t *testing.T) {
	publisher := new(MockPublisher)
	var published []byte
	publisher.On("Publish", mock.Anything, "otp.notify.tenant", mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).([]byte) }).
		Return(nil).Once()

	err := newTestNotifier(publisher).NotifyTenant(context.Background(), domain.TenantNotification{
		TenantID: 77, Number: "+14155550100", Kind: domain.KindOTP, Code: "483920", RevenueAdded: "0.005",
	})
	require.NoError(t, err)

	var got domain.TenantNotification
	require.NoError(t, json.Unmarshal(published, &got))
	assert.Equal(t, int64(77), got.TenantID)
	assert.Equal(t, "483920", got.Code)
	publisher.AssertExpectations(t)
}

func TestNATSNotifier_DeleteSourcePublishError(t *testing.T) {
	publisher := new(MockPublisher)
	pubErr := errors.New("nats: connection closed")
	publisher.On("Publish", mock.Anything, "otp.feed.delete", mock.Anything).Return(pubErr).Once()

	err := newTestNotifier(publisher).DeleteSource(context.Background(), domain.SourceDeletion{SourceMessageID: "tg-1"})
	assert.ErrorIs(t, err, pubErr)
	publisher.AssertExpectations(t)
}

func TestNATSNotifier_PoolExhausted(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, "ops.pool.exhausted", mock.MatchedBy(func(data []byte) bool {
		var alert domain.PoolExhaustedAlert
		return json.Unmarshal(data, &alert) == nil && alert.CountryCode == "GB" && alert.Total == 3 && alert.Leased == 3
	})).Return(nil).Once()

	err := newTestNotifier(publisher).PoolExhausted(context.Background(), poolDomain.CountryAggregate{CountryCode: "GB", Total: 3, Leased: 3})
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestNATSNotifier_PacerDropsInsteadOfBlocking(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	n := NewNATSNotifier(publisher, testSubjects, 0.001, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.NotifyTenant(context.Background(), domain.TenantNotification{TenantID: 1}))

	start := time.Now()
	err := n.NotifyTenant(context.Background(), domain.TenantNotification{TenantID: 1})
	assert.ErrorIs(t, err, domain.ErrNotificationDropped)
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.NotifyTenant(ctx, domain.TenantNotification{TenantID: 1}), domain.ErrNotificationDropped)
	publisher.AssertNumberOfCalls(t, "Publish", 1)
}
