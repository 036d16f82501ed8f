package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/domain"
	"github.com/aradsms/otp_gateway/internal/inbound_processor_service/extractor"
	"github.com/aradsms/otp_gateway/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSMSProcessor_ProcessEvent_FastPath(t *testing.T) {
	f := setupRouter(t)
	ctx := context.Background()
	f.notifier.On("NotifyTenant", mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("DeleteSource", mock.Anything, mock.Anything).Return(nil)
	processor := NewSMSProcessor(f.store.Inbox(), extractor.New(), f.router, discardLogger())

	otp, err := processor.ProcessEvent(ctx, domain.FeedEvent{
		SourceMessageID: "feed-1",
		Text:            "+14155550100: Your code is 483920",
		ReceivedAt:      baseTime,
	})
	require.NoError(t, err)
	require.NotNil(t, otp)
	assert.Equal(t, domain.KindOTP, otp.Kind)
	assert.Equal(t, "483920", otp.Code.String)
	assert.Equal(t, domain.StateRouted, f.store.Inbox().Get(otp.ID).State)

	plain, err := processor.ProcessEvent(ctx, domain.FeedEvent{
		SourceMessageID: "feed-2",
		Text:            "+14155550100: Hello, how are you?",
		ReceivedAt:      baseTime,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.KindPlain, plain.Kind)
	assert.Equal(t, domain.StateRouted, f.store.Inbox().Get(plain.ID).State)

	tenant, err := f.ledger.GetTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, tenant.Balance.Equal(decimal.RequireFromString("0.005")), "only the OTP message earns revenue")
}

func TestSMSProcessor_ProcessEvent_IgnoresEmptyAndDuplicates(t *testing.T) {
	store := memory.NewStore()
	router := new(MockMessageRouter)
	router.On("Route", mock.Anything, mock.Anything).Return(Outcome{Kind: OutcomeUnassigned}, nil).Once()
	processor := NewSMSProcessor(store.Inbox(), extractor.New(), router, discardLogger())
	ctx := context.Background()

	msg, err := processor.ProcessEvent(ctx, domain.FeedEvent{SourceMessageID: "empty", Text: "   "})
	require.NoError(t, err)
	assert.Nil(t, msg)

	event := domain.FeedEvent{SourceMessageID: "dup", Text: "+447700900123 code 5544", ReceivedAt: baseTime}
	first, err := processor.ProcessEvent(ctx, event)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := processor.ProcessEvent(ctx, event)
	require.NoError(t, err)
	assert.Nil(t, second)
	router.AssertNumberOfCalls(t, "Route", 1)
}

func TestSMSProcessor_ProcessEvent_FastPathErrorLeavesPending(t *testing.T) {
	store := memory.NewStore()
	router := new(MockMessageRouter)
	router.On("Route", mock.Anything, mock.Anything).Return(Outcome{}, errors.New("ledger unavailable")).Once()
	processor := NewSMSProcessor(store.Inbox(), extractor.New(), router, discardLogger())

	msg, err := processor.ProcessEvent(context.Background(), domain.FeedEvent{
		SourceMessageID: "retry-me",
		Text:            "+447700900123 code 5544",
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.False(t, msg.ReceivedAt.IsZero())
	assert.Equal(t, domain.StatePending, store.Inbox().Get(msg.ID).State)
}

func TestSMSProcessor_Run(t *testing.T) {
	store := memory.NewStore()
	router := new(MockMessageRouter)
	router.On("Route", mock.Anything, mock.Anything).Return(Outcome{Kind: OutcomeDiscarded}, nil)
	processor := NewSMSProcessor(store.Inbox(), extractor.New(), router, discardLogger())

	events := make(chan domain.FeedEvent, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- processor.Run(ctx, events) }()

	events <- domain.FeedEvent{SourceMessageID: "run-1", Text: "no number here", ReceivedAt: baseTime}
	require.Eventually(t, func() bool {
		pending, _ := store.Inbox().ListPending(context.Background(), 10)
		return len(pending) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
