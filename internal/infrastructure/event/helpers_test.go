package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saas/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

// newPaymentCompleted builds the event that starts the activation saga
func newPaymentCompleted(t *testing.T) *billing.PaymentCompletedEvent {
	t.Helper()
	subID := uuid.New()
	payment, _, err := billing.NewPayment(billing.NewPaymentParams{
		TenantID:        uuid.New(),
		SubscriptionID:  &subID,
		Provider:        "stripe",
		PaymentIntentID: "pi_123",
		Amount:          decimal.NewFromInt(100),
		Currency:        billing.USD,
	}, testNow)
	require.NoError(t, err)

	_, events, err := payment.Complete("ch_1", nil, testNow.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0].(*billing.PaymentCompletedEvent)
}

func newSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterBillingEvents(s)
	return s
}
