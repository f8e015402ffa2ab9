package event

import (
	"context"
	"errors"
	"testing"

	"github.com/saas/backend/internal/domain/billing"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDispatcher_RunsAllHandlersInOrder(t *testing.T) {
	var order []string
	first := &recordingHandler{name: "first", order: &order, eventTypes: []string{billing.EventTypePaymentCompleted}}
	second := &recordingHandler{name: "second", order: &order, eventTypes: []string{billing.EventTypePaymentCompleted}}
	other := &recordingHandler{name: "other", order: &order, eventTypes: []string{billing.EventTypeInvoiceCreated}}

	d := NewDispatcher(NewHandlerRegistry(), zap.NewNop())
	d.Subscribe(first)
	d.Subscribe(second)
	d.Subscribe(other)

	err := d.Dispatch(context.Background(), newPaymentCompleted(t))

	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 0, other.count())
}

func TestDispatcher_FailureDoesNotStopOthers(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	failing := &recordingHandler{name: "failing", err: errors.New("db down")}
	panicking := &recordingHandler{name: "panicking", panicMsg: "nil map"}
	healthy := &recordingHandler{name: "healthy"}

	d := NewDispatcher(NewHandlerRegistry(), zap.New(core))
	d.Subscribe(failing, billing.EventTypePaymentCompleted)
	d.Subscribe(panicking, billing.EventTypePaymentCompleted)
	d.Subscribe(healthy, billing.EventTypePaymentCompleted)

	err := d.Dispatch(context.Background(), newPaymentCompleted(t))

	assert.ErrorContains(t, err, "db down")
	assert.ErrorContains(t, err, "panicked: nil map")
	assert.Equal(t, 1, healthy.count())
	assert.Equal(t, 2, logs.FilterMessage("event handler failed").Len())
}

func TestDispatcher_NoHandlers(t *testing.T) {
	d := NewDispatcher(NewHandlerRegistry(), zap.NewNop())
	assert.NoError(t, d.Dispatch(context.Background(), newPaymentCompleted(t)))
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	handler := newRecordingHandler(billing.EventTypePaymentCompleted)
	d := NewDispatcher(NewHandlerRegistry(), zap.NewNop())
	d.Subscribe(handler)
	d.Unsubscribe(handler)

	assert.NoError(t, d.Dispatch(context.Background(), newPaymentCompleted(t)))
	assert.Equal(t, 0, handler.count())
}
