package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Handler outcomes recorded by BillingMetrics.EventHandled.
const (
	OutcomeSuccess    = "success"
	OutcomeRetry      = "retry"
	OutcomeDeadLetter = "dead_letter"
	OutcomeDuplicate  = "duplicate"
)

// BillingMetrics records the saga's business and delivery metrics. All
// methods are safe on a nil receiver so callers never need to guard.
type BillingMetrics struct {
	eventsPublished  metric.Int64Counter
	eventsHandled    metric.Int64Counter
	handleDuration   metric.Float64Histogram
	webhooksReceived metric.Int64Counter
	invoicesIssued   metric.Int64Counter
	invoiceAmount    metric.Float64Histogram
	subscriptions    metric.Int64Counter
	expirySweeps     metric.Int64Counter
}

// NewBillingMetrics registers every instrument on meter.
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	m := &BillingMetrics{}
	var err error

	if m.eventsPublished, err = meter.Int64Counter("billing_events_published_total",
		metric.WithDescription("Domain events handed to the publisher"),
		metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("events published counter: %w", err)
	}
	if m.eventsHandled, err = meter.Int64Counter("billing_events_handled_total",
		metric.WithDescription("Event handler invocations by outcome"),
		metric.WithUnit("{event}")); err != nil {
		return nil, fmt.Errorf("events handled counter: %w", err)
	}
	if m.handleDuration, err = meter.Float64Histogram("billing_event_handle_duration_seconds",
		metric.WithDescription("Time spent handling one event"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10)); err != nil {
		return nil, fmt.Errorf("handle duration histogram: %w", err)
	}
	if m.webhooksReceived, err = meter.Int64Counter("billing_webhooks_received_total",
		metric.WithDescription("Payment provider webhooks by provider and result"),
		metric.WithUnit("{webhook}")); err != nil {
		return nil, fmt.Errorf("webhooks counter: %w", err)
	}
	if m.invoicesIssued, err = meter.Int64Counter("billing_invoices_created_total",
		metric.WithDescription("Invoices created"),
		metric.WithUnit("{invoice}")); err != nil {
		return nil, fmt.Errorf("invoices counter: %w", err)
	}
	if m.invoiceAmount, err = meter.Float64Histogram("billing_invoice_total_amount",
		metric.WithDescription("Invoice totals in major currency units"),
		metric.WithExplicitBucketBoundaries(10, 50, 100, 500, 1000, 5000, 10000)); err != nil {
		return nil, fmt.Errorf("invoice amount histogram: %w", err)
	}
	if m.subscriptions, err = meter.Int64Counter("billing_subscription_transitions_total",
		metric.WithDescription("Subscription status transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, fmt.Errorf("subscription counter: %w", err)
	}
	if m.expirySweeps, err = meter.Int64Counter("billing_expired_total",
		metric.WithDescription("Subscriptions and trials expired by the scheduler"),
		metric.WithUnit("{aggregate}")); err != nil {
		return nil, fmt.Errorf("expiry counter: %w", err)
	}
	return m, nil
}

// EventPublished counts one event leaving the write side.
func (m *BillingMetrics) EventPublished(ctx context.Context, eventType, publisher string) {
	if m == nil {
		return
	}
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("publisher", publisher),
	))
}

// EventHandled records one handler invocation and how long it took.
func (m *BillingMetrics) EventHandled(ctx context.Context, eventType, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	)
	m.eventsHandled.Add(ctx, 1, attrs)
	m.handleDuration.Record(ctx, took.Seconds(), attrs)
}

// WebhookReceived counts a webhook by provider and result
// (accepted, rejected, duplicate, error).
func (m *BillingMetrics) WebhookReceived(ctx context.Context, provider, result string) {
	if m == nil {
		return
	}
	m.webhooksReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("result", result),
	))
}

// InvoiceCreated counts an invoice and records its total.
func (m *BillingMetrics) InvoiceCreated(ctx context.Context, invoiceType, currency string, total decimal.Decimal) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("type", invoiceType),
		attribute.String("currency", currency),
	)
	m.invoicesIssued.Add(ctx, 1, attrs)
	m.invoiceAmount.Record(ctx, total.InexactFloat64(), attrs)
}

// SubscriptionTransition counts a subscription entering status.
func (m *BillingMetrics) SubscriptionTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.subscriptions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// Expired counts aggregates expired by a scheduled sweep.
func (m *BillingMetrics) Expired(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.expirySweeps.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}
