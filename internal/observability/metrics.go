package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Additional-Code/parcel"

// Metrics groups the domain instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	carrierCalls    metric.Int64Counter
	carrierDuration metric.Float64Histogram
	webhookEvents   metric.Int64Counter
	transitions     metric.Int64Counter
	tasks           metric.Int64Counter
	staleShipments  metric.Int64Gauge
}

// NewMetrics registers the shipment lifecycle instruments on provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	carrierCalls, err := meter.Int64Counter("parcel.carrier.calls",
		metric.WithDescription("Carrier API calls by operation and outcome"))
	if err != nil {
		return nil, err
	}
	carrierDuration, err := meter.Float64Histogram("parcel.carrier.duration",
		metric.WithDescription("Carrier API call latency including retries"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	webhookEvents, err := meter.Int64Counter("parcel.webhook.events",
		metric.WithDescription("Inbound carrier events by outcome"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("parcel.shipment.transitions",
		metric.WithDescription("Guarded status transitions by target status and result"))
	if err != nil {
		return nil, err
	}
	tasks, err := meter.Int64Counter("parcel.tasks",
		metric.WithDescription("Background tasks processed by name and result"))
	if err != nil {
		return nil, err
	}
	stale, err := meter.Int64Gauge("parcel.shipment.stale",
		metric.WithDescription("Shipments stuck in an intermediate status"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		carrierCalls:    carrierCalls,
		carrierDuration: carrierDuration,
		webhookEvents:   webhookEvents,
		transitions:     transitions,
		tasks:           tasks,
		staleShipments:  stale,
	}, nil
}

// CarrierCall records one gateway operation.
func (m *Metrics) CarrierCall(ctx context.Context, carrier, op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("carrier", carrier),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.carrierCalls.Add(ctx, 1, attrs)
	m.carrierDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// WebhookEvent records the outcome of one inbound event.
func (m *Metrics) WebhookEvent(ctx context.Context, carrier, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("carrier", carrier),
		attribute.String("outcome", outcome),
	))
}

// Transition records a guarded status update.
func (m *Metrics) Transition(ctx context.Context, to string, applied bool) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", to),
		attribute.Bool("applied", applied),
	))
}

// Task records a processed background task.
func (m *Metrics) Task(ctx context.Context, name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tasks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", name),
		attribute.String("result", result),
	))
}

// StaleShipments publishes the number of shipments stuck in status.
func (m *Metrics) StaleShipments(ctx context.Context, status string, count int) {
	if m == nil {
		return
	}
	m.staleShipments.Record(ctx, int64(count), metric.WithAttributes(attribute.String("status", status)))
}
