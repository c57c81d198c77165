package observability

import (
	"context"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetricsRecordShipmentLifecycle(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), carrierLatencyView())
	m, err := NewMetrics(provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.CarrierCall(ctx, "late_logistics", "create", "timeout", 65*time.Second)
	m.WebhookEvent(ctx, "late_logistics", "duplicate")
	m.Transition(ctx, "confirming", true)
	m.Transition(ctx, "delivered", false)
	m.StaleShipments(ctx, "creation_in_flight", 3)

	got := collect(t, reader)
	for _, name := range []string{"parcel.carrier.calls", "parcel.carrier.duration", "parcel.webhook.events", "parcel.shipment.transitions", "parcel.shipment.stale"} {
		if _, ok := got[name]; !ok {
			t.Fatalf("missing metric %s in %v", name, got)
		}
	}

	hist, ok := got["parcel.carrier.duration"].(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("unexpected histogram %#v", got["parcel.carrier.duration"])
	}
	if len(hist.DataPoints[0].Bounds) != len(carrierLatencyBuckets) {
		t.Fatalf("expected carrier latency buckets, got %v", hist.DataPoints[0].Bounds)
	}

	transitions := got["parcel.shipment.transitions"].(metricdata.Sum[int64])
	if len(transitions.DataPoints) != 2 {
		t.Fatalf("expected applied and rejected series, got %d", len(transitions.DataPoints))
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.CarrierCall(ctx, "late_logistics", "label", "success", time.Second)
	m.WebhookEvent(ctx, "late_logistics", "accepted")
	m.Transition(ctx, "failed", true)
	m.Task(ctx, "shipment.create", nil)
	m.StaleShipments(ctx, "confirming", 0)
}
