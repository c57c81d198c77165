package latelogistics

import (
	"testing"
	"time"

	"github.com/Additional-Code/parcel/internal/lifecycle"
)

func TestDecodeEventValid(t *testing.T) {
	raw := []byte(`{
		"event_id": "E1",
		"shipment_id": "S1",
		"barcode": "ABC123",
		"status": "delivered",
		"occurred_at": "2026-03-01T10:00:00+01:00",
		"location": {"latitude": 52.37, "longitude": 4.89},
		"data": {"signature_png_base64": "iVBORw0KGgo="}
	}`)

	ev, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventID != "E1" || ev.CarrierShipmentID != "S1" || ev.Barcode != "ABC123" {
		t.Fatalf("unexpected identifiers %+v", ev)
	}
	if ev.Status != lifecycle.StatusDelivered {
		t.Fatalf("unexpected status %s", ev.Status)
	}
	if !ev.OccurredAt.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected occurred_at %s", ev.OccurredAt)
	}
	if ev.Location == nil || ev.Location.Latitude != 52.37 {
		t.Fatalf("unexpected location %+v", ev.Location)
	}
	if ev.Signature != "iVBORw0KGgo=" {
		t.Fatalf("unexpected signature %q", ev.Signature)
	}
	if string(ev.Raw) != string(raw) {
		t.Fatal("raw payload must be retained verbatim")
	}
}

func TestDecodeEventFailedReason(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"event_id":"E2","shipment_id":"S1","barcode":"B","status":"failed","occurred_at":"2026-03-01T10:00:00Z","failedReason":"address not found"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.FailedReason != "address not found" {
		t.Fatalf("unexpected reason %q", ev.FailedReason)
	}
}

func TestDecodeEventRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"event_id":`,
		"missing event id": `{"shipment_id":"S1","barcode":"B","status":"created","occurred_at":"2026-03-01T10:00:00Z"}`,
		"missing barcode":  `{"event_id":"E","shipment_id":"S1","status":"created","occurred_at":"2026-03-01T10:00:00Z"}`,
		"unknown status":   `{"event_id":"E","shipment_id":"S1","barcode":"B","status":"lost","occurred_at":"2026-03-01T10:00:00Z"}`,
		"internal status":  `{"event_id":"E","shipment_id":"S1","barcode":"B","status":"confirming","occurred_at":"2026-03-01T10:00:00Z"}`,
		"bad timestamp":    `{"event_id":"E","shipment_id":"S1","barcode":"B","status":"created","occurred_at":"yesterday"}`,
		"partial location": `{"event_id":"E","shipment_id":"S1","barcode":"B","status":"created","occurred_at":"2026-03-01T10:00:00Z","location":{"latitude":1}}`,
		"empty signature":  `{"event_id":"E","shipment_id":"S1","barcode":"B","status":"delivered","occurred_at":"2026-03-01T10:00:00Z","data":{}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeEvent([]byte(body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
