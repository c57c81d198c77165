package latelogistics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Additional-Code/parcel/internal/carrier"
	"github.com/Additional-Code/parcel/internal/entity"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(carrier.NewClient(2, time.Millisecond), Options{
		BaseURL:        srv.URL + "/",
		APIKey:         "secret",
		CreateTimeout:  time.Second,
		RequestTimeout: time.Second,
	}, nil)
}

func TestCreateShipmentSendsWireFormat(t *testing.T) {
	var got createPayload
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/shipments" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"shipment_id":"S1","tracking_code":"T1","barcode":"BC"}`))
	})

	res, err := gw.CreateShipment(context.Background(), carrier.CreateRequest{
		Reference:  "ORDER-1",
		Barcode:    "BC",
		WebhookURL: "https://shop.example/webhooks/late-logistics",
		Recipient:  entity.Recipient{Name: "Ada", Address1: "1 Main", PostalCode: "1011", City: "Amsterdam", Country: "NL"},
		Parcel:     entity.Parcel{WeightGrams: 500, LengthCM: 10, WidthCM: 20, HeightCM: 5},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.ShipmentID != "S1" || res.TrackingCode != "T1" || res.Barcode != "BC" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.Reference != "ORDER-1" || got.WebhookURL == "" || got.Recipient.Country != "NL" || got.Parcel.WidthCM != 20 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestCreateShipmentClientErrorIsDefinite(t *testing.T) {
	calls := 0
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"invalid postal code"}`))
	})

	_, err := gw.CreateShipment(context.Background(), carrier.CreateRequest{Reference: "X"})
	var cerr *carrier.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *carrier.Error, got %v", err)
	}
	if cerr.StatusCode != http.StatusUnprocessableEntity || cerr.Body == "" {
		t.Fatalf("unexpected error %+v", cerr)
	}
	if calls != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", calls)
	}
}

func TestCreateShipmentExhaustedServerErrors(t *testing.T) {
	calls := 0
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := gw.CreateShipment(context.Background(), carrier.CreateRequest{Reference: "X"})
	var cerr *carrier.Error
	if !errors.As(err, &cerr) || cerr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 carrier error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestCreateShipmentTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	gw := New(carrier.NewClient(2, time.Millisecond), Options{
		BaseURL:        srv.URL,
		CreateTimeout:  30 * time.Millisecond,
		RequestTimeout: time.Second,
	}, nil)

	_, err := gw.CreateShipment(context.Background(), carrier.CreateRequest{Reference: "X"})
	if !carrier.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestFetchLabel(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/shipments/S1/label" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"shipment_id":"S1","label_pdf_base64":"JVBERi0xLjQ=","content_type":"application/pdf"}`))
	})

	label, err := gw.FetchLabel(context.Background(), "S1")
	if err != nil {
		t.Fatalf("fetch label: %v", err)
	}
	if label.Data != "JVBERi0xLjQ=" || label.ContentType != "application/pdf" {
		t.Fatalf("unexpected label %+v", label)
	}
}

func TestFetchLabelNotFound(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := gw.FetchLabel(context.Background(), "S1")
	var cerr *carrier.Error
	if !errors.As(err, &cerr) || cerr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 carrier error, got %v", err)
	}
}
