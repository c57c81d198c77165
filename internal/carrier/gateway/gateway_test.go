package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Additional-Code/parcel/internal/carrier"
	"github.com/Additional-Code/parcel/internal/config"
)

func TestBuildSelectsCarrier(t *testing.T) {
	gw, dec, err := Build(config.Carrier{Name: "late_logistics", APIURL: "http://carrier.local"}, nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if gw.Name() != "late_logistics" || dec == nil {
		t.Fatalf("unexpected gateway %v %v", gw, dec)
	}

	if _, _, err := Build(config.Carrier{Name: "pigeon_post"}, nil, nil); err == nil {
		t.Fatal("expected unsupported carrier error")
	}
}

func TestWebhookURL(t *testing.T) {
	if got := WebhookURL("https://shop.example/", "late_logistics"); got != "https://shop.example/webhooks/late-logistics" {
		t.Fatalf("unexpected webhook url %s", got)
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"success":  nil,
		"timeout":  fmt.Errorf("wrapped: %w", carrier.ErrTimeout),
		"rejected": &carrier.Error{StatusCode: 400},
		"failure":  errors.New("connection refused"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %s, want %s", err, got, want)
		}
	}
}
