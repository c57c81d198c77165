package latelogistics

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Additional-Code/parcel/internal/carrier"
	"github.com/Additional-Code/parcel/internal/lifecycle"
)

// Statuses reported by Late Logistics webhooks.
var eventStatuses = []any{
	string(lifecycle.StatusCreated),
	string(lifecycle.StatusConfirmed),
	string(lifecycle.StatusInTransit),
	string(lifecycle.StatusOutForDelivery),
	string(lifecycle.StatusDelivered),
	string(lifecycle.StatusFailed),
}

type locationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (l locationPayload) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Latitude, validation.NotNil, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&l.Longitude, validation.NotNil, validation.Min(-180.0), validation.Max(180.0)),
	)
}

type dataPayload struct {
	SignaturePNGBase64 string `json:"signature_png_base64"`
}

func (d dataPayload) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.SignaturePNGBase64, validation.Required),
	)
}

type webhookPayload struct {
	EventID      string           `json:"event_id"`
	ShipmentID   string           `json:"shipment_id"`
	Barcode      string           `json:"barcode"`
	Status       string           `json:"status"`
	OccurredAt   string           `json:"occurred_at"`
	Location     *locationPayload `json:"location,omitempty"`
	FailedReason *string          `json:"failedReason,omitempty"`
	Data         *dataPayload     `json:"data,omitempty"`
}

func (p webhookPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.EventID, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.ShipmentID, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.Barcode, validation.Required, validation.Length(1, 32)),
		validation.Field(&p.Status, validation.Required, validation.In(eventStatuses...)),
		validation.Field(&p.OccurredAt, validation.Required, validation.By(rfc3339)),
		validation.Field(&p.Location),
		validation.Field(&p.Data),
	)
}

func rfc3339(value any) error {
	s, _ := value.(string)
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return errors.New("must be an RFC3339 timestamp")
	}
	return nil
}

// DecodeEvent validates a webhook body and maps it onto a carrier event.
func (g *Gateway) DecodeEvent(raw []byte) (*carrier.Event, error) {
	return DecodeEvent(raw)
}

// DecodeEvent is the stateless form of Gateway.DecodeEvent.
func DecodeEvent(raw []byte) (*carrier.Event, error) {
	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid webhook json: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	occurredAt, _ := time.Parse(time.RFC3339, p.OccurredAt)
	ev := &carrier.Event{
		EventID:           p.EventID,
		CarrierShipmentID: p.ShipmentID,
		Barcode:           p.Barcode,
		Status:            lifecycle.Status(p.Status),
		OccurredAt:        occurredAt.UTC(),
		Raw:               append([]byte(nil), raw...),
	}
	if p.Location != nil {
		ev.Location = &carrier.Location{Latitude: *p.Location.Latitude, Longitude: *p.Location.Longitude}
	}
	if p.FailedReason != nil {
		ev.FailedReason = *p.FailedReason
	}
	if p.Data != nil {
		ev.Signature = p.Data.SignaturePNGBase64
	}
	return ev, nil
}
