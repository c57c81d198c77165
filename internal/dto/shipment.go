package dto

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Additional-Code/parcel/internal/entity"
)

var countryCode = regexp.MustCompile(`^[A-Z]{2}$`)

// RecipientRequest is the delivery address supplied at order placement.
type RecipientRequest struct {
	Name       string `json:"name"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// Validate checks the recipient address.
func (r RecipientRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Address1, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Address2, validation.Length(0, 255)),
		validation.Field(&r.PostalCode, validation.Required, validation.Length(1, 16)),
		validation.Field(&r.City, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Country, validation.Required, validation.Match(countryCode).Error("must be an ISO 3166-1 alpha-2 code")),
	)
}

// ParcelRequest holds the parcel dimensions.
type ParcelRequest struct {
	WeightGrams int     `json:"weight_grams"`
	LengthCM    float64 `json:"length_cm"`
	WidthCM     float64 `json:"width_cm"`
	HeightCM    float64 `json:"height_cm"`
}

// Validate checks that all dimensions are positive.
func (p ParcelRequest) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.WeightGrams, validation.Required, validation.Min(1), validation.Max(70000)),
		validation.Field(&p.LengthCM, validation.Required, validation.Min(0.1)),
		validation.Field(&p.WidthCM, validation.Required, validation.Min(0.1)),
		validation.Field(&p.HeightCM, validation.Required, validation.Min(0.1)),
	)
}

// CreateShipmentRequest places an order and starts its shipment.
type CreateShipmentRequest struct {
	MerchantReference string           `json:"merchant_reference"`
	Recipient         RecipientRequest `json:"recipient"`
	Parcel            ParcelRequest    `json:"parcel"`
}

// Validate checks the whole request.
func (r CreateShipmentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.MerchantReference, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Recipient),
		validation.Field(&r.Parcel),
	)
}

// ShipmentResponse represents a shipment as exposed via transport layers.
type ShipmentResponse struct {
	ID                string    `json:"id"`
	MerchantReference string    `json:"merchant_reference"`
	Carrier           string    `json:"carrier"`
	Barcode           string    `json:"barcode"`
	CarrierShipmentID string    `json:"carrier_shipment_id,omitempty"`
	TrackingCode      string    `json:"tracking_code,omitempty"`
	Status            string    `json:"status"`
	StatusReason      string    `json:"status_reason,omitempty"`
	HasLabel          bool      `json:"has_label"`
	HasSignature      bool      `json:"has_signature"`
	HasUnseenUpdate   bool      `json:"has_unseen_update"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// FromShipment maps a stored shipment onto its public representation.
func FromShipment(s *entity.Shipment) ShipmentResponse {
	return ShipmentResponse{
		ID:                s.ID,
		MerchantReference: s.MerchantReference,
		Carrier:           s.Carrier,
		Barcode:           s.Barcode,
		CarrierShipmentID: s.CarrierShipmentID,
		TrackingCode:      s.TrackingCode,
		Status:            string(s.Status),
		StatusReason:      s.StatusReason,
		HasLabel:          s.LabelBlob != "",
		HasSignature:      s.Signature != "",
		HasUnseenUpdate:   s.HasUnseenUpdate,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// ShipmentEventResponse is one recorded carrier event.
type ShipmentEventResponse struct {
	EventID    string    `json:"event_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// WebhookResponse acknowledges a carrier notification.
type WebhookResponse struct {
	Status string `json:"status"`
}
