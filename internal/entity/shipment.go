package entity

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/parcel/internal/lifecycle"
)

// Shipment tracks one order's parcel through the carrier lifecycle.
type Shipment struct {
	bun.BaseModel `bun:"table:shipments,alias:s"`

	ID                string           `bun:"id,pk"`
	MerchantReference string           `bun:"merchant_reference,notnull"`
	Carrier           string           `bun:"carrier,notnull"`
	Barcode           string           `bun:"barcode,notnull"`
	CarrierShipmentID string           `bun:"carrier_shipment_id,nullzero"`
	TrackingCode      string           `bun:"tracking_code,nullzero"`
	Recipient         Recipient        `bun:"embed:recipient_"`
	Parcel            Parcel           `bun:"embed:parcel_"`
	Status            lifecycle.Status `bun:"status,notnull"`
	StatusReason      string           `bun:"status_reason,nullzero"`
	LabelBlob         string           `bun:"label_blob,nullzero"`
	LabelContentType  string           `bun:"label_content_type,nullzero"`
	LabelFetchedAt    time.Time        `bun:"label_fetched_at,nullzero"`
	Signature         string           `bun:"signature,nullzero"`
	SignatureAt       time.Time        `bun:"signature_at,nullzero"`
	HasUnseenUpdate   bool             `bun:"has_unseen_update,notnull"`
	CreatedAt         time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Recipient is the delivery address of a shipment.
type Recipient struct {
	Name       string `bun:"name,notnull"`
	Address1   string `bun:"address1,notnull"`
	Address2   string `bun:"address2,nullzero"`
	PostalCode string `bun:"postal_code,notnull"`
	City       string `bun:"city,notnull"`
	Country    string `bun:"country,notnull"`
}

// Parcel holds the physical dimensions handed to the carrier.
type Parcel struct {
	WeightGrams int     `bun:"weight_grams,notnull"`
	LengthCM    float64 `bun:"length_cm,notnull"`
	WidthCM     float64 `bun:"width_cm,notnull"`
	HeightCM    float64 `bun:"height_cm,notnull"`
}

// HasCarrierID reports whether the carrier identifier has been recorded.
func (s *Shipment) HasCarrierID() bool {
	return s != nil && s.CarrierShipmentID != ""
}
