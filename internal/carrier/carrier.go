// Package carrier defines the contract every shipping carrier integration
// implements, plus the retrying HTTP transport they share.
package carrier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Additional-Code/parcel/internal/entity"
	"github.com/Additional-Code/parcel/internal/lifecycle"
)

// ErrTimeout reports that a carrier call hit its deadline. The outcome is
// unknown: the carrier may still have acted on the request.
var ErrTimeout = errors.New("carrier request timed out")

// Error is a definite negative answer from the carrier.
type Error struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: carrier responded %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsTimeout reports whether err is an ambiguous timeout outcome.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// CreateRequest is the carrier-agnostic shipment creation payload.
type CreateRequest struct {
	Reference  string
	Barcode    string
	WebhookURL string
	Recipient  entity.Recipient
	Parcel     entity.Parcel
}

// CreateResult carries the identifiers assigned by the carrier.
type CreateResult struct {
	ShipmentID   string
	TrackingCode string
	Barcode      string
}

// Label is a shipping label artifact, base64 encoded.
type Label struct {
	ShipmentID  string
	Data        string
	ContentType string
}

// Gateway is the capability set of one carrier.
type Gateway interface {
	Name() string
	CreateShipment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	FetchLabel(ctx context.Context, carrierShipmentID string) (*Label, error)
}

// Location is an optional geo position attached to an event.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Event is a parsed carrier webhook notification.
type Event struct {
	EventID           string
	CarrierShipmentID string
	Barcode           string
	Status            lifecycle.Status
	OccurredAt        time.Time
	Location          *Location
	FailedReason      string
	Signature         string
	Raw               []byte
}

// EventDecoder validates and parses a raw webhook body. Any error it
// returns means the payload is malformed.
type EventDecoder interface {
	DecodeEvent(raw []byte) (*Event, error)
}
