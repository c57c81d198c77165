package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// ShipmentEvent is an inbound carrier notification. Rows are append-only;
// EventID is the idempotency key.
type ShipmentEvent struct {
	bun.BaseModel `bun:"table:shipment_events,alias:se"`

	EventID    string    `bun:"event_id,pk"`
	ShipmentID string    `bun:"shipment_id,notnull"`
	Status     string    `bun:"status,notnull"`
	OccurredAt time.Time `bun:"occurred_at,notnull"`
	RawPayload string    `bun:"raw_payload,notnull"`
	ReceivedAt time.Time `bun:"received_at,nullzero,notnull,default:current_timestamp"`
}
