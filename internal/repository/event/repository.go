package event

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/parcel/internal/database"
	"github.com/Additional-Code/parcel/internal/entity"
)

var ledgerTracer = otel.Tracer("github.com/Additional-Code/parcel/repository/event")

// Ledger is the append-only log of inbound carrier events.
type Ledger struct {
	writer *bun.DB
	reader *bun.DB
}

// NewLedger wires the ledger onto the configured connections.
func NewLedger(conns *database.Connections) *Ledger {
	return &Ledger{writer: conns.Writer, reader: conns.Reader}
}

// Append inserts the event unless its event id was already recorded. It
// returns false for a duplicate; that is not an error.
func (l *Ledger) Append(ctx context.Context, ev *entity.ShipmentEvent) (bool, error) {
	if ev == nil || ev.EventID == "" {
		return false, errors.New("event id is required")
	}
	ctx, span := ledgerTracer.Start(ctx, "EventLedger.Append", trace.WithAttributes(
		attribute.String("event.id", ev.EventID),
		attribute.String("shipment.id", ev.ShipmentID),
	))
	defer span.End()

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}
	ev.OccurredAt = ev.OccurredAt.UTC()

	db := database.Conn(ctx, l.writer)
	q := db.NewInsert().Model(ev)
	if db.Dialect().Name() == dialect.MySQL {
		q = q.Ignore()
	} else {
		q = q.On("CONFLICT (event_id) DO NOTHING")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	inserted := n == 1
	span.SetAttributes(attribute.Bool("event.duplicate", !inserted))
	return inserted, nil
}

// Forget removes a recorded event so a redelivery of it is applied again.
// It undoes an Append whose follow-up work could not be completed.
func (l *Ledger) Forget(ctx context.Context, eventID string) error {
	ctx, span := ledgerTracer.Start(ctx, "EventLedger.Forget", trace.WithAttributes(attribute.String("event.id", eventID)))
	defer span.End()

	_, err := database.Conn(ctx, l.writer).NewDelete().
		Model((*entity.ShipmentEvent)(nil)).
		Where("event_id = ?", eventID).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
	}
	return err
}

// ListByShipment returns the audit trail of a shipment ordered by carrier
// event time.
func (l *Ledger) ListByShipment(ctx context.Context, shipmentID string) ([]entity.ShipmentEvent, error) {
	ctx, span := ledgerTracer.Start(ctx, "EventLedger.ListByShipment", trace.WithAttributes(attribute.String("shipment.id", shipmentID)))
	defer span.End()

	var events []entity.ShipmentEvent
	err := l.reader.NewSelect().
		Model(&events).
		Where("shipment_id = ?", shipmentID).
		Order("occurred_at ASC", "received_at ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return events, nil
}

// Count returns how many events carry the given id; it exists for audits
// and tests of the idempotency guarantee.
func (l *Ledger) Count(ctx context.Context, eventID string) (int, error) {
	return l.reader.NewSelect().Model((*entity.ShipmentEvent)(nil)).Where("event_id = ?", eventID).Count(ctx)
}
