package shipment

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/parcel/internal/database"
	"github.com/Additional-Code/parcel/internal/entity"
	"github.com/Additional-Code/parcel/internal/lifecycle"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/parcel/repository/shipment")

var (
	// ErrNotFound is returned when a shipment is missing.
	ErrNotFound = errors.New("shipment not found")
	// ErrDuplicateBarcode is returned when a generated barcode collides.
	ErrDuplicateBarcode = errors.New("shipment barcode already exists")
	// ErrCarrierIDMismatch is returned when a different carrier shipment id is
	// already recorded. The stored id is never overwritten.
	ErrCarrierIDMismatch = errors.New("carrier shipment id already set to a different value")
)

// Repository persists shipments. Every status mutation is a single
// conditional UPDATE whose WHERE clause encodes the transition table, so
// the legality check and the write are one atomic statement.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
	now    func() time.Time
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// Create persists a new shipment using the write connection.
func (r *Repository) Create(ctx context.Context, s *entity.Shipment) error {
	if s == nil {
		return errors.New("nil shipment")
	}
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.Create", trace.WithAttributes(attribute.String("shipment.barcode", s.Barcode)))
	defer span.End()

	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	s.CreatedAt = s.CreatedAt.UTC().Truncate(time.Microsecond)
	s.UpdatedAt = s.CreatedAt

	if _, err := r.conn(ctx).NewInsert().Model(s).Exec(ctx); err != nil {
		if isUniqueViolation(err) && strings.Contains(strings.ToLower(err.Error()), "barcode") {
			return ErrDuplicateBarcode
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// FindByID loads a shipment without touching the unseen-update flag. The
// orchestrator reads from the writer to avoid replica lag between steps.
func (r *Repository) FindByID(ctx context.Context, id string) (*entity.Shipment, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.FindByID", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	return r.findOne(ctx, span, r.conn(ctx), "id = ?", id)
}

// FindByCarrierShipmentID resolves a shipment from the carrier's identifier.
func (r *Repository) FindByCarrierShipmentID(ctx context.Context, carrierShipmentID string) (*entity.Shipment, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.FindByCarrierShipmentID", trace.WithAttributes(attribute.String("shipment.carrier_id", carrierShipmentID)))
	defer span.End()

	if carrierShipmentID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, span, r.conn(ctx), "carrier_shipment_id = ?", carrierShipmentID)
}

// FindByBarcode resolves a shipment from its barcode.
func (r *Repository) FindByBarcode(ctx context.Context, barcode string) (*entity.Shipment, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.FindByBarcode", trace.WithAttributes(attribute.String("shipment.barcode", barcode)))
	defer span.End()

	if barcode == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, span, r.conn(ctx), "barcode = ?", barcode)
}

func (r *Repository) findOne(ctx context.Context, span trace.Span, db bun.IDB, where string, arg any) (*entity.Shipment, error) {
	s := new(entity.Shipment)
	err := db.NewSelect().Model(s).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return s, nil
}

// ReadAndClear returns the shipment to its owner and clears the unseen
// update flag in the same transaction. The clear is conditioned on
// updated_at so a mutation racing the read keeps the flag raised.
func (r *Repository) ReadAndClear(ctx context.Context, id string) (*entity.Shipment, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.ReadAndClear", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	var out *entity.Shipment
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		s, err := r.findOne(ctx, span, tx, "id = ?", id)
		if err != nil {
			return err
		}
		out = s
		if !s.HasUnseenUpdate {
			return nil
		}
		res, err := tx.NewUpdate().
			Model((*entity.Shipment)(nil)).
			Set("has_unseen_update = ?", false).
			Where("id = ?", id).
			Where("updated_at = ?", s.UpdatedAt).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected(res) == 1 {
			out.HasUnseenUpdate = false
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read and clear failed")
	}
	return out, err
}

// MarkSeen explicitly acknowledges the latest update.
func (r *Repository) MarkSeen(ctx context.Context, id string) (*entity.Shipment, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.MarkSeen", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	res, err := r.conn(ctx).NewUpdate().
		Model((*entity.Shipment)(nil)).
		Set("has_unseen_update = ?", false).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, err
	}
	if affected(res) == 0 {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, span, r.conn(ctx), "id = ?", id)
}

// UpdateStatus applies a guarded transition. It reports whether the write
// happened; false means the current status does not permit moving to
// status. Reason is stored alongside, and is expected whenever status is
// failed.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status lifecycle.Status, reason string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.UpdateStatus", trace.WithAttributes(
		attribute.String("shipment.id", id),
		attribute.String("shipment.status", string(status)),
	))
	defer span.End()

	from := lifecycle.Predecessors(status)
	if len(from) == 0 {
		return false, r.ensureExists(ctx, span, id)
	}

	q := r.conn(ctx).NewUpdate().
		Model((*entity.Shipment)(nil)).
		Set("status = ?", status).
		Set("has_unseen_update = ?", true).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(lifecycle.Strings(from)))
	if reason != "" || status == lifecycle.StatusFailed {
		q = q.Set("status_reason = ?", nullIfEmpty(reason))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	if affected(res) == 1 {
		return true, nil
	}
	span.SetAttributes(attribute.Bool("shipment.transition_rejected", true))
	return false, r.ensureExists(ctx, span, id)
}

// ResetForRetry moves a shipment back to pending_creation, but only from
// one of the retry source states.
func (r *Repository) ResetForRetry(ctx context.Context, id string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.ResetForRetry", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	res, err := r.conn(ctx).NewUpdate().
		Model((*entity.Shipment)(nil)).
		Set("status = ?", lifecycle.StatusPendingCreation).
		Set("status_reason = NULL").
		Set("has_unseen_update = ?", true).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(lifecycle.Strings(lifecycle.RetrySources()))).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	if affected(res) == 1 {
		return true, nil
	}
	return false, r.ensureExists(ctx, span, id)
}

// UpdateCarrierData records the carrier identifiers exactly once. Repeating
// the call with the same carrier id is a no-op; a different id yields
// ErrCarrierIDMismatch. The only permitted rewrite is replacing a
// barcode-derived tracking code with the carrier's real one.
func (r *Repository) UpdateCarrierData(ctx context.Context, id, carrierShipmentID, trackingCode string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.UpdateCarrierData", trace.WithAttributes(
		attribute.String("shipment.id", id),
		attribute.String("shipment.carrier_id", carrierShipmentID),
	))
	defer span.End()

	if carrierShipmentID == "" {
		return false, errors.New("carrier shipment id is required")
	}

	res, err := r.conn(ctx).NewUpdate().
		Model((*entity.Shipment)(nil)).
		Set("carrier_shipment_id = ?", carrierShipmentID).
		Set("tracking_code = ?", nullIfEmpty(trackingCode)).
		Set("has_unseen_update = ?", true).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Where("carrier_shipment_id IS NULL").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	if affected(res) == 1 {
		return true, nil
	}

	current, err := r.findOne(ctx, span, r.conn(ctx), "id = ?", id)
	if err != nil {
		return false, err
	}
	if current.CarrierShipmentID != carrierShipmentID {
		span.SetStatus(codes.Error, "carrier id mismatch")
		return false, ErrCarrierIDMismatch
	}
	if trackingCode == "" || trackingCode == current.TrackingCode || current.TrackingCode != current.Barcode {
		return false, nil
	}

	res, err = r.conn(ctx).NewUpdate().
		Model((*entity.Shipment)(nil)).
		Set("tracking_code = ?", trackingCode).
		Set("has_unseen_update = ?", true).
		Set("updated_at = ?", r.now()).
		Where("id = ?", id).
		Where("carrier_shipment_id = ?", carrierShipmentID).
		Where("tracking_code = barcode").
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	return affected(res) == 1, nil
}

// StoreLabel persists the label artifact and advances confirming to
// confirmed in one statement. It reports false when the shipment is no
// longer confirming.
func (r *Repository) StoreLabel(ctx context.Context, id, blob, contentType string) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.StoreLabel", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	now := r.now()
	res, err := r.conn(ctx).NewUpdate().
		Model((*entity.Shipment)(nil)).
		Set("label_blob = ?", blob).
		Set("label_content_type = ?", nullIfEmpty(contentType)).
		Set("label_fetched_at = ?", now).
		Set("status = ?", lifecycle.StatusConfirmed).
		Set("has_unseen_update = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(lifecycle.Strings(lifecycle.Predecessors(lifecycle.StatusConfirmed)))).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	if affected(res) == 1 {
		return true, nil
	}
	return false, r.ensureExists(ctx, span, id)
}

// StoreSignature persists the proof-of-delivery artifact. It is independent
// of the status column.
func (r *Repository) StoreSignature(ctx context.Context, id, signature string) error {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.StoreSignature", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	now := r.now()
	res, err := r.conn(ctx).NewUpdate().
		Model((*entity.Shipment)(nil)).
		Set("signature = ?", signature).
		Set("signature_at = ?", now).
		Set("has_unseen_update = ?", true).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	if affected(res) == 0 {
		return ErrNotFound
	}
	return nil
}

// StatusCount is one row of CountStale.
type StatusCount struct {
	Status lifecycle.Status `bun:"status"`
	Count  int              `bun:"count"`
}

// CountStale counts shipments that have sat in one of statuses since before
// cutoff. It reads from the replica.
func (r *Repository) CountStale(ctx context.Context, statuses []lifecycle.Status, cutoff time.Time) ([]StatusCount, error) {
	ctx, span := repoTracer.Start(ctx, "ShipmentRepository.CountStale")
	defer span.End()

	var rows []StatusCount
	err := r.reader.NewSelect().
		Model((*entity.Shipment)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Where("status IN (?)", bun.In(lifecycle.Strings(statuses))).
		Where("updated_at < ?", cutoff.UTC()).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return rows, nil
}

func (r *Repository) ensureExists(ctx context.Context, span trace.Span, id string) error {
	exists, err := r.conn(ctx).NewSelect().Model((*entity.Shipment)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !exists {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	return nil
}

// conn joins a transaction started with database.Connections.RunInTx.
func (r *Repository) conn(ctx context.Context) bun.IDB {
	return database.Conn(ctx, r.writer)
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint") ||
		strings.Contains(message, "duplicate entry")
}
