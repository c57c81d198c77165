package shipment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/cache"
	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/entity"
	"github.com/Additional-Code/parcel/internal/lifecycle"
	"github.com/Additional-Code/parcel/internal/reconcile"
	"github.com/Additional-Code/parcel/internal/repository/event"
	repo "github.com/Additional-Code/parcel/internal/repository/shipment"
	"github.com/Additional-Code/parcel/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/parcel/service/shipment")

const maxBarcodeAttempts = 5

// Service is the owner-facing API over shipments.
type Service struct {
	repo       *repo.Repository
	ledger     *event.Ledger
	dispatcher reconcile.Dispatcher
	cache      cache.Store
	cacheTTL   time.Duration
	carrier    string
	logger     *zap.Logger
	barcode    func() (string, error)
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Ledger     *event.Ledger
	Dispatcher reconcile.Dispatcher
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	store := p.Cache
	if store == nil {
		store = cache.NoopStore()
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       p.Repository,
		ledger:     p.Ledger,
		dispatcher: p.Dispatcher,
		cache:      store,
		cacheTTL:   p.Config.Cache.DefaultTTL,
		carrier:    p.Config.Carrier.Name,
		logger:     logger,
		barcode:    NewBarcode,
	}
}

// CreateInput is a validated order placement.
type CreateInput struct {
	MerchantReference string
	Recipient         entity.Recipient
	Parcel            entity.Parcel
}

// Create records a new shipment in pending_creation and queues the carrier
// creation flow. A dispatch failure is logged; the shipment can be retried.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShipmentService.Create", trace.WithAttributes(attribute.String("shipment.reference", in.MerchantReference)))
	defer span.End()

	var shipment *entity.Shipment
	for attempt := 1; ; attempt++ {
		barcode, err := s.barcode()
		if err != nil {
			return nil, errorbank.Internal("failed to generate barcode", errorbank.WithCause(err))
		}
		shipment = &entity.Shipment{
			ID:                uuid.NewString(),
			MerchantReference: in.MerchantReference,
			Carrier:           s.carrier,
			Barcode:           barcode,
			Recipient:         in.Recipient,
			Parcel:            in.Parcel,
			Status:            lifecycle.StatusPendingCreation,
		}
		err = s.repo.Create(ctx, shipment)
		if err == nil {
			break
		}
		if errors.Is(err, repo.ErrDuplicateBarcode) && attempt < maxBarcodeAttempts {
			s.logger.Warn("barcode collision; regenerating", zap.Int("attempt", attempt))
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create shipment", errorbank.WithCause(err))
	}

	span.SetAttributes(attribute.String("shipment.id", shipment.ID))
	s.dispatchCreation(ctx, shipment.ID)
	return shipment, nil
}

// Get returns the shipment to its owner and clears the unseen update flag.
func (s *Service) Get(ctx context.Context, id string) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShipmentService.Get", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	shipment, err := s.repo.ReadAndClear(ctx, id)
	if err != nil {
		return nil, s.repoError(span, err, "failed to load shipment")
	}
	return shipment, nil
}

// Peek loads a shipment for operators without touching the unseen flag.
func (s *Service) Peek(ctx context.Context, id string) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShipmentService.Peek", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	shipment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.repoError(span, err, "failed to load shipment")
	}
	return shipment, nil
}

// MarkSeen acknowledges the latest update without other side effects.
func (s *Service) MarkSeen(ctx context.Context, id string) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShipmentService.MarkSeen", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	shipment, err := s.repo.MarkSeen(ctx, id)
	if err != nil {
		return nil, s.repoError(span, err, "failed to acknowledge shipment")
	}
	return shipment, nil
}

// Retry resets a stuck or failed shipment to pending_creation and queues the
// creation flow again.
func (s *Service) Retry(ctx context.Context, id string) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShipmentService.Retry", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	applied, err := s.repo.ResetForRetry(ctx, id)
	if err != nil {
		return nil, s.repoError(span, err, "failed to reset shipment")
	}
	if !applied {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, s.repoError(span, err, "failed to load shipment")
		}
		allowed := lifecycle.Strings(lifecycle.RetrySources())
		return nil, errorbank.Conflict(
			fmt.Sprintf("shipment in status %s cannot be retried; allowed statuses: %s", current.Status, strings.Join(allowed, ", ")),
			errorbank.WithDetail("status", current.Status),
			errorbank.WithDetail("allowed_statuses", allowed),
		)
	}

	s.logger.Info("shipment reset for retry", zap.String("shipment_id", id))
	s.dispatchCreation(ctx, id)

	shipment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.repoError(span, err, "failed to load shipment")
	}
	return shipment, nil
}

// Relabel re-triggers the label flow for a shipment stuck in confirming.
func (s *Service) Relabel(ctx context.Context, id string) (*entity.Shipment, error) {
	ctx, span := serviceTracer.Start(ctx, "ShipmentService.Relabel", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	shipment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.repoError(span, err, "failed to load shipment")
	}
	if shipment.Status != lifecycle.StatusConfirming {
		return nil, errorbank.Conflict(
			fmt.Sprintf("shipment in status %s cannot be relabeled; allowed statuses: %s", shipment.Status, lifecycle.StatusConfirming),
			errorbank.WithDetail("status", shipment.Status),
			errorbank.WithDetail("allowed_statuses", []string{string(lifecycle.StatusConfirming)}),
		)
	}
	if !shipment.HasCarrierID() {
		return nil, errorbank.Unprocessable("shipment has no carrier shipment id")
	}

	if err := s.dispatcher.DispatchLabel(ctx, id); err != nil {
		span.RecordError(err)
		return nil, errorbank.Unavailable("failed to queue label fetch", errorbank.WithCause(err))
	}
	return shipment, nil
}

// Events returns the carrier events recorded for a shipment.
func (s *Service) Events(ctx context.Context, id string) ([]entity.ShipmentEvent, error) {
	ctx, span := serviceTracer.Start(ctx, "ShipmentService.Events", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, s.repoError(span, err, "failed to load shipment")
	}
	events, err := s.ledger.ListByShipment(ctx, id)
	if err != nil {
		return nil, s.repoError(span, err, "failed to load events")
	}
	return events, nil
}

// Label is a decoded label artifact.
type Label struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Label returns the stored label. Labels never change once stored, so they
// are served from cache after the first read.
func (s *Service) Label(ctx context.Context, id string) (*Label, error) {
	ctx, span := serviceTracer.Start(ctx, "ShipmentService.Label", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	if label, err := s.labelFromCache(ctx, id); err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return label, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("label cache read failed", zap.String("shipment_id", id), zap.Error(err))
	}

	shipment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.repoError(span, err, "failed to load shipment")
	}
	if shipment.LabelBlob == "" {
		return nil, errorbank.NotFound("label not available yet", errorbank.WithDetail("status", shipment.Status))
	}

	data, err := base64.StdEncoding.DecodeString(shipment.LabelBlob)
	if err != nil {
		return nil, errorbank.Internal("stored label is corrupt", errorbank.WithCause(err))
	}
	label := &Label{ContentType: shipment.LabelContentType, Data: data}
	if label.ContentType == "" {
		label.ContentType = "application/pdf"
	}

	if err := s.storeLabelInCache(ctx, id, label); err != nil {
		s.logger.Warn("label cache write failed", zap.String("shipment_id", id), zap.Error(err))
	}
	return label, nil
}

func (s *Service) dispatchCreation(ctx context.Context, id string) {
	if err := s.dispatcher.DispatchCreation(ctx, id); err != nil {
		s.logger.Error("failed to queue shipment creation; retry required",
			zap.String("shipment_id", id),
			zap.Error(err),
		)
	}
}

func (s *Service) repoError(span trace.Span, err error, message string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errorbank.NotFound("shipment not found")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal(message, errorbank.WithCause(err))
}

func labelCacheKey(id string) string {
	return cache.Key("shipments", id, "label")
}

func (s *Service) labelFromCache(ctx context.Context, id string) (*Label, error) {
	return cache.GetJSON[Label](ctx, s.cache, labelCacheKey(id))
}

func (s *Service) storeLabelInCache(ctx context.Context, id string, label *Label) error {
	return cache.SetJSON(ctx, s.cache, labelCacheKey(id), label, s.cacheTTL)
}
