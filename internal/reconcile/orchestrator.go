// Package reconcile merges the synchronous carrier responses and the
// asynchronous carrier webhooks into one shipment status.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/carrier"
	"github.com/Additional-Code/parcel/internal/carrier/gateway"
	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/entity"
	"github.com/Additional-Code/parcel/internal/lifecycle"
	"github.com/Additional-Code/parcel/internal/observability"
	"github.com/Additional-Code/parcel/internal/repository/shipment"
)

var tracer = otel.Tracer("github.com/Additional-Code/parcel/reconcile")

// Store is the subset of the shipment repository the flows mutate through.
type Store interface {
	FindByID(ctx context.Context, id string) (*entity.Shipment, error)
	FindByCarrierShipmentID(ctx context.Context, carrierShipmentID string) (*entity.Shipment, error)
	FindByBarcode(ctx context.Context, barcode string) (*entity.Shipment, error)
	UpdateStatus(ctx context.Context, id string, status lifecycle.Status, reason string) (bool, error)
	UpdateCarrierData(ctx context.Context, id, carrierShipmentID, trackingCode string) (bool, error)
	StoreLabel(ctx context.Context, id, blob, contentType string) (bool, error)
	StoreSignature(ctx context.Context, id, signature string) error
}

// Ledger records inbound events; Append reports false for a duplicate.
type Ledger interface {
	Append(ctx context.Context, ev *entity.ShipmentEvent) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Transactor runs fn as one atomic unit. Store and Ledger calls made with
// the ctx passed to fn take part in it.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Dispatcher hands flows to background workers so callers never wait on
// the carrier.
type Dispatcher interface {
	DispatchCreation(ctx context.Context, shipmentID string) error
	DispatchLabel(ctx context.Context, shipmentID string) error
}

// Outcome summarises what happened to an inbound event.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
)

// Result describes the handling of one event.
type Result struct {
	Outcome    Outcome
	ShipmentID string
	Status     lifecycle.Status
}

// Orchestrator drives the creation, webhook and label flows.
type Orchestrator struct {
	store      Store
	ledger     Ledger
	tx         Transactor
	gateway    carrier.Gateway
	dispatcher Dispatcher
	webhookURL string
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// Params groups orchestrator dependencies.
type Params struct {
	fx.In

	Store      Store
	Ledger     Ledger
	Transactor Transactor `optional:"true"`
	Gateway    carrier.Gateway
	Dispatcher Dispatcher
	Config     config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics `optional:"true"`
}

// New constructs an Orchestrator.
func New(p Params) *Orchestrator {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:      p.Store,
		ledger:     p.Ledger,
		tx:         p.Transactor,
		gateway:    p.Gateway,
		dispatcher: p.Dispatcher,
		webhookURL: gateway.WebhookURL(p.Config.Webhook.BaseURL, p.Gateway.Name()),
		logger:     logger.Named("reconcile"),
		metrics:    p.Metrics,
	}
}

// InitiateCreation registers a shipment with the carrier. A timeout leaves
// the shipment in creation_in_flight for a webhook to resolve; a definite
// failure marks it failed. Only store errors are returned.
func (o *Orchestrator) InitiateCreation(ctx context.Context, shipmentID string) error {
	ctx, span := tracer.Start(ctx, "Orchestrator.InitiateCreation", trace.WithAttributes(attribute.String("shipment.id", shipmentID)))
	defer span.End()

	log := o.logger.With(zap.String("shipment_id", shipmentID))

	s, err := o.store.FindByID(ctx, shipmentID)
	if errors.Is(err, shipment.ErrNotFound) {
		log.Error("creation requested for unknown shipment")
		return nil
	}
	if err != nil {
		return err
	}

	applied, err := o.transition(ctx, s.ID, lifecycle.StatusCreationInFlight, "")
	if err != nil {
		return err
	}
	if !applied {
		log.Warn("creation skipped; shipment not in a creatable status", zap.String("status", string(s.Status)))
		return nil
	}

	res, err := o.gateway.CreateShipment(ctx, carrier.CreateRequest{
		Reference:  s.MerchantReference,
		Barcode:    s.Barcode,
		WebhookURL: o.webhookURL,
		Recipient:  s.Recipient,
		Parcel:     s.Parcel,
	})
	switch {
	case carrier.IsTimeout(err):
		log.Warn("carrier creation timed out; awaiting webhook", zap.Error(err))
		return nil
	case err != nil:
		log.Error("carrier creation failed", zap.Error(err))
		applied, uerr := o.transition(ctx, s.ID, lifecycle.StatusFailed, err.Error())
		if uerr != nil {
			return uerr
		}
		if !applied {
			log.Warn("failed status rejected; shipment moved on concurrently")
		}
		return nil
	}

	tracking := res.TrackingCode
	if tracking == "" {
		tracking = s.Barcode
	}
	updated, err := o.store.UpdateCarrierData(ctx, s.ID, res.ShipmentID, tracking)
	if errors.Is(err, shipment.ErrCarrierIDMismatch) {
		log.Error("carrier returned a different shipment id than already recorded", zap.String("carrier_shipment_id", res.ShipmentID))
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("carrier accepted shipment",
		zap.String("carrier_shipment_id", res.ShipmentID),
		zap.String("tracking_code", tracking),
		zap.Bool("carrier_data_written", updated),
	)
	return nil
}

// HandleEvent applies one validated carrier event. Business outcomes are
// reported in the Result; only infrastructure failures return an error.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev *carrier.Event) (Result, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.HandleEvent", trace.WithAttributes(
		attribute.String("event.id", ev.EventID),
		attribute.String("event.status", string(ev.Status)),
	))
	defer span.End()

	result, err := o.handleEvent(ctx, ev)
	if err == nil {
		span.SetAttributes(attribute.String("event.outcome", string(result.Outcome)))
		o.metrics.WebhookEvent(ctx, o.gateway.Name(), string(result.Outcome))
	}
	return result, err
}

func (o *Orchestrator) handleEvent(ctx context.Context, ev *carrier.Event) (Result, error) {
	log := o.logger.With(
		zap.String("event_id", ev.EventID),
		zap.String("carrier_shipment_id", ev.CarrierShipmentID),
		zap.String("event_status", string(ev.Status)),
	)

	s, err := o.resolve(ctx, ev)
	if errors.Is(err, shipment.ErrNotFound) {
		log.Warn("no shipment matches event; dropping", zap.String("barcode", ev.Barcode))
		return Result{Outcome: OutcomeUnmatched}, nil
	}
	if err != nil {
		return Result{}, err
	}
	log = log.With(zap.String("shipment_id", s.ID))

	// The ledger row commits only together with the event's effect, so a
	// failed attempt leaves the event_id free for the carrier's redelivery.
	var result Result
	err = o.inTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = o.applyEvent(ctx, log, s, ev)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if ev.Status == lifecycle.StatusCreated && result.Outcome == OutcomeAccepted {
		if err := o.dispatcher.DispatchLabel(ctx, s.ID); err != nil {
			log.Error("failed to dispatch label flow; releasing event for redelivery", zap.Error(err))
			if ferr := o.ledger.Forget(ctx, ev.EventID); ferr != nil {
				log.Error("failed to release event", zap.Error(ferr))
			}
			return Result{}, fmt.Errorf("dispatch label flow: %w", err)
		}
	}
	return result, nil
}

func (o *Orchestrator) applyEvent(ctx context.Context, log *zap.Logger, s *entity.Shipment, ev *carrier.Event) (Result, error) {
	inserted, err := o.ledger.Append(ctx, &entity.ShipmentEvent{
		EventID:    ev.EventID,
		ShipmentID: s.ID,
		Status:     string(ev.Status),
		OccurredAt: ev.OccurredAt,
		RawPayload: string(ev.Raw),
	})
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		log.Info("duplicate event ignored")
		return Result{Outcome: OutcomeDuplicate, ShipmentID: s.ID, Status: s.Status}, nil
	}

	if !s.HasCarrierID() {
		tracking := s.TrackingCode
		if tracking == "" {
			tracking = s.Barcode
		}
		_, err := o.store.UpdateCarrierData(ctx, s.ID, ev.CarrierShipmentID, tracking)
		switch {
		case errors.Is(err, shipment.ErrCarrierIDMismatch):
			log.Warn("event carries a different carrier id than the one recorded concurrently")
		case err != nil:
			return Result{}, err
		default:
			log.Info("carrier data backfilled from event", zap.String("tracking_code", tracking))
		}
	}

	switch ev.Status {
	case lifecycle.StatusCreated:
		// The label flow records created and confirming itself.
		return Result{Outcome: OutcomeAccepted, ShipmentID: s.ID, Status: s.Status}, nil

	case lifecycle.StatusFailed:
		return o.applyEventStatus(ctx, log, s, lifecycle.StatusFailed, ev.FailedReason)

	default:
		result, err := o.applyEventStatus(ctx, log, s, ev.Status, "")
		if err != nil {
			return result, err
		}
		if ev.Status == lifecycle.StatusDelivered && ev.Signature != "" {
			if err := o.store.StoreSignature(ctx, s.ID, ev.Signature); err != nil {
				return result, err
			}
			log.Info("proof of delivery stored")
		}
		return result, nil
	}
}

func (o *Orchestrator) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if o.tx == nil {
		return fn(ctx)
	}
	return o.tx.RunInTx(ctx, fn)
}

func (o *Orchestrator) applyEventStatus(ctx context.Context, log *zap.Logger, s *entity.Shipment, to lifecycle.Status, reason string) (Result, error) {
	applied, err := o.transition(ctx, s.ID, to, reason)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		log.Info("transition rejected", zap.String("current_status", string(s.Status)), zap.String("requested_status", string(to)))
		return Result{Outcome: OutcomeRejected, ShipmentID: s.ID, Status: s.Status}, nil
	}
	log.Info("transition applied", zap.String("status", string(to)))
	return Result{Outcome: OutcomeAccepted, ShipmentID: s.ID, Status: to}, nil
}

func (o *Orchestrator) resolve(ctx context.Context, ev *carrier.Event) (*entity.Shipment, error) {
	s, err := o.store.FindByCarrierShipmentID(ctx, ev.CarrierShipmentID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, shipment.ErrNotFound) {
		return nil, err
	}
	return o.store.FindByBarcode(ctx, ev.Barcode)
}

// FetchAndStoreLabel moves a shipment to confirming, downloads its label and
// stores it, which confirms the shipment. A failed fetch leaves the shipment
// in confirming; nothing retries automatically.
func (o *Orchestrator) FetchAndStoreLabel(ctx context.Context, shipmentID string) error {
	ctx, span := tracer.Start(ctx, "Orchestrator.FetchAndStoreLabel", trace.WithAttributes(attribute.String("shipment.id", shipmentID)))
	defer span.End()

	log := o.logger.With(zap.String("shipment_id", shipmentID))

	s, err := o.store.FindByID(ctx, shipmentID)
	if errors.Is(err, shipment.ErrNotFound) {
		log.Error("label requested for unknown shipment")
		return nil
	}
	if err != nil {
		return err
	}
	if !s.HasCarrierID() {
		log.Error("label requested before carrier shipment id is known")
		return nil
	}

	// Only a created webhook leads here; record created before confirming.
	if _, err := o.transition(ctx, s.ID, lifecycle.StatusCreated, ""); err != nil {
		return err
	}
	if _, err := o.transition(ctx, s.ID, lifecycle.StatusConfirming, ""); err != nil {
		return err
	}

	current, err := o.store.FindByID(ctx, s.ID)
	if err != nil {
		return err
	}
	if current.Status != lifecycle.StatusConfirming {
		log.Info("label flow skipped", zap.String("status", string(current.Status)))
		return nil
	}

	label, err := o.gateway.FetchLabel(ctx, current.CarrierShipmentID)
	if err != nil {
		log.Warn("label fetch failed; shipment stays confirming", zap.Error(err))
		return nil
	}

	stored, err := o.store.StoreLabel(ctx, s.ID, label.Data, label.ContentType)
	if err != nil {
		return err
	}
	o.metrics.Transition(ctx, string(lifecycle.StatusConfirmed), stored)
	if !stored {
		log.Info("label not stored; shipment left confirming concurrently")
		return nil
	}
	log.Info("label stored; shipment confirmed")
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, id string, to lifecycle.Status, reason string) (bool, error) {
	applied, err := o.store.UpdateStatus(ctx, id, to, reason)
	if err != nil {
		return false, err
	}
	o.metrics.Transition(ctx, string(to), applied)
	return applied, nil
}
