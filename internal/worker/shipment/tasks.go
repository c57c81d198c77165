package shipment

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/messaging"
	"github.com/Additional-Code/parcel/internal/reconcile"
	"github.com/Additional-Code/parcel/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/parcel/worker/shipment")

// Flows are the orchestrator entry points run by the workers.
type Flows interface {
	InitiateCreation(ctx context.Context, shipmentID string) error
	FetchAndStoreLabel(ctx context.Context, shipmentID string) error
}

// Module registers shipment task handlers.
var Module = fx.Module("worker_shipment",
	fx.Provide(
		func(o *reconcile.Orchestrator) Flows { return o },
		fx.Annotate(
			NewCreateHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			NewLabelHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewCreateHandler runs the carrier creation flow for queued shipments.
func NewCreateHandler(flows Flows, logger *zap.Logger) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Task:    reconcile.TaskCreateShipment,
		Handler: taskHandler("worker.shipments.create", logger, flows.InitiateCreation),
	}
}

// NewLabelHandler runs the label flow after a created webhook.
func NewLabelHandler(flows Flows, logger *zap.Logger) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Task:    reconcile.TaskFetchLabel,
		Handler: taskHandler("worker.shipments.label", logger, flows.FetchAndStoreLabel),
	}
}

func taskHandler(name string, logger *zap.Logger, run func(context.Context, string) error) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, name, trace.WithAttributes(
			attribute.String("messaging.task", msg.Task()),
		))
		defer span.End()

		shipmentID, err := reconcile.DecodeTask(msg)
		if err != nil {
			logger.Error("failed to decode task", zap.String("task", msg.Task()), zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.String("shipment.id", shipmentID))

		if err := run(ctx, shipmentID); err != nil {
			logger.Error("task failed",
				zap.String("task", msg.Task()),
				zap.String("shipment_id", shipmentID),
				zap.Error(err),
			)

			span.RecordError(err)
			span.SetStatus(codes.Error, "task failed")
			return err
		}
		return nil
	}
}
