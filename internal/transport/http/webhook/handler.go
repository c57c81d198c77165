// Package webhook receives carrier status notifications.
package webhook

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/carrier"
	"github.com/Additional-Code/parcel/internal/carrier/gateway"
	"github.com/Additional-Code/parcel/internal/dto"
	"github.com/Additional-Code/parcel/internal/presentation/http/response"
	"github.com/Additional-Code/parcel/internal/reconcile"
	"github.com/Additional-Code/parcel/pkg/errorbank"
)

const maxBodyBytes = 1 << 20

var httpTracer = otel.Tracer("github.com/Additional-Code/parcel/transport/http/webhook")

// EventHandler applies a decoded carrier event.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *carrier.Event) (reconcile.Result, error)
}

// Handler answers carrier webhook calls. Only a malformed payload is
// refused; business rejections are acknowledged so the carrier stops
// redelivering.
type Handler struct {
	decoder carrier.EventDecoder
	events  EventHandler
	logger  *zap.Logger
}

// Params groups handler dependencies.
type Params struct {
	fx.In

	Decoder carrier.EventDecoder
	Events  EventHandler
	Logger  *zap.Logger
}

// NewHandler constructs a webhook Handler.
func NewHandler(p Params) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{decoder: p.Decoder, events: p.Events, logger: logger.Named("webhook")}
}

// Register mounts the handler at the carrier's webhook path.
func Register(e *echo.Echo, carrierName string, h *Handler) {
	e.POST(gateway.WebhookPath(carrierName), h.receive)
}

func (h *Handler) receive(c echo.Context) error {
	b := response.New(c)

	ctx, span := httpTracer.Start(c.Request().Context(), "webhooks.receive")
	defer span.End()

	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
	if err != nil {
		return b.WithError(errorbank.BadRequest("unreadable body", errorbank.WithCause(err))).Build()
	}

	ev, err := h.decoder.DecodeEvent(raw)
	if err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		return b.WithError(errorbank.BadRequest("invalid webhook payload", errorbank.WithCause(err), errorbank.WithDetail("fields", dto.FieldErrors(err)))).Build()
	}
	span.SetAttributes(
		attribute.String("event.id", ev.EventID),
		attribute.String("event.status", string(ev.Status)),
	)

	result, err := h.events.HandleEvent(ctx, ev)
	if err != nil {
		h.logger.Error("webhook processing failed", zap.String("event_id", ev.EventID), zap.Error(err))
		return b.WithError(errorbank.Internal("failed to process event", errorbank.WithCause(err))).Build()
	}

	return b.WithStatus(http.StatusOK).WithData(dto.WebhookResponse{Status: string(result.Outcome)}).Build()
}
