package shipment

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/parcel/internal/dto"
	"github.com/Additional-Code/parcel/internal/entity"
	"github.com/Additional-Code/parcel/internal/presentation/http/response"
	service "github.com/Additional-Code/parcel/internal/service/shipment"
	"github.com/Additional-Code/parcel/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/parcel/transport/http/shipment")

// Handler exposes shipment endpoints over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs a shipment Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/shipments")
	g.POST("", h.create)
	g.GET("/:id", h.getByID)
	g.POST("/:id/seen", h.markSeen)
	g.POST("/:id/retry", h.retry)
	g.POST("/:id/relabel", h.relabel)
	g.GET("/:id/events", h.events)
	g.GET("/:id/label", h.label)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var payload dto.CreateShipmentRequest
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if err := payload.Validate(); err != nil {
		return b.WithError(errorbank.BadRequest("invalid shipment", errorbank.WithCause(err), errorbank.WithDetail("fields", dto.FieldErrors(err)))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "shipments.create")
	span.SetAttributes(attribute.String("shipment.reference", payload.MerchantReference))
	defer span.End()

	s, err := h.svc.Create(ctx, service.CreateInput{
		MerchantReference: payload.MerchantReference,
		Recipient: entity.Recipient{
			Name:       payload.Recipient.Name,
			Address1:   payload.Recipient.Address1,
			Address2:   payload.Recipient.Address2,
			PostalCode: payload.Recipient.PostalCode,
			City:       payload.Recipient.City,
			Country:    payload.Recipient.Country,
		},
		Parcel: entity.Parcel{
			WeightGrams: payload.Parcel.WeightGrams,
			LengthCM:    payload.Parcel.LengthCM,
			WidthCM:     payload.Parcel.WidthCM,
			HeightCM:    payload.Parcel.HeightCM,
		},
	})
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusAccepted).WithData(dto.FromShipment(s)).Build()
}

func (h *Handler) getByID(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "shipments.getByID", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	s, err := h.svc.Get(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromShipment(s)).Build()
}

func (h *Handler) markSeen(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "shipments.markSeen", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	s, err := h.svc.MarkSeen(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.FromShipment(s)).Build()
}

func (h *Handler) retry(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "shipments.retry", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	s, err := h.svc.Retry(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusAccepted).WithData(dto.FromShipment(s)).Build()
}

func (h *Handler) relabel(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "shipments.relabel", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	s, err := h.svc.Relabel(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusAccepted).WithData(dto.FromShipment(s)).Build()
}

func (h *Handler) events(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "shipments.events", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	events, err := h.svc.Events(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	out := make([]dto.ShipmentEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, dto.ShipmentEventResponse{
			EventID:    ev.EventID,
			Status:     ev.Status,
			OccurredAt: ev.OccurredAt,
			ReceivedAt: ev.ReceivedAt,
		})
	}
	return b.WithData(out).WithMeta("count", len(out)).Build()
}

func (h *Handler) label(c echo.Context) error {
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "shipments.label", trace.WithAttributes(attribute.String("shipment.id", id)))
	defer span.End()

	b := response.New(c)
	label, err := h.svc.Label(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.Blob(label.ContentType, label.Data)
}
