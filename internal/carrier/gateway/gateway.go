// Package gateway selects and instruments the configured carrier.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/carrier"
	"github.com/Additional-Code/parcel/internal/carrier/latelogistics"
	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/observability"
)

var tracer = otel.Tracer("github.com/Additional-Code/parcel/carrier")

// Module provides the carrier gateway and its webhook decoder.
var Module = fx.Provide(New)

// Params groups gateway dependencies.
type Params struct {
	fx.In

	Config  config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics `optional:"true"`
}

// Result exposes the carrier under both of its capabilities.
type Result struct {
	fx.Out

	Gateway carrier.Gateway
	Decoder carrier.EventDecoder
}

// New builds the carrier named in configuration.
func New(p Params) (Result, error) {
	gw, dec, err := Build(p.Config.Carrier, p.Logger, p.Metrics)
	if err != nil {
		return Result{}, err
	}
	return Result{Gateway: gw, Decoder: dec}, nil
}

// Build constructs the configured carrier and its webhook decoder.
func Build(cfg config.Carrier, logger *zap.Logger, metrics *observability.Metrics) (carrier.Gateway, carrier.EventDecoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := carrier.NewClient(cfg.MaxRetries, cfg.RetryBaseDelay, carrier.WithLogger(logger))

	switch strings.ToLower(cfg.Name) {
	case "", latelogistics.Name:
		ll := latelogistics.New(client, latelogistics.Options{
			BaseURL:        cfg.APIURL,
			APIKey:         cfg.APIKey,
			CreateTimeout:  cfg.CreateTimeout,
			RequestTimeout: cfg.RequestTimeout,
		}, logger)
		return Instrument(ll, metrics), ll, nil
	default:
		return nil, nil, fmt.Errorf("unsupported carrier %q", cfg.Name)
	}
}

// WebhookPath is the inbound route a carrier posts events to.
func WebhookPath(name string) string {
	return "/webhooks/" + strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

// WebhookURL joins the public base URL with the carrier's webhook route.
func WebhookURL(baseURL, name string) string {
	return strings.TrimRight(baseURL, "/") + WebhookPath(name)
}

type instrumented struct {
	next    carrier.Gateway
	metrics *observability.Metrics
}

// Instrument wraps a gateway with spans and call metrics.
func Instrument(next carrier.Gateway, metrics *observability.Metrics) carrier.Gateway {
	return &instrumented{next: next, metrics: metrics}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) CreateShipment(ctx context.Context, req carrier.CreateRequest) (*carrier.CreateResult, error) {
	ctx, span := tracer.Start(ctx, "Carrier.CreateShipment", trace.WithAttributes(
		attribute.String("carrier", i.next.Name()),
		attribute.String("shipment.barcode", req.Barcode),
	))
	defer span.End()

	start := time.Now()
	res, err := i.next.CreateShipment(ctx, req)
	i.record(ctx, span, "create_shipment", start, err)
	return res, err
}

func (i *instrumented) FetchLabel(ctx context.Context, carrierShipmentID string) (*carrier.Label, error) {
	ctx, span := tracer.Start(ctx, "Carrier.FetchLabel", trace.WithAttributes(
		attribute.String("carrier", i.next.Name()),
		attribute.String("carrier.shipment_id", carrierShipmentID),
	))
	defer span.End()

	start := time.Now()
	label, err := i.next.FetchLabel(ctx, carrierShipmentID)
	i.record(ctx, span, "fetch_label", start, err)
	return label, err
}

func (i *instrumented) record(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	outcome := Outcome(err)
	span.SetAttributes(attribute.String("carrier.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	i.metrics.CarrierCall(ctx, i.next.Name(), op, outcome, time.Since(start))
}

// Outcome classifies a gateway error as success, timeout or failure.
func Outcome(err error) string {
	var cerr *carrier.Error
	switch {
	case err == nil:
		return "success"
	case carrier.IsTimeout(err):
		return "timeout"
	case errors.As(err, &cerr):
		return "rejected"
	default:
		return "failure"
	}
}
