// Package latelogistics implements the carrier contract for Late Logistics.
package latelogistics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/carrier"
)

// Name is the carrier slug used in config and webhook routes.
const Name = "late_logistics"

const (
	opCreate = "create_shipment"
	opLabel  = "fetch_label"
)

// Options configures the gateway.
type Options struct {
	BaseURL        string
	APIKey         string
	CreateTimeout  time.Duration
	RequestTimeout time.Duration
}

// Gateway talks to the Late Logistics REST API.
type Gateway struct {
	client *carrier.Client
	opts   Options
	logger *zap.Logger
}

var (
	_ carrier.Gateway      = (*Gateway)(nil)
	_ carrier.EventDecoder = (*Gateway)(nil)
)

// New builds a gateway on top of a retrying carrier client.
func New(client *carrier.Client, opts Options, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.CreateTimeout <= 0 {
		opts.CreateTimeout = 65 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Gateway{client: client, opts: opts, logger: logger.Named(Name)}
}

// Name returns the carrier slug.
func (g *Gateway) Name() string { return Name }

type recipientPayload struct {
	Name       string `json:"name"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

type parcelPayload struct {
	WeightGrams int     `json:"weight_grams"`
	LengthCM    float64 `json:"length_cm"`
	WidthCM     float64 `json:"width_cm"`
	HeightCM    float64 `json:"height_cm"`
}

type createPayload struct {
	Reference  string           `json:"reference"`
	WebhookURL string           `json:"webhook_url"`
	Barcode    string           `json:"barcode"`
	Recipient  recipientPayload `json:"recipient"`
	Parcel     parcelPayload    `json:"parcel"`
}

type createResponse struct {
	ShipmentID   string `json:"shipment_id"`
	TrackingCode string `json:"tracking_code"`
	Barcode      string `json:"barcode"`
}

type labelResponse struct {
	ShipmentID     string `json:"shipment_id"`
	LabelPDFBase64 string `json:"label_pdf_base64"`
	ContentType    string `json:"content_type"`
}

// CreateShipment registers the parcel with the carrier.
func (g *Gateway) CreateShipment(ctx context.Context, req carrier.CreateRequest) (*carrier.CreateResult, error) {
	body, err := json.Marshal(createPayload{
		Reference:  req.Reference,
		WebhookURL: req.WebhookURL,
		Barcode:    req.Barcode,
		Recipient: recipientPayload{
			Name:       req.Recipient.Name,
			Address1:   req.Recipient.Address1,
			Address2:   req.Recipient.Address2,
			PostalCode: req.Recipient.PostalCode,
			City:       req.Recipient.City,
			Country:    req.Recipient.Country,
		},
		Parcel: parcelPayload{
			WeightGrams: req.Parcel.WeightGrams,
			LengthCM:    req.Parcel.LengthCM,
			WidthCM:     req.Parcel.WidthCM,
			HeightCM:    req.Parcel.HeightCM,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(ctx, g.opts.CreateTimeout, carrier.Request{
		Method: http.MethodPost,
		URL:    g.opts.BaseURL + "/v1/shipments",
		Header: g.headers("Content-Type", "application/json"),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &carrier.Error{Op: opCreate, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var out createResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", opCreate, err)
	}
	if out.ShipmentID == "" {
		return nil, fmt.Errorf("%s: response without shipment_id", opCreate)
	}

	return &carrier.CreateResult{
		ShipmentID:   out.ShipmentID,
		TrackingCode: out.TrackingCode,
		Barcode:      out.Barcode,
	}, nil
}

// FetchLabel downloads the generated shipping label.
func (g *Gateway) FetchLabel(ctx context.Context, carrierShipmentID string) (*carrier.Label, error) {
	resp, err := g.client.Do(ctx, g.opts.RequestTimeout, carrier.Request{
		Method: http.MethodGet,
		URL:    g.opts.BaseURL + "/v1/shipments/" + url.PathEscape(carrierShipmentID) + "/label",
		Header: g.headers("Accept", "application/json"),
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &carrier.Error{Op: opLabel, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}

	var out labelResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", opLabel, err)
	}
	if out.LabelPDFBase64 == "" {
		return nil, fmt.Errorf("%s: response without label", opLabel)
	}
	if out.ContentType == "" {
		out.ContentType = "application/pdf"
	}

	return &carrier.Label{ShipmentID: out.ShipmentID, Data: out.LabelPDFBase64, ContentType: out.ContentType}, nil
}

func (g *Gateway) headers(kv ...string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+g.opts.APIKey)
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}
