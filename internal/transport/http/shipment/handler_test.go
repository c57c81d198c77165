package shipment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/cache"
	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/database/dbtest"
	"github.com/Additional-Code/parcel/internal/dto"
	"github.com/Additional-Code/parcel/internal/lifecycle"
	"github.com/Additional-Code/parcel/internal/repository/event"
	repo "github.com/Additional-Code/parcel/internal/repository/shipment"
	service "github.com/Additional-Code/parcel/internal/service/shipment"
)

type nopDispatcher struct{ labels int }

func (*nopDispatcher) DispatchCreation(context.Context, string) error { return nil }
func (d *nopDispatcher) DispatchLabel(context.Context, string) error {
	d.labels++
	return nil
}

type env struct {
	e    *echo.Echo
	repo *repo.Repository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conns := dbtest.Open(t)
	r := repo.NewRepository(conns)
	var cfg config.Config
	cfg.Carrier.Name = "late_logistics"
	svc := service.NewService(service.Params{
		Repository: r,
		Ledger:     event.NewLedger(conns),
		Dispatcher: &nopDispatcher{},
		Cache:      cache.NoopStore(),
		Config:     cfg,
		Logger:     zap.NewNop(),
	})
	e := echo.New()
	Register(e, NewHandler(svc))
	return &env{e: e, repo: r}
}

func (v *env) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool                 `json:"success"`
	Data    dto.ShipmentResponse `json:"data"`
	Error   struct {
		Kind    string         `json:"kind"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

const createBody = `{
	"merchant_reference": "ORDER-9",
	"recipient": {"name": "Ada", "address1": "1 Main", "postal_code": "1011", "city": "Amsterdam", "country": "NL"},
	"parcel": {"weight_grams": 900, "length_cm": 20, "width_cm": 15, "height_cm": 5}
}`

func TestCreateAndGetShipment(t *testing.T) {
	v := newEnv(t)

	rec := v.do(http.MethodPost, "/shipments", createBody)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decode(t, rec).Data
	if created.Status != string(lifecycle.StatusPendingCreation) || created.ID == "" {
		t.Fatalf("unexpected shipment %+v", created)
	}

	rec = v.do(http.MethodGet, "/shipments/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec).Data; got.MerchantReference != "ORDER-9" || got.Barcode != created.Barcode {
		t.Fatalf("unexpected shipment %+v", got)
	}
}

func TestCreateRejectsInvalidPayload(t *testing.T) {
	v := newEnv(t)
	rec := v.do(http.MethodPost, "/shipments", `{"merchant_reference":"","parcel":{"weight_grams":0}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env := decode(t, rec); env.Success || env.Error.Kind != "bad_request" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestGetUnknownShipmentIs404(t *testing.T) {
	v := newEnv(t)
	if rec := v.do(http.MethodGet, "/shipments/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRetryConflictListsAllowedStatuses(t *testing.T) {
	v := newEnv(t)
	created := decode(t, v.do(http.MethodPost, "/shipments", createBody)).Data
	ctx := context.Background()
	if _, err := v.repo.UpdateStatus(ctx, created.ID, lifecycle.StatusCreationInFlight, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := v.repo.UpdateStatus(ctx, created.ID, lifecycle.StatusCreated, ""); err != nil {
		t.Fatal(err)
	}

	rec := v.do(http.MethodPost, "/shipments/"+created.ID+"/retry", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if decode(t, rec).Error.Details["allowed_statuses"] == nil {
		t.Fatalf("expected allowed statuses, got %s", rec.Body.String())
	}

	if rec := v.do(http.MethodPost, "/shipments/"+created.ID+"/seen", ""); rec.Code != http.StatusOK {
		t.Fatalf("mark seen: expected 200, got %d", rec.Code)
	}
}

func TestLabelEndpointServesBinary(t *testing.T) {
	v := newEnv(t)
	created := decode(t, v.do(http.MethodPost, "/shipments", createBody)).Data

	if rec := v.do(http.MethodGet, "/shipments/"+created.ID+"/label", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before label, got %d", rec.Code)
	}

	ctx := context.Background()
	for _, s := range []lifecycle.Status{lifecycle.StatusCreationInFlight, lifecycle.StatusCreated, lifecycle.StatusConfirming} {
		if _, err := v.repo.UpdateStatus(ctx, created.ID, s, ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := v.repo.StoreLabel(ctx, created.ID, base64.StdEncoding.EncodeToString([]byte("%PDF")), "application/pdf"); err != nil {
		t.Fatal(err)
	}

	rec := v.do(http.MethodGet, "/shipments/"+created.ID+"/label", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "%PDF" {
		t.Fatalf("unexpected label response %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec = v.do(http.MethodGet, "/shipments/"+created.ID+"/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("events: expected 200, got %d", rec.Code)
	}
}
