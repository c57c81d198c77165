package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/carrier"
	"github.com/Additional-Code/parcel/internal/carrier/latelogistics"
	"github.com/Additional-Code/parcel/internal/reconcile"
)

type stubEvents struct {
	result reconcile.Result
	err    error
	got    []*carrier.Event
}

func (s *stubEvents) HandleEvent(_ context.Context, ev *carrier.Event) (reconcile.Result, error) {
	s.got = append(s.got, ev)
	return s.result, s.err
}

func newServer(events *stubEvents) *echo.Echo {
	e := echo.New()
	h := NewHandler(Params{Decoder: &latelogistics.Gateway{}, Events: events, Logger: zap.NewNop()})
	Register(e, latelogistics.Name, h)
	return e
}

func post(e *echo.Echo, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/late-logistics", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const createdEvent = `{"event_id":"E1","shipment_id":"S1","barcode":"B1","status":"created","occurred_at":"2026-03-01T10:00:00Z"}`

func TestWebhookAcknowledgesOutcome(t *testing.T) {
	for _, outcome := range []reconcile.Outcome{reconcile.OutcomeAccepted, reconcile.OutcomeRejected, reconcile.OutcomeDuplicate, reconcile.OutcomeUnmatched} {
		t.Run(string(outcome), func(t *testing.T) {
			events := &stubEvents{result: reconcile.Result{Outcome: outcome}}
			rec := post(newServer(events), createdEvent)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var body struct {
				Data struct {
					Status string `json:"status"`
				} `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Data.Status != string(outcome) {
				t.Fatalf("expected status %s, got %s", outcome, body.Data.Status)
			}
			if len(events.got) != 1 || events.got[0].EventID != "E1" {
				t.Fatalf("unexpected events %+v", events.got)
			}
		})
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	events := &stubEvents{}
	rec := post(newServer(events), `{"event_id":"E1","status":"teleported"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(events.got) != 0 {
		t.Fatal("malformed payload must not reach the orchestrator")
	}
}

func TestWebhookInfrastructureFailureIs500(t *testing.T) {
	events := &stubEvents{err: errors.New("database unavailable")}
	rec := post(newServer(events), createdEvent)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestWebhookSyntaxErrorDetailIsReadable(t *testing.T) {
	rec := post(newServer(&stubEvents{}), `{"event_id":`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Details struct {
				Fields string `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !strings.Contains(body.Error.Details.Fields, "invalid webhook json") {
		t.Fatalf("expected syntax error text in details, got %q (%s)", body.Error.Details.Fields, rec.Body.String())
	}
}
