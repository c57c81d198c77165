package shipment

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/messaging"
	"github.com/Additional-Code/parcel/internal/reconcile"
)

type recordingFlows struct {
	created []string
	labeled []string
	err     error
}

func (r *recordingFlows) InitiateCreation(_ context.Context, id string) error {
	r.created = append(r.created, id)
	return r.err
}

func (r *recordingFlows) FetchAndStoreLabel(_ context.Context, id string) error {
	r.labeled = append(r.labeled, id)
	return r.err
}

func message(task, body string) messaging.Message {
	return messaging.Message{Value: []byte(body), Headers: map[string]string{messaging.HeaderTask: task}}
}

func TestHandlersRunFlows(t *testing.T) {
	flows := &recordingFlows{}
	create := NewCreateHandler(flows, zap.NewNop())
	label := NewLabelHandler(flows, zap.NewNop())

	if create.Task != reconcile.TaskCreateShipment || label.Task != reconcile.TaskFetchLabel {
		t.Fatalf("unexpected task names %s %s", create.Task, label.Task)
	}

	ctx := context.Background()
	if err := create.Handler(ctx, message(create.Task, `{"shipment_id":"s1"}`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := label.Handler(ctx, message(label.Task, `{"shipment_id":"s2"}`)); err != nil {
		t.Fatalf("label: %v", err)
	}
	if len(flows.created) != 1 || flows.created[0] != "s1" || len(flows.labeled) != 1 || flows.labeled[0] != "s2" {
		t.Fatalf("unexpected calls %+v", flows)
	}
}

func TestHandlerRejectsBadPayload(t *testing.T) {
	flows := &recordingFlows{}
	create := NewCreateHandler(flows, zap.NewNop())

	for _, body := range []string{`not json`, `{}`} {
		if err := create.Handler(context.Background(), message(create.Task, body)); err == nil {
			t.Fatalf("expected error for %q", body)
		}
	}
	if len(flows.created) != 0 {
		t.Fatal("flow must not run for bad payloads")
	}
}

func TestHandlerPropagatesFlowErrors(t *testing.T) {
	flows := &recordingFlows{err: errors.New("db down")}
	label := NewLabelHandler(flows, zap.NewNop())

	if err := label.Handler(context.Background(), message(label.Task, `{"shipment_id":"s1"}`)); err == nil {
		t.Fatal("expected flow error")
	}
}
