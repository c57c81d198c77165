package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/messaging"
)

func task(name, key string) messaging.Message {
	return messaging.Message{Key: []byte(key), Headers: map[string]string{messaging.HeaderTask: name}}
}

func TestDispatchRoutesByTask(t *testing.T) {
	var got []string
	engine := NewEngine(Params{
		Client: messaging.NewMemoryClient("tasks", 1, nil),
		Logger: zap.NewNop(),
		Registrations: []HandlerRegistration{
			{Task: "a", Handler: func(_ context.Context, m messaging.Message) error { got = append(got, "a:"+string(m.Key)); return nil }},
			{Task: "b", Handler: func(_ context.Context, m messaging.Message) error { got = append(got, "b:"+string(m.Key)); return nil }},
			{Task: "", Handler: func(context.Context, messaging.Message) error { t.Fatal("empty task must be ignored"); return nil }},
		},
	})

	ctx := context.Background()
	for _, m := range []messaging.Message{task("b", "1"), task("a", "2"), task("unknown", "3")} {
		if err := engine.Dispatch(ctx, m); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	if len(got) != 2 || got[0] != "b:1" || got[1] != "a:2" {
		t.Fatalf("unexpected routing %v", got)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	engine := NewEngine(Params{
		Client: messaging.NewMemoryClient("tasks", 1, nil),
		Logger: zap.NewNop(),
		Registrations: []HandlerRegistration{
			{Task: "boom", Handler: func(context.Context, messaging.Message) error { panic("kaput") }},
		},
	})

	if err := engine.Dispatch(context.Background(), task("boom", "1")); err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestEngineConsumesFromMemoryQueue(t *testing.T) {
	client := messaging.NewMemoryClient("tasks", 8, nil)
	processed := make(chan string, 4)

	var cfg config.Config
	cfg.Messaging.Enabled = true
	cfg.Messaging.Workers.Enabled = true
	cfg.Messaging.Workers.Concurrency = 2

	engine := NewEngine(Params{
		Client: client,
		Logger: zap.NewNop(),
		Config: cfg,
		Registrations: []HandlerRegistration{
			{Task: "shipment.create", Handler: func(_ context.Context, m messaging.Message) error {
				processed <- string(m.Key)
				return errors.New("handler errors are logged, not fatal")
			}},
		},
	})

	if err := engine.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, key := range []string{"s1", "s2"} {
		if err := client.Publish(context.Background(), task("shipment.create", key)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case key := <-processed:
			seen[key] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out, processed %v", seen)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := engine.stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
