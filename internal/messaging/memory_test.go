package messaging

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryClientDeliversInOrder(t *testing.T) {
	client := NewMemoryClient("tasks", 4, nil)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := client.Publish(ctx, Message{Key: []byte(key), Headers: map[string]string{HeaderTask: "shipment.create"}}); err != nil {
			t.Fatalf("publish %s: %v", key, err)
		}
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- client.Consume(consumeCtx, func(_ context.Context, msg Message) error {
			if msg.Task() != "shipment.create" || msg.Topic != "tasks" {
				t.Errorf("unexpected message %+v", msg)
			}
			got = append(got, string(msg.Key))
			if len(got) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected consume result: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not drain queue")
	}

	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestMemoryClientPublishBlocksWhenFull(t *testing.T) {
	client := NewMemoryClient("tasks", 1, nil)
	if err := client.Publish(context.Background(), Message{Key: []byte("first")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := client.Publish(ctx, Message{Key: []byte("second")}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while queue is full, got %v", err)
	}
	if client.Pending() != 1 {
		t.Fatalf("expected one pending message, got %d", client.Pending())
	}
}

func TestMemoryClientClose(t *testing.T) {
	client := NewMemoryClient("tasks", 1, nil)
	_ = client.Close()

	if err := client.Publish(context.Background(), Message{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := client.Consume(context.Background(), func(context.Context, Message) error { return nil }); err != nil {
		t.Fatalf("consume on closed client should return nil, got %v", err)
	}
}
