package reconcile

import (
	"context"
	"testing"
	"time"

	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/lifecycle"
)

func TestSweepCountsStaleShipmentsWithoutMutating(t *testing.T) {
	h := newHarness(t)
	inFlight := h.shipment(t, lifecycle.StatusCreationInFlight)
	confirming := h.shipment(t, lifecycle.StatusConfirming)
	h.shipment(t, lifecycle.StatusDelivered)

	var cfg config.Config
	cfg.Reconcile.StaleAfter = 10 * time.Minute
	s := NewSweeper(SweeperParams{Store: h.store, Config: cfg, Logger: zap.NewNop()})

	counts, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if counts[lifecycle.StatusCreationInFlight] != 0 || counts[lifecycle.StatusConfirming] != 0 {
		t.Fatalf("fresh shipments must not be stale: %v", counts)
	}

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	counts, err = s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if counts[lifecycle.StatusCreationInFlight] != 1 || counts[lifecycle.StatusConfirming] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if _, ok := counts[lifecycle.StatusDelivered]; ok {
		t.Fatal("terminal shipments are never stale")
	}

	for id, want := range map[string]lifecycle.Status{inFlight.ID: lifecycle.StatusCreationInFlight, confirming.ID: lifecycle.StatusConfirming} {
		if got := h.reload(t, id).Status; got != want {
			t.Fatalf("sweep mutated %s: %s", id, got)
		}
	}
}

func TestRegisterSweeperRejectsBadSchedule(t *testing.T) {
	var cfg config.Config
	cfg.Reconcile.SweepEnabled = true
	cfg.Reconcile.SweepSchedule = "every now and then"
	s := NewSweeper(SweeperParams{Store: newHarness(t).store, Config: cfg, Logger: zap.NewNop()})

	if err := registerSweeper(fxtest.NewLifecycle(t), s); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestRegisterSweeperStartsAndStops(t *testing.T) {
	var cfg config.Config
	cfg.Reconcile.SweepEnabled = true
	cfg.Reconcile.SweepSchedule = "@every 1h"
	s := NewSweeper(SweeperParams{Store: newHarness(t).store, Config: cfg, Logger: zap.NewNop()})

	lc := fxtest.NewLifecycle(t)
	if err := registerSweeper(lc, s); err != nil {
		t.Fatalf("register: %v", err)
	}
	lc.RequireStart().RequireStop()
}
