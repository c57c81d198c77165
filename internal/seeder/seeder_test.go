package seeder

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/database/dbtest"
	"github.com/Additional-Code/parcel/internal/lifecycle"
	"github.com/Additional-Code/parcel/internal/repository/shipment"
)

func TestShipmentsIsIdempotent(t *testing.T) {
	repo := shipment.NewRepository(dbtest.Open(t))
	var cfg config.Config
	cfg.Carrier.Name = "late_logistics"
	s := New(repo, cfg, zap.NewNop())

	n, err := s.Shipments(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("first seed: %d, %v", n, err)
	}
	n, err = s.Shipments(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second seed: %d, %v", n, err)
	}

	got, err := repo.FindByBarcode(context.Background(), "SEED000000001000")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != lifecycle.StatusPendingCreation || got.Carrier != "late_logistics" {
		t.Fatalf("unexpected seeded shipment %+v", got)
	}
}
