package seeder

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/entity"
	"github.com/Additional-Code/parcel/internal/lifecycle"
	"github.com/Additional-Code/parcel/internal/repository/shipment"
)

// Module provides the Seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	repo    *shipment.Repository
	carrier string
	logger  *zap.Logger
}

// New constructs a Seeder backed by the shipment repository.
func New(repo *shipment.Repository, cfg config.Config, logger *zap.Logger) *Seeder {
	return &Seeder{repo: repo, carrier: cfg.Carrier.Name, logger: logger}
}

// Shipments seeds example pending shipments if they are missing. They are
// not dispatched; use a retry to push one through the carrier.
func (s *Seeder) Shipments(ctx context.Context) (int, error) {
	samples := []entity.Shipment{
		{
			ID:                "4d7f0a52-2b0e-4c39-9f6f-000000001000",
			MerchantReference: "ORDER-1000",
			Barcode:           "SEED000000001000",
			Recipient:         entity.Recipient{Name: "Ada Lovelace", Address1: "Keizersgracht 1", PostalCode: "1015CJ", City: "Amsterdam", Country: "NL"},
			Parcel:            entity.Parcel{WeightGrams: 1200, LengthCM: 30, WidthCM: 20, HeightCM: 10},
		},
		{
			ID:                "4d7f0a52-2b0e-4c39-9f6f-000000001001",
			MerchantReference: "ORDER-1001",
			Barcode:           "SEED000000001001",
			Recipient:         entity.Recipient{Name: "Alan Turing", Address1: "Coolsingel 40", PostalCode: "3011AD", City: "Rotterdam", Country: "NL"},
			Parcel:            entity.Parcel{WeightGrams: 450, LengthCM: 20, WidthCM: 15, HeightCM: 4},
		},
	}

	inserted := 0
	for _, sample := range samples {
		if _, err := s.repo.FindByID(ctx, sample.ID); err == nil {
			continue
		} else if !errors.Is(err, shipment.ErrNotFound) {
			return inserted, err
		}

		sh := sample
		sh.Carrier = s.carrier
		sh.Status = lifecycle.StatusPendingCreation
		err := s.repo.Create(ctx, &sh)
		if errors.Is(err, shipment.ErrDuplicateBarcode) {
			continue
		}
		if err != nil {
			return inserted, err
		}
		inserted++
	}

	if s.logger != nil {
		s.logger.Info("seeded shipments", zap.Int("inserted", inserted), zap.Int("samples", len(samples)))
	}
	return inserted, nil
}
