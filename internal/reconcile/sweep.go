package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/lifecycle"
	"github.com/Additional-Code/parcel/internal/observability"
	"github.com/Additional-Code/parcel/internal/repository/shipment"
)

// staleStatuses are the states a shipment can get stuck in without any
// automatic way out.
var staleStatuses = []lifecycle.Status{
	lifecycle.StatusCreationInFlight,
	lifecycle.StatusConfirming,
}

// StaleCounter reports shipments that have not moved since a cutoff.
type StaleCounter interface {
	CountStale(ctx context.Context, statuses []lifecycle.Status, cutoff time.Time) ([]shipment.StatusCount, error)
}

// Sweeper periodically reports shipments stuck in creation_in_flight or
// confirming. It only observes; recovery stays a manual retry or relabel.
type Sweeper struct {
	store      StaleCounter
	staleAfter time.Duration
	schedule   string
	enabled    bool
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// SweeperParams groups sweeper dependencies.
type SweeperParams struct {
	fx.In

	Store   StaleCounter
	Config  config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics `optional:"true"`
}

// SweepModule runs the stale sweep on its cron schedule.
var SweepModule = fx.Options(
	fx.Provide(
		func(r *shipment.Repository) StaleCounter { return r },
		NewSweeper,
	),
	fx.Invoke(registerSweeper),
)

// NewSweeper constructs a Sweeper.
func NewSweeper(p SweeperParams) *Sweeper {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:      p.Store,
		staleAfter: p.Config.Reconcile.StaleAfter,
		schedule:   p.Config.Reconcile.SweepSchedule,
		enabled:    p.Config.Reconcile.SweepEnabled,
		logger:     logger.Named("sweep"),
		metrics:    p.Metrics,
		now:        time.Now,
	}
}

// Sweep counts stale shipments per status, logs them and publishes the
// gauge. Statuses with no stale shipments report zero.
func (s *Sweeper) Sweep(ctx context.Context) (map[lifecycle.Status]int, error) {
	ctx, span := tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	cutoff := s.now().Add(-s.staleAfter)
	rows, err := s.store.CountStale(ctx, staleStatuses, cutoff)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("count stale shipments: %w", err)
	}

	counts := make(map[lifecycle.Status]int, len(staleStatuses))
	for _, status := range staleStatuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	for _, status := range staleStatuses {
		n := counts[status]
		s.metrics.StaleShipments(ctx, string(status), n)
		if n > 0 {
			s.logger.Warn("shipments stuck; manual retry or relabel required",
				zap.String("status", string(status)),
				zap.Int("count", n),
				zap.Duration("stale_after", s.staleAfter),
			)
		}
	}
	return counts, nil
}

func registerSweeper(lc fx.Lifecycle, s *Sweeper) error {
	if !s.enabled {
		s.logger.Info("stale sweep disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("stale sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule stale sweep %q: %w", s.schedule, err)
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.logger.Info("starting stale sweep", zap.String("schedule", s.schedule))
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
	return nil
}
