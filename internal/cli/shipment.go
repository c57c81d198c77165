package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/parcel/internal/app"
	"github.com/Additional-Code/parcel/internal/dto"
	"github.com/Additional-Code/parcel/internal/entity"
	"github.com/Additional-Code/parcel/internal/reconcile"
	service "github.com/Additional-Code/parcel/internal/service/shipment"
)

// pendingFlows collects flows queued by the service so the CLI can run them
// in the foreground instead of handing them to the task bus.
type pendingFlows struct {
	creation []string
	labels   []string
}

func (p *pendingFlows) DispatchCreation(_ context.Context, id string) error {
	p.creation = append(p.creation, id)
	return nil
}

func (p *pendingFlows) DispatchLabel(_ context.Context, id string) error {
	p.labels = append(p.labels, id)
	return nil
}

func (p *pendingFlows) run(ctx context.Context, o *reconcile.Orchestrator) error {
	for _, id := range p.creation {
		if err := o.InitiateCreation(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range p.labels {
		if err := o.FetchAndStoreLabel(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func newShipmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shipment",
		Short: "Inspect and recover shipments",
	}
	cmd.AddCommand(
		newShipmentActionCmd("get [id]", "Show a shipment without clearing its unseen flag", func(ctx context.Context, svc *service.Service, id string) (*entity.Shipment, error) {
			return svc.Peek(ctx, id)
		}),
		newShipmentActionCmd("retry [id]", "Reset a stuck or failed shipment and create it with the carrier", func(ctx context.Context, svc *service.Service, id string) (*entity.Shipment, error) {
			return svc.Retry(ctx, id)
		}),
		newShipmentActionCmd("relabel [id]", "Fetch the label of a shipment stuck in confirming", func(ctx context.Context, svc *service.Service, id string) (*entity.Shipment, error) {
			return svc.Relabel(ctx, id)
		}),
	)
	return cmd
}

type shipmentAction func(ctx context.Context, svc *service.Service, id string) (*entity.Shipment, error)

func newShipmentActionCmd(use, short string, action shipmentAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc *service.Service
				o   *reconcile.Orchestrator
			)
			pending := &pendingFlows{}
			opts := fx.Options(
				app.Core,
				fx.Decorate(func(reconcile.Dispatcher) reconcile.Dispatcher { return pending }),
				fx.Populate(&svc, &o),
			)
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if _, err := action(ctx, svc, args[0]); err != nil {
					return err
				}
				if err := pending.run(ctx, o); err != nil {
					return err
				}
				s, err := svc.Peek(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(dto.FromShipment(s)); err != nil {
					return fmt.Errorf("encode shipment: %w", err)
				}
				return nil
			})
		},
	}
}
