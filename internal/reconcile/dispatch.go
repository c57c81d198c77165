package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/fx"

	"github.com/Additional-Code/parcel/internal/database"
	"github.com/Additional-Code/parcel/internal/messaging"
	"github.com/Additional-Code/parcel/internal/repository/event"
	"github.com/Additional-Code/parcel/internal/repository/shipment"
)

// Task names carried in the messaging task header.
const (
	TaskCreateShipment = "shipment.create"
	TaskFetchLabel     = "shipment.label"
)

// Module wires the orchestrator with the repositories and the task bus.
var Module = fx.Options(
	fx.Provide(
		func(r *shipment.Repository) Store { return r },
		func(l *event.Ledger) Ledger { return l },
		func(c *database.Connections) Transactor { return c },
		func(c messaging.Client) Dispatcher { return NewBusDispatcher(c) },
		New,
	),
)

// TaskPayload is the body of every shipment task.
type TaskPayload struct {
	ShipmentID string `json:"shipment_id"`
}

// DecodeTask reads the shipment id out of a task message.
func DecodeTask(msg messaging.Message) (string, error) {
	var p TaskPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return "", fmt.Errorf("decode %s task: %w", msg.Task(), err)
	}
	if p.ShipmentID == "" {
		return "", fmt.Errorf("%s task without shipment_id", msg.Task())
	}
	return p.ShipmentID, nil
}

// BusDispatcher publishes flows as tasks on the messaging client.
type BusDispatcher struct {
	client messaging.Client
}

// NewBusDispatcher builds a dispatcher over client.
func NewBusDispatcher(client messaging.Client) *BusDispatcher {
	return &BusDispatcher{client: client}
}

// DispatchCreation queues the creation flow.
func (d *BusDispatcher) DispatchCreation(ctx context.Context, shipmentID string) error {
	return d.publish(ctx, TaskCreateShipment, shipmentID)
}

// DispatchLabel queues the label flow.
func (d *BusDispatcher) DispatchLabel(ctx context.Context, shipmentID string) error {
	return d.publish(ctx, TaskFetchLabel, shipmentID)
}

func (d *BusDispatcher) publish(ctx context.Context, task, shipmentID string) error {
	body, err := json.Marshal(TaskPayload{ShipmentID: shipmentID})
	if err != nil {
		return err
	}
	return d.client.Publish(ctx, messaging.Message{
		Key:     []byte(shipmentID),
		Value:   body,
		Headers: map[string]string{messaging.HeaderTask: task},
	})
}
