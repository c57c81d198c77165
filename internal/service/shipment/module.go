package shipment

import "go.uber.org/fx"

// Module provides the shipment service to Fx.
var Module = fx.Provide(NewService)
