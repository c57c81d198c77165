package event

import "go.uber.org/fx"

// Module provides the event ledger to Fx.
var Module = fx.Provide(NewLedger)
