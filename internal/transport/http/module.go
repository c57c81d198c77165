package http

import (
	"go.uber.org/fx"

	shipmenttransport "github.com/Additional-Code/parcel/internal/transport/http/shipment"
	webhooktransport "github.com/Additional-Code/parcel/internal/transport/http/webhook"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	shipmenttransport.Module,
	webhooktransport.Module,
)
