package webhook

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/reconcile"
)

// Module wires the carrier webhook endpoint.
var Module = fx.Options(
	fx.Provide(
		func(o *reconcile.Orchestrator) EventHandler { return o },
		NewHandler,
	),
	fx.Invoke(func(e *echo.Echo, cfg config.Config, h *Handler) {
		Register(e, cfg.Carrier.Name, h)
	}),
)
