// Command api runs the shipment HTTP service with its in-process workers.
// It is the container entrypoint; use cmd/parcel for migrations and operator
// commands.
package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/app"
)

func main() {
	fx.New(
		app.HTTP,
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	).Run()
}
