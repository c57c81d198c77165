package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/parcel/internal/cache"
	"github.com/Additional-Code/parcel/internal/carrier/gateway"
	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/database"
	"github.com/Additional-Code/parcel/internal/logger"
	"github.com/Additional-Code/parcel/internal/messaging"
	"github.com/Additional-Code/parcel/internal/observability"
	"github.com/Additional-Code/parcel/internal/reconcile"
	repositoryevent "github.com/Additional-Code/parcel/internal/repository/event"
	repositoryshipment "github.com/Additional-Code/parcel/internal/repository/shipment"
	grpcserver "github.com/Additional-Code/parcel/internal/server/grpc"
	httpserver "github.com/Additional-Code/parcel/internal/server/http"
	serviceshipment "github.com/Additional-Code/parcel/internal/service/shipment"
	transporthttp "github.com/Additional-Code/parcel/internal/transport/http"
	"github.com/Additional-Code/parcel/internal/worker"
	workershipment "github.com/Additional-Code/parcel/internal/worker/shipment"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	repositoryshipment.Module,
	repositoryevent.Module,
	gateway.Module,
	reconcile.Module,
	serviceshipment.Module,
)

// Processing runs the detached flows and the stale sweep.
var Processing = fx.Options(
	worker.Module,
	workershipment.Module,
	reconcile.SweepModule,
)

// HTTP wires the HTTP transport on top of the core modules. Workers run in
// the same process unless WORKER_ENABLED is false, which the memory task
// queue depends on.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
	Processing,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	Processing,
)
