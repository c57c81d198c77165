package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/database"
	"github.com/Additional-Code/parcel/internal/observability"
	"github.com/Additional-Code/parcel/internal/presentation/http/response"
	"github.com/Additional-Code/parcel/pkg/errorbank"
)

// Carrier webhooks and order payloads are small JSON documents.
const bodyLimit = "1M"

// Module exposes the HTTP server lifecycle to Fx.
var Module = fx.Module("http_server",
	fx.Provide(NewEcho),
	fx.Invoke(Run),
)

// Params groups router dependencies.
type Params struct {
	fx.In

	Config        config.Config
	Observability *observability.Manager
	Connections   *database.Connections `optional:"true"`
	Logger        *zap.Logger
}

// NewEcho configures the Echo router with request logging, recovery, health
// checks and the metrics endpoint.
func NewEcho(p Params) *echo.Echo {
	logger := p.Logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			err = fromHTTPError(he)
		}
		if appErr := errorbank.From(err); appErr.StatusCode() >= http.StatusInternalServerError {
			logger.Error("http request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		if rerr := response.New(c).WithError(err).Build(); rerr != nil {
			logger.Warn("failed to write error response", zap.Error(rerr))
		}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(bodyLimit))
	if p.Observability != nil && p.Observability.TracingEnabled() {
		e.Use(otelecho.Middleware(p.Config.Observability.ServiceName))
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/ready", readiness(p.Connections, p.Config.Carrier.Name))

	if p.Observability != nil && p.Observability.MetricsEnabled() && p.Observability.MetricsHandler() != nil {
		e.GET(p.Observability.PrometheusPath(), echo.WrapHandler(p.Observability.MetricsHandler()))
	}

	return e
}

// readiness reports whether the shipment store answers.
func readiness(conns *database.Connections, carrierName string) echo.HandlerFunc {
	return func(c echo.Context) error {
		b := response.New(c)
		if conns != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := conns.Writer.PingContext(ctx); err != nil {
				return b.WithError(errorbank.Unavailable("database unreachable", errorbank.WithCause(err))).Build()
			}
		}
		return b.WithData(map[string]string{"status": "ready", "carrier": carrierName}).Build()
	}
}

func fromHTTPError(he *echo.HTTPError) error {
	message := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		message = m
	}
	switch he.Code {
	case http.StatusNotFound:
		return errorbank.NotFound(message)
	case http.StatusMethodNotAllowed, http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return errorbank.BadRequest(message, errorbank.WithDetail("status", he.Code))
	case http.StatusServiceUnavailable:
		return errorbank.Unavailable(message)
	default:
		return errorbank.Internal(message, errorbank.WithCause(he))
	}
}

// Run starts the HTTP server and ties it to the Fx lifecycle.
func Run(lc fx.Lifecycle, cfg config.Config, e *echo.Echo, logger *zap.Logger) {
	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting HTTP server", zap.String("addr", addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
