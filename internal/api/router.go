// Package api serves the users resource over HTTP. It backs local
// development and the end-to-end tests of the client.
package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/99minutos/userdesk/internal/api/handler"
	"github.com/99minutos/userdesk/internal/api/metrics"
	"github.com/99minutos/userdesk/internal/core/ports"
	"github.com/99minutos/userdesk/internal/pkg/validation"
)

// NewRouter builds the Echo instance with all routes registered. Metrics are
// kept in a registry owned by the router and served on /metrics.
func NewRouter(repo ports.UserRepository, log zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:                 "userdesk",
		Subsystem:                 "mockapi_http",
		Registerer:                reg,
		DoNotUseRequestPathFor404: true,
	}))

	// --- Dependencies ---
	userHandler := handler.NewUserHandler(repo, m, log)
	healthHandler := handler.NewHealthHandler()

	// --- Users ---
	e.GET("/users", userHandler.List)
	e.POST("/users", userHandler.Create)
	e.GET("/users/:id", userHandler.Get)
	e.PUT("/users/:id", userHandler.Update)
	e.DELETE("/users/:id", userHandler.Delete)

	// --- Operational ---
	e.GET("/health", healthHandler.Liveness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))

	return e
}

// requestLogger logs one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
