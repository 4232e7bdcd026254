package router // package router defines how HTTP routes are registered

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hit-counter/internal/handler"
	"github.com/iliyamo/hit-counter/internal/metrics"
)

// RegisterRoutes registers the operational endpoints: a database-free
// liveness check and the Prometheus scrape target.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterPages registers the HTML endpoints.  Only the counted page is
// rate limited; /ping serves monitors that poll from a single address and
// must not see a 429 that reads like an outage.
func RegisterPages(e *echo.Echo, h *handler.HitsHandler, limiter echo.MiddlewareFunc) {
	e.GET("/ping", h.Ping)
	g := e.Group("", limiter)
	g.GET("/", h.Page)
}

// RegisterAPI registers the read-only JSON endpoint behind the response
// cache.  The page itself is never cached since every view must be counted.
func RegisterAPI(e *echo.Echo, h *handler.HitsHandler, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", cache)
	g.GET("/hits", h.Count)
}
