// Package httpapi is the HTTP edge (spec §6): echo-based routing, JWT
// auth, rate-limit admission, and the streamed chat surface. Grounded on
// the teacher's internal/server.Run bootstrap (echo.New, middleware.Recover,
// CORS, /healthz, /metrics via promhttp).
package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arcburst/deepresearch/internal/ratelimit"
	"github.com/arcburst/deepresearch/internal/research"
	"github.com/arcburst/deepresearch/internal/store"
	"github.com/arcburst/deepresearch/internal/stream"
)

// Deps bundles every dependency the HTTP edge needs, built and owned by
// the entrypoint (cmd/researchd).
type Deps struct {
	Store     *store.Store
	Limiter   *ratelimit.Limiter
	Publisher *stream.ResumablePublisher
	Driver    *research.Driver
	Registry  *prometheus.Registry
	JWTSecret []byte
	Logger    *slog.Logger
}

// NewServer builds the routed echo instance. It does not start listening;
// callers call e.Start(addr) themselves so the entrypoint controls
// shutdown ordering.
func NewServer(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		d.Logger.Warn("http error", "status", code, "method", req.Method, "path", req.URL.Path, "remote", c.RealIP(), "error", err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	api := e.Group("/api")

	auth := &AuthHandler{Store: d.Store, Secret: d.JWTSecret}
	auth.Register(api.Group("/auth"))

	chat := &ChatHandler{Store: d.Store, Limiter: d.Limiter, Publisher: d.Publisher, Driver: d.Driver, LocationHeader: "X-Location-Hint"}
	chatGroup := api.Group("/chat")
	chatGroup.Use(authMiddleware(d.JWTSecret))
	chat.Register(chatGroup)

	return e
}
