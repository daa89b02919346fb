package handler

import (
	"github.com/labstack/echo/v4"

	"tgme-proxy-go/internal/assets"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)
	e.StaticFS("/static", assets.Static())

	e.Any("/", proxy.Channel)
	e.Any("/*", proxy.Handle)
}
