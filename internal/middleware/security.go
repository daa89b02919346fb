package middleware

import (
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are request headers that must not reach the upstream.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// responseHeaders are forced on every response, replacing upstream values.
var responseHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "SAMEORIGIN",
	"Referrer-Policy":        "no-referrer",
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop request
// headers and pins a few response headers. The response headers are applied
// just before the status line is written, after the proxied ones were copied.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHopHeaders {
				c.Request().Header.Del(h)
			}

			res := c.Response()
			res.Before(func() {
				for k, v := range responseHeaders {
					res.Header().Set(k, v)
				}
			})

			return next(c)
		}
	}
}
