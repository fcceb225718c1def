package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are headers that must not cross the gateway.
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

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// (including any named by the Connection header) from the inbound request
// and sets browser hardening headers on every response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header
			for _, name := range connectionScoped(h) {
				h.Del(name)
			}
			for _, name := range hopByHopHeaders {
				h.Del(name)
			}

			// Set before the handler runs: relayed responses commit headers
			// as soon as the status is written.
			res := c.Response().Header()
			res.Set("X-Content-Type-Options", "nosniff")
			res.Set("X-Frame-Options", "DENY")
			res.Set("Referrer-Policy", "same-origin")

			return next(c)
		}
	}
}

func connectionScoped(h http.Header) []string {
	var names []string
	for _, v := range h.Values("Connection") {
		for _, token := range strings.Split(v, ",") {
			if name := strings.TrimSpace(token); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
