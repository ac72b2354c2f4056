package middleware

import (
	"github.com/labstack/echo/v4"
)

// calendarHeaders apply to every response. The API only serves JSON and
// text/calendar exports, so nothing may be framed, sniffed into HTML or load
// subresources, and patient names in URLs must not leak through Referer.
var calendarHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; sandbox"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Referrer-Policy", "no-referrer"},
	{"Cross-Origin-Resource-Policy", "same-site"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
}

// SecurityHeaders sets calendarHeaders before the handler runs, so error
// responses carry them too.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range calendarHeaders {
				h.Set(kv[0], kv[1])
			}
			return next(c)
		}
	}
}
