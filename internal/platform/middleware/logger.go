package middleware

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/auth"
)

// quietPaths are polled by infrastructure and logged at debug.
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

// Logger writes one access-log line per request. The level follows the
// response status: 5xx error, 4xx warn, anything else info.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			if err != nil {
				status = statusOf(err)
			}

			var ev *zerolog.Event
			switch {
			case status >= 500:
				ev = logger.Error().Err(err)
			case status >= 400:
				ev = logger.Warn().Err(err)
			case quietPaths[req.URL.Path]:
				ev = logger.Debug()
			default:
				ev = logger.Info()
			}

			if rid, ok := c.Get("request_id").(string); ok {
				ev = ev.Str("request_id", rid)
			}
			if p, ok := auth.PrincipalFromContext(req.Context()); ok {
				ev = ev.Str("user_id", p.UserID.String()).Str("role", string(p.Role))
			}
			ev.Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return err
		}
	}
}

// statusOf predicts the status the error handler will write for err.
func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	status, _ := apperr.Status(err)
	return status
}
