package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/booking/internal/platform/apperr"
)

const codeTimeout = "TIMEOUT"

// RequestTimeout bounds each request's context. Handlers and the queries
// they run see the deadline; when it passes before anything was written,
// the client gets a 504 instead of whatever error the cancellation caused.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				var ae *apperr.Error
				if errors.As(err, &ae) && !errors.Is(err, apperr.ErrStorageFailure) {
					// A domain answer that raced the deadline still stands.
					return err
				}
			}
			return c.JSON(http.StatusGatewayTimeout, apperr.Response{
				Error: "request exceeded " + timeout.String(),
				Code:  codeTimeout,
			})
		}
	}
}
