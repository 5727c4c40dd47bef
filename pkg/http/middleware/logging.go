package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"LiqPool/pkg/logger"
)

// RequestLogging logs each request at debug, 5xx at error and requests
// slower than slow at warn.
func RequestLogging(l *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let echo write the error response so the status is final
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.String("remote", c.RealIP()),
				logger.Int("status", status),
				logger.Duration("duration_ms", time.Since(start)),
			}
			switch {
			case status >= 500:
				if err != nil {
					fields = append(fields, logger.Error(err))
				}
				l.Error("http request failed", fields...)
			case slow > 0 && time.Since(start) >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
