package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"LiqPool/pkg/logger"
)

// Recover turns a handler panic into the same 500 envelope AppErrorResponse
// writes, so clients see one error shape.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				l.Error("http handler panic",
					logger.String("method", c.Request().Method),
					logger.String("route", c.Path()),
					logger.String("panic", fmt.Sprint(r)),
					logger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"status":  http.StatusInternalServerError,
					"message": http.StatusText(http.StatusInternalServerError),
					"data":    []map[string]string{{"code": "ERR_INTERNAL", "message": "internal error"}},
				})
			}()
			return next(c)
		}
	}
}
