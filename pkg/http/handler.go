package http

import "github.com/labstack/echo/v4"

// Handler registers its routes on a group that already carries the
// server-wide middleware.
type Handler interface {
	RegisterRoutes(g *echo.Group)
}
