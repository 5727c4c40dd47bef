package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"LiqPool/internal/domain/models"
	"LiqPool/internal/services/pool"
	"LiqPool/internal/usecase"
	xhttp "LiqPool/pkg/http"
	xlogger "LiqPool/pkg/logger"
)

// Snapshots is the read side the handlers serve from.
type Snapshots interface {
	Symbol() string
	Pools(ctx context.Context, res models.Resolution, state string, limit int) ([]models.Pool, int, error)
	Pool(ctx context.Context, id string) (models.Pool, error)
	Zones(ctx context.Context, side string, limit int) ([]models.Zone, int, error)
	Metrics(ctx context.Context) (pool.Metrics, time.Time, error)
}

var _ Snapshots = (*usecase.QueryUseCase)(nil)

// PoolsHandler serves pools, zones and registry counters from the latest
// snapshot.
type PoolsHandler struct {
	logger *xlogger.Logger
	q      Snapshots
}

func NewPoolsHandler(logger *xlogger.Logger, q Snapshots) *PoolsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PoolsHandler{logger: logger.Component("api"), q: q}
}

func (h *PoolsHandler) RegisterRoutes(g *echo.Group) {
	api := g.Group("/api")
	api.GET("/pools", h.Pools)
	api.GET("/pools/:id", h.Pool)
	api.GET("/zones", h.Zones)
	api.GET("/registry/metrics", h.RegistryMetrics)
}

func (h *PoolsHandler) Pools(c echo.Context) error {
	req := &models.PoolsRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var res models.Resolution
	if req.Resolution != "" {
		r, err := models.ParseResolution(req.Resolution)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("resolution", "%v", err))
		}
		res = r
	}

	rows, total, err := h.q.Pools(c.Request().Context(), res, req.State, req.Limit)
	if err != nil {
		return h.fail(c, "pools", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.ListResponse(c, rows, total)
}

func (h *PoolsHandler) Pool(c echo.Context) error {
	req := &models.PoolRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.q.Pool(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "pool", err)
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *PoolsHandler) Zones(c echo.Context) error {
	req := &models.ZonesRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, total, err := h.q.Zones(c.Request().Context(), req.Side, req.Limit)
	if err != nil {
		return h.fail(c, "zones", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.ListResponse(c, rows, total)
}

type registryMetrics struct {
	Symbol string       `json:"symbol"`
	At     time.Time    `json:"at"`
	Pools  pool.Metrics `json:"pools"`
}

func (h *PoolsHandler) RegistryMetrics(c echo.Context) error {
	m, at, err := h.q.Metrics(c.Request().Context())
	if err != nil {
		return h.fail(c, "registry metrics", err)
	}
	return xhttp.SuccessResponse(c, registryMetrics{Symbol: h.q.Symbol(), At: at, Pools: m})
}

func (h *PoolsHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, usecase.ErrPoolNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("pool %q not found", c.Param("id")))
	case errors.Is(err, usecase.ErrNoSnapshot):
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("no snapshot yet for "+h.q.Symbol()))
	}
	h.logger.Error(op+" query failed", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError(http.StatusText(http.StatusInternalServerError)).WithError(err))
}
