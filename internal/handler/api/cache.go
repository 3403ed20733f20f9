package api

import (
	"context"

	"CoinFlow/internal/domain/models"
	pkgcache "CoinFlow/pkg/cache"
	xhttp "CoinFlow/pkg/http"
	xlogger "CoinFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

type CacheInvalidator interface {
	Invalidate(ctx context.Context, namespace string) error
}

type CacheHandler struct {
	logger *xlogger.Logger
	stats  pkgcache.StatsProvider
	cache  CacheInvalidator
}

func NewCacheHandler(logger *xlogger.Logger, stats pkgcache.StatsProvider, cache CacheInvalidator) *CacheHandler {
	return &CacheHandler{logger: logger, stats: stats, cache: cache}
}

func (h *CacheHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/cache/stats", h.Stats)
	e.DELETE("/api/cache/:namespace", h.Invalidate)
}

func (h *CacheHandler) Stats(c echo.Context) error {
	st, err := h.stats.Stats(c.Request().Context())
	if err != nil {
		h.logger.Error("cache stats", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ERR_CACHE", "cache stats unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, st)
}

// Invalidate drops cached quotes or history so the next read goes upstream.
func (h *CacheHandler) Invalidate(c echo.Context) error {
	req := &models.InvalidateCacheRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.cache.Invalidate(c.Request().Context(), req.Namespace); err != nil {
		h.logger.Error("cache invalidate", xlogger.String("namespace", req.Namespace), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ERR_CACHE", "cache unavailable").WithError(err))
	}
	return xhttp.NoContentResponse(c)
}
