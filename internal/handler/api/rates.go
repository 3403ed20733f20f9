package api

import (
	"context"

	"CoinFlow/internal/domain/models"
	xhttp "CoinFlow/pkg/http"
	xlogger "CoinFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

type RateService interface {
	GetRate(ctx context.Context, base, quote string) (*models.AggregatedRate, error)
	CompareRates(ctx context.Context, base, quote string) (*models.AggregatedRate, error)
	Convert(ctx context.Context, from, to string, amount float64) (*models.Conversion, error)
}

type RatesHandler struct {
	logger *xlogger.Logger
	rates  RateService
}

func NewRatesHandler(logger *xlogger.Logger, rates RateService) *RatesHandler {
	return &RatesHandler{logger: logger, rates: rates}
}

func (h *RatesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/rates", h.Rate)
	g.GET("/rates/compare", h.Compare)
	g.GET("/convert", h.Convert)
}

func (h *RatesHandler) Rate(c echo.Context) error {
	req := &models.RateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.rates.GetRate(c.Request().Context(), req.Base, req.Quote)
	if err != nil {
		return h.fail(c, "rate", err, xlogger.String("base", req.Base), xlogger.String("quote", req.Quote))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *RatesHandler) Compare(c echo.Context) error {
	req := &models.RateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.rates.CompareRates(c.Request().Context(), req.Base, req.Quote)
	if err != nil {
		return h.fail(c, "compare", err, xlogger.String("base", req.Base), xlogger.String("quote", req.Quote))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *RatesHandler) Convert(c echo.Context) error {
	req := &models.ConvertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.rates.Convert(c.Request().Context(), req.From, req.To, req.Amount)
	if err != nil {
		return h.fail(c, "convert", err, xlogger.String("from", req.From), xlogger.String("to", req.To))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *RatesHandler) fail(c echo.Context, op string, err error, fields ...xlogger.Field) error {
	if !isClientError(err) {
		h.logger.Error(op+" usecase error", append(fields, xlogger.Error(err))...)
	}
	return xhttp.AppErrorResponse(c, toAppError(err))
}
