package api

import (
	"context"
	"time"

	"CoinFlow/internal/domain/models"
	xhttp "CoinFlow/pkg/http"
	xlogger "CoinFlow/pkg/logger"
	xutil "CoinFlow/pkg/util"

	"github.com/labstack/echo/v4"
)

type Forecaster interface {
	GenerateForecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error)
	ListForecasts(ctx context.Context, asset string, since time.Time, limit int) ([]*models.ForecastRecord, error)
}

type AccuracyReader interface {
	GetModelAccuracy(ctx context.Context, asset string, windowDays int) (map[models.ModelType]models.ModelAccuracy, error)
	BestModel(ctx context.Context, asset string, windowDays int) (models.ModelType, models.ModelAccuracy, error)
}

// defaultListWindow bounds GET /api/forecasts when since is omitted.
const defaultListWindow = 30 * 24 * time.Hour

type ForecastsHandler struct {
	logger     *xlogger.Logger
	forecaster Forecaster
	accuracy   AccuracyReader
	now        func() time.Time
}

func NewForecastsHandler(logger *xlogger.Logger, f Forecaster, acc AccuracyReader) *ForecastsHandler {
	return &ForecastsHandler{logger: logger, forecaster: f, accuracy: acc, now: time.Now}
}

func (h *ForecastsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/forecasts")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/accuracy", h.Accuracy)
	g.GET("/best-model", h.BestModel)
}

func (h *ForecastsHandler) Create(c echo.Context) error {
	req := &models.ForecastHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.forecaster.GenerateForecast(c.Request().Context(), models.ForecastRequest{
		Asset:        req.Asset,
		Model:        models.ModelType(req.Model),
		HistoryDays:  req.HistoryDays,
		ForecastDays: req.ForecastDays,
		UserID:       req.UserID,
	})
	if err != nil {
		return h.fail(c, "forecast", err, xlogger.String("asset", req.Asset), xlogger.String("model", req.Model))
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *ForecastsHandler) List(c echo.Context) error {
	req := &models.ForecastListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since := xutil.ParseTimeDefault(req.Since, h.now().Add(-defaultListWindow))

	rows, err := h.forecaster.ListForecasts(c.Request().Context(), req.Asset, since, req.Limit)
	if err != nil {
		return h.fail(c, "list forecasts", err, xlogger.String("asset", req.Asset))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type accuracyResponse struct {
	Asset      string                                    `json:"asset"`
	WindowDays int                                       `json:"window_days"`
	Models     map[models.ModelType]models.ModelAccuracy `json:"models"`
}

func (h *ForecastsHandler) Accuracy(c echo.Context) error {
	req := &models.AccuracyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	acc, err := h.accuracy.GetModelAccuracy(c.Request().Context(), req.Asset, req.WindowDays)
	if err != nil {
		return h.fail(c, "accuracy", err, xlogger.String("asset", req.Asset))
	}
	return xhttp.SuccessResponse(c, accuracyResponse{Asset: req.Asset, WindowDays: req.WindowDays, Models: acc})
}

type bestModelResponse struct {
	Asset      string           `json:"asset"`
	WindowDays int              `json:"window_days"`
	Model      models.ModelType `json:"model"`
	models.ModelAccuracy
}

func (h *ForecastsHandler) BestModel(c echo.Context) error {
	req := &models.AccuracyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	m, acc, err := h.accuracy.BestModel(c.Request().Context(), req.Asset, req.WindowDays)
	if err != nil {
		return h.fail(c, "best model", err, xlogger.String("asset", req.Asset))
	}
	return xhttp.SuccessResponse(c, bestModelResponse{
		Asset:         req.Asset,
		WindowDays:    req.WindowDays,
		Model:         m,
		ModelAccuracy: acc,
	})
}

func (h *ForecastsHandler) fail(c echo.Context, op string, err error, fields ...xlogger.Field) error {
	if !isClientError(err) {
		h.logger.Error(op+" usecase error", append(fields, xlogger.Error(err))...)
	}
	return xhttp.AppErrorResponse(c, toAppError(err))
}
