package api

import (
	"context"

	"CoinFlow/internal/domain/models"
	xhttp "CoinFlow/pkg/http"
	xlogger "CoinFlow/pkg/logger"

	"github.com/labstack/echo/v4"
)

type AlertManager interface {
	CreateAlert(ctx context.Context, userID int64, asset string, cond models.Condition, target float64) (*models.Alert, error)
	ListAlerts(ctx context.Context, userID int64, activeOnly bool) ([]*models.Alert, error)
	DeleteAlert(ctx context.Context, id, userID int64) error
}

type AlertsHandler struct {
	logger *xlogger.Logger
	alerts AlertManager
}

func NewAlertsHandler(logger *xlogger.Logger, alerts AlertManager) *AlertsHandler {
	return &AlertsHandler{logger: logger, alerts: alerts}
}

func (h *AlertsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/alerts")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.DELETE("/:id", h.Delete)
}

func (h *AlertsHandler) Create(c echo.Context) error {
	req := &models.CreateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	a, err := h.alerts.CreateAlert(c.Request().Context(), req.UserID, req.AssetSymbol, models.Condition(req.Condition), req.TargetPrice)
	if err != nil {
		return h.fail(c, "create alert", err, xlogger.Int64("user_id", req.UserID), xlogger.String("asset", req.AssetSymbol))
	}
	h.logger.Info("alert created",
		xlogger.Int64("id", a.ID), xlogger.Int64("user_id", a.UserID), xlogger.String("asset", a.AssetSymbol))
	return xhttp.CreatedResponse(c, a)
}

func (h *AlertsHandler) List(c echo.Context) error {
	req := &models.ListAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.alerts.ListAlerts(c.Request().Context(), req.UserID, req.ActiveOnly)
	if err != nil {
		return h.fail(c, "list alerts", err, xlogger.Int64("user_id", req.UserID))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *AlertsHandler) Delete(c echo.Context) error {
	req := &models.DeleteAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.alerts.DeleteAlert(c.Request().Context(), req.ID, req.UserID); err != nil {
		return h.fail(c, "delete alert", err, xlogger.Int64("id", req.ID), xlogger.Int64("user_id", req.UserID))
	}
	return xhttp.NoContentResponse(c)
}

func (h *AlertsHandler) fail(c echo.Context, op string, err error, fields ...xlogger.Field) error {
	if !isClientError(err) {
		h.logger.Error(op+" usecase error", append(fields, xlogger.Error(err))...)
	}
	return xhttp.AppErrorResponse(c, toAppError(err))
}
