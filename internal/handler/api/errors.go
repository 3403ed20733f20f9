package api

import (
	"errors"
	"net/http"

	"CoinFlow/internal/domain/models"
	xhttp "CoinFlow/pkg/http"
)

type errorMapping struct {
	target error
	status int
	code   string
	field  string
}

// Checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{models.ErrInvalidAsset, http.StatusBadRequest, "ERR_INVALID_ASSET", "asset"},
	{models.ErrInvalidAmount, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount"},
	{models.ErrInvalidHorizon, http.StatusBadRequest, "ERR_INVALID_HORIZON", "forecast_days"},
	{models.ErrInvalidCondition, http.StatusBadRequest, "ERR_INVALID_CONDITION", "condition"},
	{models.ErrUnknownModel, http.StatusBadRequest, "ERR_UNKNOWN_MODEL", "model"},
	{models.ErrAlertNotFound, http.StatusNotFound, "ERR_NOT_FOUND", ""},
	{models.ErrJobNotFound, http.StatusNotFound, "ERR_NOT_FOUND", ""},
	{models.ErrInsufficientHistory, http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_HISTORY", ""},
	{models.ErrForecastFailed, http.StatusUnprocessableEntity, "ERR_FORECAST_FAILED", ""},
	{models.ErrNoAccuracyData, http.StatusUnprocessableEntity, "ERR_NO_ACCURACY_DATA", ""},
	{models.ErrNoDataAvailable, http.StatusServiceUnavailable, "ERR_NO_DATA", ""},
}

// toAppError maps domain failures onto HTTP statuses. Anything unknown
// becomes a 500 without leaking the cause.
func toAppError(err error) *xhttp.AppError {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		// Input errors echo the wrapped text so the caller sees which value failed.
		if m.field != "" {
			return xhttp.Wrap(m.status, m.code, err).WithField(m.field)
		}
		return xhttp.NewAppError(m.code, m.field, m.target.Error(), m.status).WithError(err)
	}
	return xhttp.InternalError("internal error").WithError(err)
}

// isClientError keeps 4xx noise out of the error log.
func isClientError(err error) bool {
	return toAppError(err).Status < http.StatusInternalServerError
}
