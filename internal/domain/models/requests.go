package models

// HTTP request bodies and query parameters.

type RateRequest struct {
	Base  string `query:"base" json:"base" validate:"required,max=128"`
	Quote string `query:"quote" json:"quote" default:"USD" validate:"required,max=16"`
}

type ConvertRequest struct {
	From   string  `query:"from" json:"from" validate:"required,max=128"`
	To     string  `query:"to" json:"to" validate:"required,max=16"`
	Amount float64 `query:"amount" json:"amount" default:"1" validate:"gt=0"`
}

type ForecastHTTPRequest struct {
	Asset        string `json:"asset" validate:"required,max=128"`
	Model        string `json:"model" validate:"omitempty,oneof=arima linreg"`
	HistoryDays  int    `json:"history_days" default:"180" validate:"gte=2,lte=3650"`
	ForecastDays int    `json:"forecast_days" default:"30" validate:"gte=1,lte=365"`
	UserID       int64  `json:"user_id" validate:"gte=0"`
}

type ForecastListRequest struct {
	Asset string `query:"asset" validate:"required,max=128"`
	Since string `query:"since"`
	Limit int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}

type AccuracyRequest struct {
	Asset      string `query:"asset" validate:"required,max=128"`
	WindowDays int    `query:"window_days" default:"30" validate:"gte=1,lte=3650"`
}

type CreateAlertRequest struct {
	UserID      int64   `json:"user_id" validate:"required,gt=0"`
	AssetSymbol string  `json:"asset_symbol" validate:"required,max=128"`
	Condition   string  `json:"condition" validate:"required,oneof=above below"`
	TargetPrice float64 `json:"target_price" validate:"gt=0"`
}

type ListAlertsRequest struct {
	UserID     int64 `query:"user_id" validate:"required,gt=0"`
	ActiveOnly bool  `query:"active_only"`
}

type DeleteAlertRequest struct {
	ID     int64 `param:"id" validate:"required,gt=0"`
	UserID int64 `query:"user_id" validate:"required,gt=0"`
}

type InvalidateCacheRequest struct {
	Namespace string `param:"namespace" validate:"required,oneof=quote history"`
}

type RunJobRequest struct {
	Name string `param:"name" validate:"required,max=64"`
}
