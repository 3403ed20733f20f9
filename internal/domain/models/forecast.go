package models

import "time"

type ModelType string

const (
	ModelARIMA  ModelType = "arima"
	ModelLinReg ModelType = "linreg"
)

func (m ModelType) Valid() bool {
	return m == ModelARIMA || m == ModelLinReg
}

// ForecastRecord is one persisted prediction, graded once its target date passes.
type ForecastRecord struct {
	ID             int64      `json:"id"`
	AssetSymbol    string     `json:"asset_symbol"`
	ModelType      ModelType  `json:"model_type"`
	UserID         int64      `json:"user_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	TargetDate     time.Time  `json:"target_date"`
	PredictedPrice float64    `json:"predicted_price"`
	RealizedPrice  *float64   `json:"realized_price,omitempty"`
	MAE            *float64   `json:"mae,omitempty"`
	MAPE           *float64   `json:"mape,omitempty"`
	GradedAt       *time.Time `json:"graded_at,omitempty"`
}

type ForecastRequest struct {
	Asset        string
	Model        ModelType
	HistoryDays  int
	ForecastDays int
	UserID       int64
}

type ForecastStats struct {
	CurrentPrice   float64   `json:"current_price"`
	PredictedPrice float64   `json:"predicted_price"`
	ChangePct      float64   `json:"change_pct"`
	Trend          string    `json:"trend"`
	Model          ModelType `json:"model"`
	Confidence     string    `json:"confidence"`
	PointsAnalysed int       `json:"points_analysed"`
	ForecastDate   time.Time `json:"forecast_date"`
}

type TrendLine struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
}

type ChartData struct {
	History  []PricePoint `json:"history"`
	Forecast []PricePoint `json:"forecast"`
	Trend    TrendLine    `json:"trend"`
}

type ForecastResult struct {
	Asset           string        `json:"asset"`
	ModelRequested  ModelType     `json:"model_requested"`
	ModelUsed       ModelType     `json:"model_used"`
	ChartData       ChartData     `json:"chart_data"`
	PredictedSeries []float64     `json:"predicted_series"`
	Stats           ForecastStats `json:"stats"`
	RecordIDs       []int64       `json:"record_ids"`
}

type ModelAccuracy struct {
	AvgMAE      float64 `json:"avg_mae"`
	AvgMAPE     float64 `json:"avg_mape"`
	SampleCount int     `json:"sample_count"`
}
