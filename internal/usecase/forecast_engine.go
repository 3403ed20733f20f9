package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	"CoinFlow/internal/service/cache"
	"CoinFlow/internal/service/forecast"
	"CoinFlow/pkg/logger"
)

type ForecastConfig struct {
	DefaultModel     models.ModelType
	Model            forecast.Options
	MinHistoryPoints int
	RecordAllPoints  bool
	HistoryTTL       time.Duration
	Timeout          time.Duration
	ReferenceQuote   string
}

// ForecastEngine loads daily history, fits a model and records the prediction
// so the accuracy tracker can grade it later.
type ForecastEngine struct {
	history []repository.HistoryProvider
	cache   *cache.Cache
	repo    repository.ForecastRepository
	metrics repository.Metrics
	logger  *logger.Logger
	cfg     ForecastConfig
	now     func() time.Time
}

// NewForecastEngine tries history providers in the given order.
func NewForecastEngine(
	history []repository.HistoryProvider,
	c *cache.Cache,
	repo repository.ForecastRepository,
	m repository.Metrics,
	l *logger.Logger,
	cfg ForecastConfig,
) *ForecastEngine {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = models.ModelARIMA
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ReferenceQuote == "" {
		cfg.ReferenceQuote = "USD"
	}
	return &ForecastEngine{
		history: history,
		cache:   c,
		repo:    repo,
		metrics: m,
		logger:  l.With(logger.String("component", "forecast")),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (e *ForecastEngine) DefaultModel() models.ModelType { return e.cfg.DefaultModel }

func (e *ForecastEngine) GenerateForecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastResult, error) {
	if req.Model == "" {
		req.Model = e.cfg.DefaultModel
	}
	if !req.Model.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownModel, req.Model)
	}
	if req.ForecastDays < 1 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidHorizon, req.ForecastDays)
	}
	if req.HistoryDays < 2*req.ForecastDays {
		return nil, fmt.Errorf("%w: history_days %d must be at least twice forecast_days %d",
			models.ErrInsufficientHistory, req.HistoryDays, req.ForecastDays)
	}
	pair, err := models.ParseAsset(req.Asset, e.cfg.ReferenceQuote)
	if err != nil {
		return nil, err
	}

	start := e.now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	history, err := e.loadHistory(ctx, pair, req.HistoryDays)
	if err != nil {
		return nil, err
	}
	need := max(2*req.ForecastDays, e.cfg.MinHistoryPoints)
	if len(history) < need {
		return nil, fmt.Errorf("%w: %s has %d daily closes, need %d", models.ErrInsufficientHistory, pair, len(history), need)
	}

	series := make([]float64, len(history))
	for i, p := range history {
		series[i] = p.Price
	}

	used, predicted, err := e.fitPredict(pair, req.Model, series, req.ForecastDays)
	if err != nil {
		return nil, err
	}

	current := series[len(series)-1]
	if !validPrice(current) {
		return nil, fmt.Errorf("%w: current price %v", models.ErrForecastFailed, current)
	}
	for _, p := range predicted {
		if !validPrice(p) {
			return nil, fmt.Errorf("%w: predicted price %v", models.ErrForecastFailed, p)
		}
	}

	asset := pair.AssetKey(e.cfg.ReferenceQuote)
	result := e.buildResult(asset, req.Model, used, history, predicted)

	ids, err := e.persist(ctx, asset, used, req.UserID, result.ChartData.Forecast)
	if err != nil {
		return nil, err
	}
	result.RecordIDs = ids

	e.metrics.RecordForecast(asset, used)
	e.metrics.RecordLatency("forecast", e.now().Sub(start).Seconds())
	return result, nil
}

// ListForecasts returns recorded predictions for asset created at or after since, newest first.
func (e *ForecastEngine) ListForecasts(ctx context.Context, asset string, since time.Time, limit int) ([]*models.ForecastRecord, error) {
	pair, err := models.ParseAsset(asset, e.cfg.ReferenceQuote)
	if err != nil {
		return nil, err
	}
	return e.repo.ListForecasts(ctx, pair.AssetKey(e.cfg.ReferenceQuote), since, limit)
}

// fitPredict runs the requested model, falling back to linreg when ARIMA cannot be fitted.
func (e *ForecastEngine) fitPredict(pair models.Pair, requested models.ModelType, series []float64, n int) (models.ModelType, []float64, error) {
	pred, err := runModel(requested, e.cfg.Model, series, n)
	if err == nil {
		return requested, pred, nil
	}
	if requested != models.ModelARIMA {
		return "", nil, fmt.Errorf("%w: %v", models.ErrForecastFailed, err)
	}

	e.logger.Warn("arima failed, falling back to linreg",
		logger.String("pair", pair.String()), logger.Int("points", len(series)), logger.Error(err))
	pred, err = runModel(models.ModelLinReg, e.cfg.Model, series, n)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", models.ErrForecastFailed, err)
	}
	return models.ModelLinReg, pred, nil
}

func runModel(t models.ModelType, opts forecast.Options, series []float64, n int) ([]float64, error) {
	m, err := forecast.New(t, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(series); err != nil {
		return nil, err
	}
	return m.Predict(n)
}

func (e *ForecastEngine) buildResult(asset string, requested, used models.ModelType, history []models.PricePoint, predicted []float64) *models.ForecastResult {
	// One model step is one bar, so weekday-only series are projected
	// onto weekdays.
	step := nextDay
	if weekdaysOnly(history) {
		step = nextWeekday
	}
	date := history[len(history)-1].Date
	points := make([]models.PricePoint, len(predicted))
	for i, p := range predicted {
		date = step(date)
		points[i] = models.PricePoint{Date: date, Price: p}
	}

	all := make([]float64, 0, len(history)+len(predicted))
	for _, p := range history {
		all = append(all, p.Price)
	}
	all = append(all, predicted...)
	var trend models.TrendLine
	lr := &forecast.LinReg{}
	if err := lr.Fit(all); err == nil {
		trend = models.TrendLine{Intercept: lr.Line(0), Slope: lr.Slope()}
	}

	current := history[len(history)-1].Price
	end := predicted[len(predicted)-1]
	direction := "up"
	if end < current {
		direction = "down"
	}
	confidence := "medium"
	if used == models.ModelARIMA {
		confidence = "high"
	}

	return &models.ForecastResult{
		Asset:          asset,
		ModelRequested: requested,
		ModelUsed:      used,
		ChartData: models.ChartData{
			History:  history,
			Forecast: points,
			Trend:    trend,
		},
		PredictedSeries: predicted,
		Stats: models.ForecastStats{
			CurrentPrice:   current,
			PredictedPrice: end,
			ChangePct:      (end - current) / current * 100,
			Trend:          direction,
			Model:          used,
			Confidence:     confidence,
			PointsAnalysed: len(history),
			ForecastDate:   points[len(points)-1].Date,
		},
	}
}

func (e *ForecastEngine) persist(ctx context.Context, asset string, model models.ModelType, userID int64, points []models.PricePoint) ([]int64, error) {
	if !e.cfg.RecordAllPoints {
		points = points[len(points)-1:]
	}
	created := e.now().UTC()
	records := make([]*models.ForecastRecord, len(points))
	for i, p := range points {
		records[i] = &models.ForecastRecord{
			AssetSymbol:    asset,
			ModelType:      model,
			UserID:         userID,
			CreatedAt:      created,
			TargetDate:     p.Date,
			PredictedPrice: p.Price,
		}
	}
	if err := e.repo.SaveForecasts(ctx, records); err != nil {
		return nil, fmt.Errorf("save forecasts: %w", err)
	}
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids, nil
}

// loadHistory walks the provider chain, first non-empty answer wins.
func (e *ForecastEngine) loadHistory(ctx context.Context, pair models.Pair, days int) ([]models.PricePoint, error) {
	key := cache.Key("history", pair.Base, pair.Quote, days)
	return cache.GetOrFetch(ctx, e.cache, key, e.cfg.HistoryTTL, func(ctx context.Context) ([]models.PricePoint, error) {
		allNotFound := true
		for _, h := range e.history {
			points, err := h.DailyCloses(ctx, pair, days)
			if err == nil && len(points) > 0 {
				return points, nil
			}
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				allNotFound = false
				e.logger.Warn("history provider failed",
					logger.String("provider", h.Name()), logger.String("pair", pair.String()), logger.Error(err))
				continue
			}
			e.logger.Debug("history provider has no data",
				logger.String("provider", h.Name()), logger.String("pair", pair.String()))
		}
		if allNotFound {
			return nil, fmt.Errorf("%w: no provider has history for %s", models.ErrInsufficientHistory, pair)
		}
		return nil, fmt.Errorf("history for %s: %w", pair, models.ErrNoDataAvailable)
	})
}

func nextDay(t time.Time) time.Time { return t.AddDate(0, 0, 1) }

func nextWeekday(t time.Time) time.Time {
	t = t.AddDate(0, 0, 1)
	for isWeekend(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

// weekdaysOnly reports a session-based series (equities, official fixings).
// It needs at least a week of bars to tell.
func weekdaysOnly(history []models.PricePoint) bool {
	if len(history) < 2 || history[len(history)-1].Date.Sub(history[0].Date) < 7*24*time.Hour {
		return false
	}
	for _, p := range history {
		if isWeekend(p.Date) {
			return false
		}
	}
	return true
}
