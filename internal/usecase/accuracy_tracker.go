package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	"CoinFlow/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// AssetPricer prices an asset symbol; RateAggregator implements it.
type AssetPricer interface {
	AssetRate(ctx context.Context, symbol string) (*models.AggregatedRate, error)
}

var _ AssetPricer = (*RateAggregator)(nil)

type AccuracyConfig struct {
	WindowDays     int
	BatchSize      int
	Concurrency    int
	MinSamples     int
	ReferenceQuote string
}

// GradeReport summarises one grading pass.
type GradeReport struct {
	Due     int `json:"due"`
	Graded  int `json:"graded"`
	Skipped int `json:"skipped"`
}

// AccuracyTracker grades forecasts whose target date has passed.
type AccuracyTracker struct {
	repo    repository.ForecastRepository
	pricer  AssetPricer
	metrics repository.Metrics
	logger  *logger.Logger
	cfg     AccuracyConfig
	now     func() time.Time
}

func NewAccuracyTracker(repo repository.ForecastRepository, pricer AssetPricer, m repository.Metrics, l *logger.Logger, cfg AccuracyConfig) *AccuracyTracker {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 1
	}
	if cfg.ReferenceQuote == "" {
		cfg.ReferenceQuote = "USD"
	}
	return &AccuracyTracker{
		repo:    repo,
		pricer:  pricer,
		metrics: m,
		logger:  l.With(logger.String("component", "accuracy")),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Run grades every due forecast, one aggregator call per asset.
func (t *AccuracyTracker) Run(ctx context.Context) (GradeReport, error) {
	now := t.now().UTC()
	due, err := t.repo.ListDueForecasts(ctx, now, t.cfg.BatchSize)
	if err != nil {
		return GradeReport{}, fmt.Errorf("list due forecasts: %w", err)
	}
	report := GradeReport{Due: len(due)}
	if len(due) == 0 {
		return report, nil
	}

	byAsset := make(map[string][]*models.ForecastRecord)
	for _, r := range due {
		byAsset[r.AssetSymbol] = append(byAsset[r.AssetSymbol], r)
	}

	var graded, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)
	for asset, records := range byAsset {
		g.Go(func() error {
			rate, err := t.pricer.AssetRate(gctx, asset)
			if err != nil {
				if errors.Is(err, models.ErrNoDataAvailable) {
					t.logger.Info("no price yet, grading later", logger.String("asset", asset))
				} else {
					t.logger.Warn("price lookup failed", logger.String("asset", asset), logger.Error(err))
				}
				skipped.Add(int64(len(records)))
				return nil
			}
			realized := rate.BestPrice
			if realized <= 0 {
				t.logger.Warn("non-positive realized price", logger.String("asset", asset), logger.Float64("price", realized))
				skipped.Add(int64(len(records)))
				return nil
			}

			for _, r := range records {
				mae, mape := forecastError(r.PredictedPrice, realized)
				ok, err := t.repo.GradeForecast(gctx, r.ID, realized, mae, mape, now)
				if err != nil {
					return fmt.Errorf("grade forecast %d: %w", r.ID, err)
				}
				if ok {
					graded.Add(1)
					t.metrics.RecordForecastError(r.ModelType, mape)
				}
			}
			return nil
		})
	}
	err = g.Wait()

	report.Graded = int(graded.Load())
	report.Skipped = int(skipped.Load())
	t.logger.Info("accuracy pass done",
		logger.Int("due", report.Due), logger.Int("graded", report.Graded), logger.Int("skipped", report.Skipped))
	return report, err
}

// forecastError returns the absolute and absolute percentage error.
func forecastError(predicted, realized float64) (mae, mape float64) {
	mae = math.Abs(predicted - realized)
	return mae, mae / realized * 100
}

// GetModelAccuracy averages graded errors per model over the last windowDays.
func (t *AccuracyTracker) GetModelAccuracy(ctx context.Context, asset string, windowDays int) (map[models.ModelType]models.ModelAccuracy, error) {
	key, err := t.assetKey(asset)
	if err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = t.cfg.WindowDays
	}
	since := t.now().UTC().AddDate(0, 0, -windowDays)
	acc, err := t.repo.ModelAccuracy(ctx, key, since)
	if err != nil {
		return nil, fmt.Errorf("model accuracy: %w", err)
	}
	return acc, nil
}

// BestModel picks the lowest average MAPE among models with enough samples.
func (t *AccuracyTracker) BestModel(ctx context.Context, asset string, windowDays int) (models.ModelType, models.ModelAccuracy, error) {
	acc, err := t.GetModelAccuracy(ctx, asset, windowDays)
	if err != nil {
		return "", models.ModelAccuracy{}, err
	}

	candidates := make([]models.ModelType, 0, len(acc))
	for m, a := range acc {
		if a.SampleCount >= t.cfg.MinSamples {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", models.ModelAccuracy{}, fmt.Errorf("%s: %w", asset, models.ErrNoAccuracyData)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := acc[candidates[i]], acc[candidates[j]]
		if a.AvgMAPE != b.AvgMAPE {
			return a.AvgMAPE < b.AvgMAPE
		}
		return candidates[i] < candidates[j]
	})
	best := candidates[0]
	return best, acc[best], nil
}

func (t *AccuracyTracker) assetKey(asset string) (string, error) {
	pair, err := models.ParseAsset(asset, t.cfg.ReferenceQuote)
	if err != nil {
		return "", err
	}
	return pair.AssetKey(t.cfg.ReferenceQuote), nil
}
