package repository

import (
	"context"
	"time"

	"CoinFlow/internal/domain/models"
)

// SourceClient is one upstream price provider. Fetch makes a single outbound
// call and never retries.
type SourceClient interface {
	Name() string
	Class() models.DataClass
	Supports(base, quote string) bool
	Fetch(ctx context.Context, base, quote string) (models.Quote, error)
}

// HistoryProvider returns up to days most recent daily closes for a pair,
// oldest first. Session-based series count trading days, not calendar days.
type HistoryProvider interface {
	Name() string
	DailyCloses(ctx context.Context, pair models.Pair, days int) ([]models.PricePoint, error)
}

// MarketStream is a long-lived streaming source.
type MarketStream interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type ForecastRepository interface {
	SaveForecasts(ctx context.Context, records []*models.ForecastRecord) error
	ListForecasts(ctx context.Context, asset string, since time.Time, limit int) ([]*models.ForecastRecord, error)
	ListDueForecasts(ctx context.Context, now time.Time, limit int) ([]*models.ForecastRecord, error)
	// GradeForecast fills the realized values once; it reports false if the record was already graded.
	GradeForecast(ctx context.Context, id int64, realized, mae, mape float64, gradedAt time.Time) (bool, error)
	ModelAccuracy(ctx context.Context, asset string, since time.Time) (map[models.ModelType]models.ModelAccuracy, error)
}

type AlertRepository interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	ListAlerts(ctx context.Context, userID int64, activeOnly bool) ([]*models.Alert, error)
	ListActiveAlerts(ctx context.Context) ([]*models.Alert, error)
	DeleteAlert(ctx context.Context, id, userID int64) error
	// ClaimAlert deactivates an active alert; it reports false if another caller got there first.
	ClaimAlert(ctx context.Context, id int64, at time.Time) (bool, error)
	// ReleaseAlert re-activates a claimed alert whose notification could not be sent.
	ReleaseAlert(ctx context.Context, id int64) error
}

// QuoteArchive stores aggregated rates for history and analysis.
type QuoteArchive interface {
	Archive(ctx context.Context, rate *models.AggregatedRate) error
	Close() error
}

type Notifier interface {
	Notify(ctx context.Context, event models.AlertEvent) error
}

type Metrics interface {
	RecordFetch(provider, result string, seconds float64)
	RecordCache(hit bool)
	RecordAggregation(pair string, best, spreadPct float64, quotes int)
	RecordBreakerState(provider string, open bool)
	RecordForecast(asset string, model models.ModelType)
	RecordForecastError(model models.ModelType, mape float64)
	RecordAlertTriggered(asset string)
	RecordNotifyFailure(backend string)
	RecordLatency(op string, seconds float64)
}
