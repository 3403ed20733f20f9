package metrics

import (
	"CoinFlow/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches       *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	bestPrice     *prometheus.GaugeVec
	spread        *prometheus.GaugeVec
	quoteCount    *prometheus.GaugeVec
	breakerOpen   *prometheus.GaugeVec
	forecasts     *prometheus.CounterVec
	forecastMAPE  *prometheus.HistogramVec
	alerts        *prometheus.CounterVec
	notifyFailure *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the collectors on the default registry. Call it once per process.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinflow_source_fetches_total",
				Help: "Provider fetches by outcome",
			},
			[]string{"provider", "result"},
		),
		fetchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinflow_source_fetch_duration_seconds",
				Help:    "Provider fetch latency",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8, 12},
			},
			[]string{"provider"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinflow_cache_lookups_total",
				Help: "Cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		bestPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinflow_best_price",
				Help: "Last aggregated best price per pair",
			},
			[]string{"pair"},
		),
		spread: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinflow_spread_pct",
				Help: "Last aggregated spread percentage per pair",
			},
			[]string{"pair"},
		),
		quoteCount: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinflow_quotes_in_aggregate",
				Help: "Number of quotes that made it into the last aggregate",
			},
			[]string{"pair"},
		),
		breakerOpen: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinflow_breaker_open",
				Help: "1 when the provider circuit breaker is open",
			},
			[]string{"provider"},
		),
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinflow_forecasts_total",
				Help: "Forecasts generated",
			},
			[]string{"asset", "model"},
		),
		forecastMAPE: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinflow_forecast_mape",
				Help:    "Absolute percentage error of graded forecasts",
				Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"model"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinflow_alerts_triggered_total",
				Help: "Alerts triggered",
			},
			[]string{"asset"},
		),
		notifyFailure: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinflow_notify_failures_total",
				Help: "Alert notifications that could not be handed off",
			},
			[]string{"backend"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinflow_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordFetch(provider, result string, seconds float64) {
	r.fetches.WithLabelValues(provider, result).Inc()
	r.fetchLatency.WithLabelValues(provider).Observe(seconds)
}

func (r *Recorder) RecordCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordAggregation(pair string, best, spreadPct float64, quotes int) {
	r.bestPrice.WithLabelValues(pair).Set(best)
	r.spread.WithLabelValues(pair).Set(spreadPct)
	r.quoteCount.WithLabelValues(pair).Set(float64(quotes))
}

func (r *Recorder) RecordBreakerState(provider string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	r.breakerOpen.WithLabelValues(provider).Set(v)
}

func (r *Recorder) RecordForecast(asset string, model models.ModelType) {
	r.forecasts.WithLabelValues(asset, string(model)).Inc()
}

func (r *Recorder) RecordForecastError(model models.ModelType, mape float64) {
	r.forecastMAPE.WithLabelValues(string(model)).Observe(mape)
}

func (r *Recorder) RecordAlertTriggered(asset string) {
	r.alerts.WithLabelValues(asset).Inc()
}

func (r *Recorder) RecordNotifyFailure(backend string) {
	r.notifyFailure.WithLabelValues(backend).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
