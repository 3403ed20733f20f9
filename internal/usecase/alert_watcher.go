package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	"CoinFlow/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TickReport summarises one watcher pass.
type TickReport struct {
	Active    int `json:"active"`
	Triggered int `json:"triggered"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// AlertWatcher evaluates active alerts against current prices. A triggered
// alert is claimed before its event is emitted, so each alert fires once
// even when ticks overlap or several watchers share the database.
type AlertWatcher struct {
	repo        repository.AlertRepository
	pricer      AssetPricer
	notifier    repository.Notifier
	metrics     repository.Metrics
	logger      *logger.Logger
	concurrency int
	now         func() time.Time
	newID       func() string
}

func NewAlertWatcher(repo repository.AlertRepository, pricer AssetPricer, n repository.Notifier, m repository.Metrics, l *logger.Logger, concurrency int) *AlertWatcher {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &AlertWatcher{
		repo:        repo,
		pricer:      pricer,
		notifier:    n,
		metrics:     m,
		logger:      l.With(logger.String("component", "alert_watcher")),
		concurrency: concurrency,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

func (w *AlertWatcher) Tick(ctx context.Context) (TickReport, error) {
	alerts, err := w.repo.ListActiveAlerts(ctx)
	if err != nil {
		return TickReport{}, fmt.Errorf("list active alerts: %w", err)
	}
	report := TickReport{Active: len(alerts)}
	if len(alerts) == 0 {
		return report, nil
	}

	byAsset := make(map[string][]*models.Alert)
	for _, a := range alerts {
		byAsset[a.AssetSymbol] = append(byAsset[a.AssetSymbol], a)
	}

	var triggered, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for asset, group := range byAsset {
		g.Go(func() error {
			rate, err := w.pricer.AssetRate(gctx, asset)
			if err != nil {
				if !errors.Is(err, models.ErrNoDataAvailable) {
					w.logger.Warn("price lookup failed", logger.String("asset", asset), logger.Error(err))
				}
				skipped.Add(int64(len(group)))
				return nil
			}

			for _, a := range group {
				if !a.Triggered(rate.BestPrice) {
					continue
				}
				switch w.fire(gctx, a, rate.BestPrice) {
				case fireSent:
					triggered.Add(1)
				case fireFailed:
					failed.Add(1)
				}
			}
			return nil
		})
	}
	err = g.Wait()

	report.Triggered = int(triggered.Load())
	report.Skipped = int(skipped.Load())
	report.Failed = int(failed.Load())
	if report.Triggered > 0 || report.Failed > 0 {
		w.logger.Info("alert tick done",
			logger.Int("active", report.Active),
			logger.Int("triggered", report.Triggered),
			logger.Int("skipped", report.Skipped),
			logger.Int("failed", report.Failed))
	}
	return report, err
}

type fireResult int

const (
	fireLost fireResult = iota // another watcher claimed it
	fireSent
	fireFailed
)

func (w *AlertWatcher) fire(ctx context.Context, a *models.Alert, price float64) fireResult {
	at := w.now().UTC()
	claimed, err := w.repo.ClaimAlert(ctx, a.ID, at)
	if err != nil {
		w.logger.Error("claim alert failed", logger.Int64("alert_id", a.ID), logger.Error(err))
		return fireFailed
	}
	if !claimed {
		return fireLost
	}

	event := models.AlertEvent{
		EventID:     w.newID(),
		AlertID:     a.ID,
		UserID:      a.UserID,
		AssetSymbol: a.AssetSymbol,
		Condition:   a.Condition,
		TargetPrice: a.TargetPrice,
		ActualPrice: price,
		TriggeredAt: at,
	}
	if err := w.notifier.Notify(ctx, event); err != nil {
		w.metrics.RecordNotifyFailure(notifierName(w.notifier))
		w.logger.Error("alert notification failed, re-arming for next tick",
			logger.Int64("alert_id", a.ID), logger.Error(err))
		// The tick context may be done already; the release must still land.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.repo.ReleaseAlert(rctx, a.ID); err != nil {
			w.logger.Error("release alert failed", logger.Int64("alert_id", a.ID), logger.Error(err))
		}
		return fireFailed
	}

	w.metrics.RecordAlertTriggered(a.AssetSymbol)
	w.logger.Info("alert triggered",
		logger.Int64("alert_id", a.ID),
		logger.Int64("user_id", a.UserID),
		logger.String("asset", a.AssetSymbol),
		logger.Float64("price", price),
		logger.String("event_id", event.EventID))
	return fireSent
}

func notifierName(n repository.Notifier) string {
	if named, ok := n.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}
