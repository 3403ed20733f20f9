package scheduler

import (
	"context"

	"CoinFlow/internal/usecase"
)

const (
	AlertJobName    = "alert_watcher"
	AccuracyJobName = "accuracy_tracker"
)

// NewAlertJob runs one watcher tick per schedule. The watcher logs its own
// tick summary.
func NewAlertJob(w *usecase.AlertWatcher) Job {
	return JobFunc{JobName: AlertJobName, Fn: func(ctx context.Context) error {
		_, err := w.Tick(ctx)
		return err
	}}
}

// NewAccuracyJob grades due forecasts per schedule.
func NewAccuracyJob(t *usecase.AccuracyTracker) Job {
	return JobFunc{JobName: AccuracyJobName, Fn: func(ctx context.Context) error {
		_, err := t.Run(ctx)
		return err
	}}
}
