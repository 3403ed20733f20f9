// Package forecast holds the statistical models behind price forecasts.
// Models are deterministic: the same series always yields the same prediction.
package forecast

import (
	"errors"
	"fmt"
	"math"

	"CoinFlow/internal/domain/models"
)

var (
	ErrNotFitted      = errors.New("model not fitted")
	ErrSeriesTooShort = errors.New("series too short for model order")
	ErrSingular       = errors.New("singular design matrix")
)

// Model fits a series of daily closes and extrapolates it.
type Model interface {
	Type() models.ModelType
	Fit(series []float64) error
	Predict(n int) ([]float64, error)
}

type Options struct {
	// ARIMA order; P autoregressive lags on the D-times differenced series.
	P int
	D int
}

func DefaultOptions() Options {
	return Options{P: 5, D: 1}
}

// New returns an unfitted model of the given type.
func New(t models.ModelType, opts Options) (Model, error) {
	switch t {
	case models.ModelLinReg:
		return &LinReg{}, nil
	case models.ModelARIMA:
		if opts.P < 1 {
			opts.P = DefaultOptions().P
		}
		if opts.D < 0 {
			opts.D = 0
		}
		return &ARIMA{p: opts.P, d: opts.D}, nil
	}
	return nil, fmt.Errorf("%w: %q", models.ErrUnknownModel, t)
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func index(n, offset int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(offset + i)
	}
	return xs
}
