package forecast

import (
	"fmt"

	"CoinFlow/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// LinReg is an OLS fit of price on the day index.
type LinReg struct {
	alpha, beta float64
	n           int
}

var _ Model = (*LinReg)(nil)

func (m *LinReg) Type() models.ModelType { return models.ModelLinReg }

func (m *LinReg) Fit(series []float64) error {
	if len(series) < 2 {
		return fmt.Errorf("linreg: %w: %d points", ErrSeriesTooShort, len(series))
	}
	if !finite(series) {
		return fmt.Errorf("linreg: non-finite input")
	}
	m.alpha, m.beta = stat.LinearRegression(index(len(series), 0), series, nil, false)
	m.n = len(series)
	return nil
}

func (m *LinReg) Predict(n int) ([]float64, error) {
	if m.n == 0 {
		return nil, ErrNotFitted
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = m.alpha + m.beta*float64(m.n+i)
	}
	return out, nil
}

// Line evaluates the fitted line at index x.
func (m *LinReg) Line(x float64) float64 {
	return m.alpha + m.beta*x
}

// Slope is the fitted change per day.
func (m *LinReg) Slope() float64 { return m.beta }
