package forecast

import (
	"fmt"
	"math"

	"CoinFlow/internal/domain/models"

	"gonum.org/v1/gonum/mat"
)

// ARIMA is an ARIMA(p,d,0) model. AR coefficients and an intercept are
// estimated by conditional least squares on the d-times differenced series.
type ARIMA struct {
	p, d int

	coef   []float64   // intercept, phi_1..phi_p
	diffed []float64   // series after d differences
	lasts  [][]float64 // lasts[k] is the k-times differenced series, for integration
}

var _ Model = (*ARIMA)(nil)

func (m *ARIMA) Type() models.ModelType { return models.ModelARIMA }

func (m *ARIMA) Fit(series []float64) error {
	if !finite(series) {
		return fmt.Errorf("arima: non-finite input")
	}

	levels := [][]float64{series}
	w := series
	for k := 0; k < m.d; k++ {
		w = diff(w)
		levels = append(levels, w)
	}

	rows := len(w) - m.p
	cols := m.p + 1
	if rows < cols+1 {
		return fmt.Errorf("arima(%d,%d,0): %w: %d points", m.p, m.d, ErrSeriesTooShort, len(series))
	}

	x := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := r + m.p
		x.Set(r, 0, 1)
		for j := 1; j <= m.p; j++ {
			x.Set(r, j, w[t-j])
		}
		y.SetVec(r, w[t])
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return fmt.Errorf("arima(%d,%d,0): %w: %v", m.p, m.d, ErrSingular, err)
	}
	coef := make([]float64, cols)
	for i := range coef {
		coef[i] = beta.AtVec(i)
	}
	if !finite(coef) {
		return fmt.Errorf("arima(%d,%d,0): %w", m.p, m.d, ErrSingular)
	}

	m.coef = coef
	m.diffed = w
	m.lasts = levels
	return nil
}

func (m *ARIMA) Predict(n int) ([]float64, error) {
	if m.coef == nil {
		return nil, ErrNotFitted
	}

	// Recursive AR forecast on the differenced scale.
	hist := append([]float64(nil), m.diffed...)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		t := len(hist)
		next := m.coef[0]
		for j := 1; j <= m.p; j++ {
			next += m.coef[j] * hist[t-j]
		}
		hist = append(hist, next)
		out[i] = next
	}

	// Integrate back one level at a time.
	for k := m.d - 1; k >= 0; k-- {
		level := m.lasts[k]
		acc := level[len(level)-1]
		for i := range out {
			acc += out[i]
			out[i] = acc
		}
	}

	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("arima: diverged")
		}
	}
	return out, nil
}

func diff(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = xs[i] - xs[i-1]
	}
	return out
}
