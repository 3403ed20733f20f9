package forecast

import (
	"math"
	"testing"

	"CoinFlow/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ar1 returns w_t = c + phi*w_{t-1}, starting at w0.
func ar1(n int, w0, c, phi float64) []float64 {
	w := make([]float64, n)
	w[0] = w0
	for t := 1; t < n; t++ {
		w[t] = c + phi*w[t-1]
	}
	return w
}

func TestNewUnknownModel(t *testing.T) {
	_, err := New("prophet", DefaultOptions())
	assert.ErrorIs(t, err, models.ErrUnknownModel)

	m, err := New(models.ModelARIMA, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.ModelARIMA, m.Type())
}

func TestLinRegExactLine(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 10 + 2*float64(i)
	}
	m, _ := New(models.ModelLinReg, DefaultOptions())
	require.NoError(t, m.Fit(series))

	pred, err := m.Predict(3)
	require.NoError(t, err)
	require.Len(t, pred, 3)
	for i, p := range pred {
		assert.InDelta(t, 10+2*float64(30+i), p, 1e-9)
	}
	assert.InDelta(t, 2, m.(*LinReg).Slope(), 1e-12)
}

func TestLinRegNotFitted(t *testing.T) {
	_, err := (&LinReg{}).Predict(1)
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.ErrorIs(t, (&LinReg{}).Fit([]float64{1}), ErrSeriesTooShort)
}

func TestARIMARecoversAR1(t *testing.T) {
	series := ar1(40, 10, 1, 0.5)
	m, _ := New(models.ModelARIMA, Options{P: 1, D: 0})
	require.NoError(t, m.Fit(series))

	pred, err := m.Predict(2)
	require.NoError(t, err)
	next := 1 + 0.5*series[len(series)-1]
	assert.InDelta(t, next, pred[0], 1e-6)
	assert.InDelta(t, 1+0.5*next, pred[1], 1e-6)
}

func TestARIMAIntegratesDifferences(t *testing.T) {
	diffs := ar1(30, 8, 1, 0.5)
	series := make([]float64, len(diffs)+1)
	series[0] = 100
	for i, d := range diffs {
		series[i+1] = series[i] + d
	}

	m, _ := New(models.ModelARIMA, Options{P: 1, D: 1})
	require.NoError(t, m.Fit(series))
	pred, err := m.Predict(1)
	require.NoError(t, err)
	assert.InDelta(t, series[len(series)-1]+1+0.5*diffs[len(diffs)-1], pred[0], 1e-6)
}

func TestARIMADeterministic(t *testing.T) {
	series := make([]float64, 120)
	for i := range series {
		series[i] = 100 + 5*math.Sin(float64(i)/7) + 0.3*float64(i) + math.Cos(float64(i)*1.3)
	}

	run := func() []float64 {
		m, _ := New(models.ModelARIMA, DefaultOptions())
		require.NoError(t, m.Fit(series))
		p, err := m.Predict(30)
		require.NoError(t, err)
		return p
	}
	first := run()
	assert.Len(t, first, 30)
	assert.Equal(t, first, run())
}

func TestARIMAFailures(t *testing.T) {
	m, _ := New(models.ModelARIMA, DefaultOptions())
	assert.ErrorIs(t, m.Fit(ar1(10, 5, 1, 0.5)), ErrSeriesTooShort)

	flat := make([]float64, 50)
	for i := range flat {
		flat[i] = 42
	}
	assert.ErrorIs(t, m.Fit(flat), ErrSingular)

	_, err := (&ARIMA{p: 1}).Predict(1)
	assert.ErrorIs(t, err, ErrNotFitted)
}
