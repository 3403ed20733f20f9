package usecase

import (
	"context"
	"testing"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/pkg/logger"
	"CoinFlow/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(repo *memForecasts, pricer *fakePricer, minSamples int) *AccuracyTracker {
	tr := NewAccuracyTracker(repo, pricer, metrics.Nop{}, logger.Nop(), AccuracyConfig{
		WindowDays: 30, BatchSize: 100, Concurrency: 2, MinSamples: minSamples, ReferenceQuote: "USD",
	})
	tr.now = func() time.Time { return testNow }
	return tr
}

func seed(t *testing.T, repo *memForecasts, asset string, model models.ModelType, target time.Time, predicted float64) int64 {
	t.Helper()
	r := &models.ForecastRecord{AssetSymbol: asset, ModelType: model, CreatedAt: target.AddDate(0, 0, -7), TargetDate: target, PredictedPrice: predicted}
	require.NoError(t, repo.SaveForecasts(context.Background(), []*models.ForecastRecord{r}))
	return r.ID
}

func TestForecastErrorExact(t *testing.T) {
	mae, mape := forecastError(110, 100)
	assert.Equal(t, 10.0, mae)
	assert.Equal(t, 10.0, mape)

	mae, mape = forecastError(95, 100)
	assert.Equal(t, 5.0, mae)
	assert.Equal(t, 5.0, mape)
}

func TestAccuracyRunGradesDueRecords(t *testing.T) {
	repo := &memForecasts{}
	past := testNow.AddDate(0, 0, -1)
	a := seed(t, repo, "BTC", models.ModelARIMA, past, 110)
	b := seed(t, repo, "BTC", models.ModelLinReg, past, 95)
	future := seed(t, repo, "BTC", models.ModelARIMA, testNow.AddDate(0, 0, 3), 120)
	pricer := newFakePricer(map[string]float64{"BTC": 100})

	rep, err := newTestTracker(repo, pricer, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GradeReport{Due: 2, Graded: 2}, rep)
	assert.Equal(t, 1, pricer.callsFor("BTC"))

	byID := map[int64]*models.ForecastRecord{}
	for _, r := range repo.all() {
		byID[r.ID] = r
	}
	require.NotNil(t, byID[a].RealizedPrice)
	assert.Equal(t, 100.0, *byID[a].RealizedPrice)
	assert.Equal(t, 10.0, *byID[a].MAE)
	assert.Equal(t, 10.0, *byID[a].MAPE)
	assert.Equal(t, 5.0, *byID[b].MAPE)
	assert.Nil(t, byID[future].RealizedPrice)

	rep, err = newTestTracker(repo, pricer, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Due, "graded records are never graded again")
}

func TestAccuracyRunSkipsUnpricedAsset(t *testing.T) {
	repo := &memForecasts{}
	id := seed(t, repo, "cs2:Case", models.ModelLinReg, testNow.AddDate(0, 0, -1), 1)
	seed(t, repo, "ETH", models.ModelLinReg, testNow.AddDate(0, 0, -1), 3000)
	pricer := newFakePricer(map[string]float64{"ETH": 3000})

	rep, err := newTestTracker(repo, pricer, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Graded)
	assert.Equal(t, 1, rep.Skipped)
	for _, r := range repo.all() {
		if r.ID == id {
			assert.Nil(t, r.RealizedPrice)
		}
	}
}

func TestBestModel(t *testing.T) {
	repo := &memForecasts{}
	past := testNow.AddDate(0, 0, -2)
	for _, p := range []float64{105, 95, 110} { // MAPE 5, 5, 10
		seed(t, repo, "BTC", models.ModelARIMA, past, p)
	}
	seed(t, repo, "BTC", models.ModelLinReg, past, 101) // MAPE 1, single sample
	pricer := newFakePricer(map[string]float64{"BTC": 100})

	tr := newTestTracker(repo, pricer, 3)
	_, err := tr.Run(context.Background())
	require.NoError(t, err)

	acc, err := tr.GetModelAccuracy(context.Background(), "btc", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, acc[models.ModelARIMA].SampleCount)
	assert.InDelta(t, 20.0/3, acc[models.ModelARIMA].AvgMAPE, 1e-9)
	assert.Equal(t, 1, acc[models.ModelLinReg].SampleCount)

	best, stats, err := tr.BestModel(context.Background(), "BTC", 30)
	require.NoError(t, err)
	assert.Equal(t, models.ModelARIMA, best, "linreg lacks samples")
	assert.Equal(t, 3, stats.SampleCount)

	best, _, err = newTestTracker(repo, pricer, 1).BestModel(context.Background(), "BTC", 30)
	require.NoError(t, err)
	assert.Equal(t, models.ModelLinReg, best)

	_, _, err = tr.BestModel(context.Background(), "ETH", 30)
	assert.ErrorIs(t, err, models.ErrNoAccuracyData)
}
