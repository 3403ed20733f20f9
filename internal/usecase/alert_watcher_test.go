package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/pkg/logger"
	"CoinFlow/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(repo *memAlerts, pricer *fakePricer, n *fakeNotifier) *AlertWatcher {
	w := NewAlertWatcher(repo, pricer, n, metrics.Nop{}, logger.Nop(), 4)
	w.now = func() time.Time { return testNow }
	return w
}

func addAlert(t *testing.T, repo *memAlerts, user int64, asset string, cond models.Condition, target float64) int64 {
	t.Helper()
	a := &models.Alert{UserID: user, AssetSymbol: asset, Condition: cond, TargetPrice: target, Active: true, CreatedAt: testNow}
	require.NoError(t, repo.CreateAlert(context.Background(), a))
	return a.ID
}

func TestAlertBoundary(t *testing.T) {
	tests := []struct {
		cond  models.Condition
		price float64
		fires bool
	}{
		{models.ConditionAbove, 100, true},
		{models.ConditionAbove, 99.999, false},
		{models.ConditionAbove, 100.5, true},
		{models.ConditionBelow, 100, true},
		{models.ConditionBelow, 100.001, false},
		{models.ConditionBelow, 12, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%v", tt.cond, tt.price), func(t *testing.T) {
			repo := newMemAlerts()
			id := addAlert(t, repo, 7, "BTC", tt.cond, 100)
			n := &fakeNotifier{}

			rep, err := newTestWatcher(repo, newFakePricer(map[string]float64{"BTC": tt.price}), n).Tick(context.Background())
			require.NoError(t, err)

			if tt.fires {
				assert.Equal(t, 1, rep.Triggered)
				require.Len(t, n.sent(), 1)
				e := n.sent()[0]
				assert.Equal(t, id, e.AlertID)
				assert.Equal(t, int64(7), e.UserID)
				assert.Equal(t, tt.price, e.ActualPrice)
				assert.NotEmpty(t, e.EventID)
				assert.False(t, repo.get(id).Active)
				assert.Equal(t, testNow, *repo.get(id).TriggeredAt)
			} else {
				assert.Zero(t, rep.Triggered)
				assert.Empty(t, n.sent())
				assert.True(t, repo.get(id).Active)
			}
		})
	}
}

func TestAlertFiresExactlyOnce(t *testing.T) {
	repo := newMemAlerts()
	addAlert(t, repo, 1, "ETH", models.ConditionAbove, 3000)
	addAlert(t, repo, 2, "ETH", models.ConditionAbove, 3000)
	pricer := newFakePricer(map[string]float64{"ETH": 3100})
	n := &fakeNotifier{}

	// Several watchers racing on one store.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := newTestWatcher(repo, pricer, n).Tick(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := newTestWatcher(repo, pricer, n).Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, n.sent(), 2)
}

func TestAlertNotifyFailureRearms(t *testing.T) {
	repo := newMemAlerts()
	id := addAlert(t, repo, 1, "BTC", models.ConditionBelow, 50000)
	pricer := newFakePricer(map[string]float64{"BTC": 49000})
	n := &fakeNotifier{failures: 1}
	w := newTestWatcher(repo, pricer, n)

	rep, err := w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.True(t, repo.get(id).Active, "failed alert must be re-armed")
	assert.Nil(t, repo.get(id).TriggeredAt)

	rep, err = w.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Triggered)
	assert.Len(t, n.sent(), 1)
	assert.False(t, repo.get(id).Active)
}

func TestAlertSkipsAssetWithoutPrice(t *testing.T) {
	repo := newMemAlerts()
	id := addAlert(t, repo, 1, "cs2:Case", models.ConditionAbove, 1)
	other := addAlert(t, repo, 1, "BTC", models.ConditionAbove, 1)
	n := &fakeNotifier{}

	rep, err := newTestWatcher(repo, newFakePricer(map[string]float64{"BTC": 2}), n).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Triggered)
	assert.True(t, repo.get(id).Active)
	assert.False(t, repo.get(other).Active)
}

func TestAlertOnePriceLookupPerAsset(t *testing.T) {
	repo := newMemAlerts()
	for i := 0; i < 3; i++ {
		addAlert(t, repo, int64(i+1), "SOL", models.ConditionAbove, 1000)
	}
	pricer := newFakePricer(map[string]float64{"SOL": 150})

	_, err := newTestWatcher(repo, pricer, &fakeNotifier{}).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pricer.callsFor("SOL"))
}

func TestAlertService(t *testing.T) {
	repo := newMemAlerts()
	s := NewAlertService(repo, "USD")
	ctx := context.Background()

	a, err := s.CreateAlert(ctx, 9, "btc", models.ConditionAbove, 70000)
	require.NoError(t, err)
	assert.Equal(t, "BTC", a.AssetSymbol)
	assert.True(t, a.Active)

	b, err := s.CreateAlert(ctx, 9, "eur/rub", models.ConditionBelow, 95)
	require.NoError(t, err)
	assert.Equal(t, "EUR/RUB", b.AssetSymbol)

	_, err = s.CreateAlert(ctx, 9, "BTC", "sideways", 1)
	assert.ErrorIs(t, err, models.ErrInvalidCondition)
	_, err = s.CreateAlert(ctx, 9, "BTC", models.ConditionAbove, 0)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	list, err := s.ListAlerts(ctx, 9, false)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, s.DeleteAlert(ctx, a.ID, 10), models.ErrAlertNotFound)
	require.NoError(t, s.DeleteAlert(ctx, a.ID, 9))
	list, err = s.ListAlerts(ctx, 9, true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
