package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	"CoinFlow/internal/service/breaker"
	"CoinFlow/internal/service/cache"
	pkgcache "CoinFlow/pkg/cache"
	"CoinFlow/pkg/logger"
	"CoinFlow/pkg/metrics"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	name  string
	class models.DataClass
	pairs map[string]float64 // "BASE/QUOTE" -> price
	errs  []error            // returned in order before succeeding
	err   error              // returned on every call after errs
	hang  bool               // block until ctx is done
	age   time.Duration      // quote timestamp is testNow minus age
	calls atomic.Int32
}

func newFakeSource(name string, pairs map[string]float64) *fakeSource {
	return &fakeSource{name: name, class: models.ClassSpot, pairs: pairs}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Class() models.DataClass { return f.class }

func (f *fakeSource) Supports(base, quote string) bool {
	_, ok := f.pairs[base+"/"+quote]
	return ok
}

func (f *fakeSource) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	n := int(f.calls.Add(1))

	if f.hang {
		<-ctx.Done()
		return models.Quote{}, fmt.Errorf("%s: %w: %w", f.name, models.ErrTimeout, ctx.Err())
	}
	if n <= len(f.errs) {
		return models.Quote{}, f.errs[n-1]
	}
	if f.err != nil {
		return models.Quote{}, f.err
	}
	return models.Quote{
		Source: f.name, Base: base, Quote: quote,
		Price: f.pairs[base+"/"+quote], Timestamp: testNow.Add(-f.age),
	}, nil
}

// streamSource is a fakeSource whose quotes expire after maxAge.
type streamSource struct {
	*fakeSource
	maxAge time.Duration
}

func (s streamSource) MaxAge() time.Duration { return s.maxAge }

type fakeArchive struct {
	mu    sync.Mutex
	rates []*models.AggregatedRate
}

func (a *fakeArchive) Archive(_ context.Context, r *models.AggregatedRate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rates = append(a.rates, r)
	return nil
}

func (a *fakeArchive) Close() error { return nil }

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rates)
}

func testCache() *cache.Cache {
	store := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0), pkgcache.WithMemoryClock(func() time.Time { return testNow }))
	return cache.New(store, logger.Nop(), metrics.Nop{})
}

func defaultAggConfig() AggregatorConfig {
	return AggregatorConfig{
		Timeout:            2 * time.Second,
		OutlierStdDevs:     2,
		SpreadThresholdPct: 1.5,
		Bridge:             "USD",
		ReferenceQuote:     "USD",
		TTL:                map[models.DataClass]time.Duration{models.ClassSpot: time.Minute},
	}
}

func newTestAggregator(sources []*fakeSource, opts ...func(*AggregatorConfig)) *RateAggregator {
	return newTestAggregatorWith(sources, nil, nil, opts...)
}

func newTestAggregatorWith(sources []*fakeSource, b *breaker.Set, archive *fakeArchive, opts ...func(*AggregatorConfig)) *RateAggregator {
	cfg := defaultAggConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	clients := make([]repository.SourceClient, 0, len(sources))
	for _, s := range sources {
		clients = append(clients, s)
	}
	var arch repository.QuoteArchive
	if archive != nil {
		arch = archive
	}
	a := NewRateAggregator(clients, testCache(), b, arch, metrics.Nop{}, logger.Nop(), cfg)
	a.now = func() time.Time { return testNow }
	return a
}

type fakeHistory struct {
	name   string
	points []models.PricePoint
	err    error
	calls  atomic.Int32
}

func (h *fakeHistory) Name() string { return h.name }

func (h *fakeHistory) DailyCloses(_ context.Context, _ models.Pair, days int) ([]models.PricePoint, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	pts := h.points
	if len(pts) > days {
		pts = pts[len(pts)-days:]
	}
	return pts, nil
}

func dailySeries(prices ...float64) []models.PricePoint {
	start := testNow.AddDate(0, 0, -len(prices)).Truncate(24 * time.Hour)
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{Date: start.AddDate(0, 0, i), Price: p}
	}
	return out
}

// tradingSeries dates prices on consecutive weekdays ending the day before testNow.
func tradingSeries(prices ...float64) []models.PricePoint {
	out := make([]models.PricePoint, len(prices))
	d := testNow.Truncate(24 * time.Hour)
	for i := len(prices) - 1; i >= 0; i-- {
		d = d.AddDate(0, 0, -1)
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, -1)
		}
		out[i] = models.PricePoint{Date: d, Price: prices[i]}
	}
	return out
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// memForecasts is an in-memory ForecastRepository.
type memForecasts struct {
	mu      sync.Mutex
	nextID  int64
	records []*models.ForecastRecord
	saveErr error
}

func (m *memForecasts) SaveForecasts(_ context.Context, records []*models.ForecastRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, r := range records {
		m.nextID++
		r.ID = m.nextID
		cp := *r
		m.records = append(m.records, &cp)
	}
	return nil
}

func (m *memForecasts) ListForecasts(_ context.Context, asset string, since time.Time, limit int) ([]*models.ForecastRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ForecastRecord
	for _, r := range m.records {
		if (asset == "" || r.AssetSymbol == asset) && !r.CreatedAt.Before(since) {
			cp := *r
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memForecasts) ListDueForecasts(_ context.Context, now time.Time, limit int) ([]*models.ForecastRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ForecastRecord
	for _, r := range m.records {
		if r.RealizedPrice == nil && !r.TargetDate.After(now) {
			cp := *r
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memForecasts) GradeForecast(_ context.Context, id int64, realized, mae, mape float64, gradedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			if r.RealizedPrice != nil {
				return false, nil
			}
			r.RealizedPrice, r.MAE, r.MAPE, r.GradedAt = &realized, &mae, &mape, &gradedAt
			return true, nil
		}
	}
	return false, nil
}

func (m *memForecasts) ModelAccuracy(_ context.Context, asset string, since time.Time) (map[models.ModelType]models.ModelAccuracy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := map[models.ModelType]*models.ModelAccuracy{}
	for _, r := range m.records {
		if r.AssetSymbol != asset || r.RealizedPrice == nil || r.TargetDate.Before(since) {
			continue
		}
		s, ok := sums[r.ModelType]
		if !ok {
			s = &models.ModelAccuracy{}
			sums[r.ModelType] = s
		}
		s.AvgMAE += *r.MAE
		s.AvgMAPE += *r.MAPE
		s.SampleCount++
	}
	out := make(map[models.ModelType]models.ModelAccuracy, len(sums))
	for k, s := range sums {
		n := float64(s.SampleCount)
		out[k] = models.ModelAccuracy{AvgMAE: s.AvgMAE / n, AvgMAPE: s.AvgMAPE / n, SampleCount: s.SampleCount}
	}
	return out, nil
}

func (m *memForecasts) all() []*models.ForecastRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.ForecastRecord(nil), m.records...)
}

type fakePricer struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
}

func newFakePricer(prices map[string]float64) *fakePricer {
	return &fakePricer{prices: prices, errs: map[string]error{}, calls: map[string]int{}}
}

func (p *fakePricer) AssetRate(_ context.Context, symbol string) (*models.AggregatedRate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[symbol]++
	if err, ok := p.errs[symbol]; ok {
		return nil, err
	}
	price, ok := p.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, models.ErrNoDataAvailable)
	}
	return &models.AggregatedRate{Base: symbol, Quote: "USD", BestPrice: price, BestSource: "fake"}, nil
}

func (p *fakePricer) callsFor(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[symbol]
}

// memAlerts is an in-memory AlertRepository with an atomic claim.
type memAlerts struct {
	mu     sync.Mutex
	nextID int64
	alerts map[int64]*models.Alert
}

func newMemAlerts() *memAlerts {
	return &memAlerts{alerts: map[int64]*models.Alert{}}
}

func (m *memAlerts) CreateAlert(_ context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *memAlerts) ListAlerts(_ context.Context, userID int64, activeOnly bool) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for id := int64(1); id <= m.nextID; id++ {
		a, ok := m.alerts[id]
		if ok && a.UserID == userID && (!activeOnly || a.Active) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAlerts) ListActiveAlerts(_ context.Context) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for id := int64(1); id <= m.nextID; id++ {
		if a, ok := m.alerts[id]; ok && a.Active {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAlerts) DeleteAlert(_ context.Context, id, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.UserID != userID {
		return models.ErrAlertNotFound
	}
	delete(m.alerts, id)
	return nil
}

func (m *memAlerts) ClaimAlert(_ context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || !a.Active {
		return false, nil
	}
	a.Active = false
	a.TriggeredAt = &at
	return true, nil
}

func (m *memAlerts) ReleaseAlert(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.alerts[id]; ok {
		a.Active = true
		a.TriggeredAt = nil
	}
	return nil
}

func (m *memAlerts) get(id int64) models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.alerts[id]
}

type fakeNotifier struct {
	mu       sync.Mutex
	events   []models.AlertEvent
	failures int // fail this many calls first
}

func (n *fakeNotifier) Name() string { return "fake" }

func (n *fakeNotifier) Notify(_ context.Context, e models.AlertEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return fmt.Errorf("broker down")
	}
	n.events = append(n.events, e)
	return nil
}

func (n *fakeNotifier) sent() []models.AlertEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.AlertEvent(nil), n.events...)
}
