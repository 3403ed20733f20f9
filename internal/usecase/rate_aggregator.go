package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	"CoinFlow/internal/service/breaker"
	"CoinFlow/internal/service/cache"
	"CoinFlow/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	identitySource = "identity"
	archiveTimeout = 10 * time.Second
	retryBackoff   = 200 * time.Millisecond
)

var errCircuitOpen = errors.New("circuit open")

// AggregatorConfig tunes selection, routing and caching.
type AggregatorConfig struct {
	// Primary lists preferred providers; the first one supporting a pair wins.
	Primary            []string
	Timeout            time.Duration
	Retries            int
	OutlierStdDevs     float64
	SpreadThresholdPct float64
	Bridge             string
	ReferenceQuote     string
	TTL                map[models.DataClass]time.Duration
}

type RateAggregator struct {
	sources  []repository.SourceClient
	cache    *cache.Cache
	breakers *breaker.Set
	archive  repository.QuoteArchive
	metrics  repository.Metrics
	logger   *logger.Logger
	cfg      AggregatorConfig
	now      func() time.Time

	archiving sync.WaitGroup
}

// NewRateAggregator wires the aggregator. breakers and archive may be nil.
func NewRateAggregator(
	sources []repository.SourceClient,
	c *cache.Cache,
	breakers *breaker.Set,
	archive repository.QuoteArchive,
	m repository.Metrics,
	l *logger.Logger,
	cfg AggregatorConfig,
) *RateAggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 11 * time.Second
	}
	if cfg.ReferenceQuote == "" {
		cfg.ReferenceQuote = "USD"
	}
	return &RateAggregator{
		sources:  sources,
		cache:    c,
		breakers: breakers,
		archive:  archive,
		metrics:  m,
		logger:   l.With(logger.String("component", "aggregator")),
		cfg:      cfg,
		now:      time.Now,
	}
}

// GetRate returns the reconciled rate for base/quote.
func (a *RateAggregator) GetRate(ctx context.Context, base, quote string) (*models.AggregatedRate, error) {
	base, quote = models.NormalizeSymbol(base), models.NormalizeSymbol(quote)
	if base == "" || quote == "" {
		return nil, fmt.Errorf("%w: base and quote are required", models.ErrInvalidAsset)
	}
	if base == quote {
		return a.identity(base), nil
	}

	start := a.now()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	rate, err := a.aggregate(ctx, base, quote, true)
	a.metrics.RecordLatency("aggregate", a.now().Sub(start).Seconds())
	if err != nil {
		return nil, err
	}

	a.metrics.RecordAggregation(base+"/"+quote, rate.BestPrice, rate.SpreadPct, len(rate.Quotes))
	a.archiveAsync(rate)
	return rate, nil
}

// CompareRates is GetRate with quotes ordered by price for side-by-side display.
func (a *RateAggregator) CompareRates(ctx context.Context, base, quote string) (*models.AggregatedRate, error) {
	rate, err := a.GetRate(ctx, base, quote)
	if err != nil {
		return nil, err
	}
	out := *rate
	out.Quotes = byPrice(rate.Quotes)
	return &out, nil
}

// Convert multiplies amount by the best from/to rate.
func (a *RateAggregator) Convert(ctx context.Context, from, to string, amount float64) (*models.Conversion, error) {
	if !validPrice(amount) {
		return nil, fmt.Errorf("%w: got %v", models.ErrInvalidAmount, amount)
	}
	rate, err := a.GetRate(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &models.Conversion{
		From:   rate.Base,
		To:     rate.Quote,
		Amount: amount,
		Result: amount * rate.BestPrice,
		Rate:   rate,
	}, nil
}

// AssetRate prices an asset symbol such as "BTC", "USD/RUB" or a cs2: item.
func (a *RateAggregator) AssetRate(ctx context.Context, symbol string) (*models.AggregatedRate, error) {
	pair, err := models.ParseAsset(symbol, a.cfg.ReferenceQuote)
	if err != nil {
		return nil, err
	}
	return a.GetRate(ctx, pair.Base, pair.Quote)
}

// Wait blocks until pending archive writes finish.
func (a *RateAggregator) Wait() {
	a.archiving.Wait()
}

func (a *RateAggregator) identity(sym string) *models.AggregatedRate {
	now := a.now().UTC()
	q := models.Quote{Source: identitySource, Base: sym, Quote: sym, Price: 1, Timestamp: now}
	return &models.AggregatedRate{
		Base: sym, Quote: sym,
		BestPrice: 1, BestSource: identitySource,
		Quotes:     []models.Quote{q},
		ComputedAt: now,
	}
}

func (a *RateAggregator) aggregate(ctx context.Context, base, quote string, allowBridge bool) (*models.AggregatedRate, error) {
	quotes := a.collect(ctx, base, quote)
	if len(quotes) > 0 {
		best := selectBest(quotes, a.primaryFor(base, quote), a.cfg.OutlierStdDevs, a.cfg.SpreadThresholdPct)
		return &models.AggregatedRate{
			Base:       base,
			Quote:      quote,
			BestPrice:  best.Price,
			BestSource: best.Source,
			Quotes:     quotes,
			SpreadPct:  spreadPct(quotes),
			ComputedAt: a.now().UTC(),
		}, nil
	}

	bridge := a.cfg.Bridge
	if allowBridge && bridge != "" && base != bridge && quote != bridge {
		return a.bridged(ctx, base, quote, bridge)
	}
	return nil, fmt.Errorf("%s/%s: %w", base, quote, models.ErrNoDataAvailable)
}

// bridged builds base/quote from base/bridge and bridge/quote.
func (a *RateAggregator) bridged(ctx context.Context, base, quote, bridge string) (*models.AggregatedRate, error) {
	var legA, legB *models.AggregatedRate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		legA, err = a.aggregate(gctx, base, bridge, false)
		return err
	})
	g.Go(func() error {
		var err error
		legB, err = a.aggregate(gctx, bridge, quote, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s/%s via %s: %w", base, quote, bridge, models.ErrNoDataAvailable)
	}

	quotes := crossQuotes(legA.Quotes, legB.Quotes, base, quote)
	return &models.AggregatedRate{
		Base:       base,
		Quote:      quote,
		BestPrice:  legA.BestPrice * legB.BestPrice,
		BestSource: legA.BestSource + "*" + legB.BestSource,
		Quotes:     quotes,
		SpreadPct:  spreadPct(quotes),
		ComputedAt: a.now().UTC(),
		Via:        bridge,
	}, nil
}

func (a *RateAggregator) primaryFor(base, quote string) string {
	for _, name := range a.cfg.Primary {
		for _, s := range a.sources {
			if s.Name() == name && s.Supports(base, quote) {
				return name
			}
		}
	}
	return ""
}

type fetchResult struct {
	source string
	quote  models.Quote
	err    error
}

// collect fans out to every applicable source and returns the successful
// quotes in registration order.
func (a *RateAggregator) collect(ctx context.Context, base, quote string) []models.Quote {
	var applicable []repository.SourceClient
	for _, s := range a.sources {
		if !s.Supports(base, quote) {
			continue
		}
		if a.breakers != nil && a.breakers.State(s.Name()) == breaker.Open {
			a.logger.Debug("skipping source with open circuit", logger.String("source", s.Name()))
			continue
		}
		applicable = append(applicable, s)
	}
	if len(applicable) == 0 {
		return nil
	}

	results := make(chan fetchResult, len(applicable))
	var wg sync.WaitGroup
	for _, s := range applicable {
		wg.Add(1)
		go func(s repository.SourceClient) {
			defer wg.Done()
			q, err := a.fetchCached(ctx, s, base, quote)
			results <- fetchResult{source: s.Name(), quote: q, err: err}
		}(s)
	}
	go func() { wg.Wait(); close(results) }()

	bySource := make(map[string]models.Quote, len(applicable))
	for r := range results {
		if r.err != nil {
			a.logFailure(r.source, base, quote, r.err)
			continue
		}
		bySource[r.source] = r.quote
	}

	quotes := make([]models.Quote, 0, len(bySource))
	for _, s := range applicable {
		if q, ok := bySource[s.Name()]; ok {
			quotes = append(quotes, q)
		}
	}
	return quotes
}

func (a *RateAggregator) fetchCached(ctx context.Context, s repository.SourceClient, base, quote string) (models.Quote, error) {
	key := cache.Key("quote", s.Name(), base, quote)
	ttlOf := func(models.Quote) time.Duration { return a.ttl(s.Class()) }
	if fb, ok := s.(freshnessBounded); ok {
		ttlOf = func(q models.Quote) time.Duration {
			return quoteTTL(a.ttl(s.Class()), fb.MaxAge(), a.now().Sub(q.Timestamp))
		}
	}
	return cache.GetOrFetchWithTTL(ctx, a.cache, key, ttlOf, func(ctx context.Context) (models.Quote, error) {
		if a.breakers != nil && !a.breakers.Allow(s.Name()) {
			return models.Quote{}, fmt.Errorf("%s: %w", s.Name(), errCircuitOpen)
		}
		q, err := a.fetchWithRetry(ctx, s, base, quote)
		a.recordOutcome(s.Name(), err)
		return q, err
	})
}

// freshnessBounded is implemented by sources whose quotes go stale on their
// own, such as stream snapshots.
type freshnessBounded interface {
	MaxAge() time.Duration
}

// quoteTTL caps the class TTL so a cached quote never outlives its source's
// freshness window.
func quoteTTL(classTTL, maxAge, age time.Duration) time.Duration {
	if maxAge <= 0 {
		return classTTL
	}
	return min(classTTL, maxAge-age)
}

// fetchWithRetry re-attempts transient failures while the deadline allows.
func (a *RateAggregator) fetchWithRetry(ctx context.Context, s repository.SourceClient, base, quote string) (models.Quote, error) {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.Retries; attempt++ {
		if attempt > 0 && !sleepCtx(ctx, time.Duration(attempt)*retryBackoff) {
			break
		}

		start := a.now()
		q, err := s.Fetch(ctx, base, quote)
		if err == nil && !validPrice(q.Price) {
			err = fmt.Errorf("%s: %w: invalid price %v", s.Name(), models.ErrUpstream, q.Price)
		}
		a.metrics.RecordFetch(s.Name(), fetchLabel(err), a.now().Sub(start).Seconds())
		if err == nil {
			return q, nil
		}

		lastErr = err
		if !models.IsTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return models.Quote{}, lastErr
}

func (a *RateAggregator) recordOutcome(name string, err error) {
	if a.breakers == nil {
		return
	}
	switch {
	case err == nil, errors.Is(err, models.ErrNotFound):
		a.breakers.Success(name)
		a.metrics.RecordBreakerState(name, false)
	case errors.Is(err, context.Canceled):
		a.breakers.Abort(name)
	default:
		if a.breakers.Failure(name) {
			a.logger.Warn("circuit opened", logger.String("source", name), logger.Error(err))
			a.metrics.RecordBreakerState(name, true)
		}
	}
}

func (a *RateAggregator) logFailure(source, base, quote string, err error) {
	fields := []logger.Field{
		logger.String("source", source),
		logger.String("pair", base+"/"+quote),
		logger.Error(err),
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, errCircuitOpen) {
		a.logger.Debug("source skipped", fields...)
		return
	}
	a.logger.Warn("source failed", fields...)
}

func (a *RateAggregator) ttl(class models.DataClass) time.Duration {
	if d, ok := a.cfg.TTL[class]; ok && d > 0 {
		return d
	}
	return time.Minute
}

func (a *RateAggregator) archiveAsync(rate *models.AggregatedRate) {
	if a.archive == nil {
		return
	}
	a.archiving.Add(1)
	go func() {
		defer a.archiving.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := a.archive.Archive(ctx, rate); err != nil {
			a.logger.Warn("archive failed", logger.String("pair", rate.Base+"/"+rate.Quote), logger.Error(err))
		}
	}()
}

func fetchLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, models.ErrTimeout):
		return "timeout"
	}
	return "upstream"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
