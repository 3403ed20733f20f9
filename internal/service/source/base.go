// Package source holds one adapter per upstream price provider.
//
// Every adapter makes exactly one outbound call per Fetch and maps failures
// onto the provider error set in models: NotFound, RateLimited, Timeout and
// Upstream. Retrying is the caller's business.
package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/service/ratelimit"
	xhttp "CoinFlow/pkg/http"
	"CoinFlow/pkg/logger"

	"github.com/shopspring/decimal"
)

const defaultTimeout = 8 * time.Second

// Options are shared by every HTTP adapter.
type Options struct {
	BaseURL    string
	HistoryURL string
	Timeout    time.Duration
	Burst      float64
	PerSecond  float64
	Limiter    *ratelimit.Limiter
	Symbols    *Symbols
	Logger     *logger.Logger
	Now        func() time.Time
}

type base struct {
	name      string
	class     models.DataClass
	baseURL   string
	client    *xhttp.Client
	limiter   *ratelimit.Limiter
	burst     float64
	perSecond float64
	symbols   *Symbols
	logger    *logger.Logger
	now       func() time.Time
}

func newBase(name string, class models.DataClass, defaultURL string, opts Options, clientOpts ...xhttp.ClientOption) base {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	url := opts.BaseURL
	if url == "" {
		url = defaultURL
	}
	symbols := opts.Symbols
	if symbols == nil {
		symbols = DefaultSymbols()
	}
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return base{
		name:      name,
		class:     class,
		baseURL:   strings.TrimRight(url, "/"),
		client:    xhttp.NewClient(append([]xhttp.ClientOption{xhttp.WithTimeout(timeout)}, clientOpts...)...),
		limiter:   opts.Limiter,
		burst:     opts.Burst,
		perSecond: opts.PerSecond,
		symbols:   symbols,
		logger:    l.With(logger.String("source", name)),
		now:       now,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) Class() models.DataClass { return b.class }

// get performs a single GET against the base URL and decodes the body into dest.
func (b *base) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	return b.getFrom(ctx, b.baseURL+path, query, dest)
}

func (b *base) getFrom(ctx context.Context, url string, query map[string][]string, dest interface{}) error {
	if b.limiter != nil && !b.limiter.Allow(b.name, b.burst, b.perSecond) {
		return fmt.Errorf("%s: local budget spent: %w", b.name, models.ErrRateLimited)
	}

	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         url,
		QueryParams: query,
		Headers:     map[string]string{"Accept": "application/json"},
	}, dest)
	return b.classify(err)
}

// classify maps transport errors onto the provider error set.
func (b *base) classify(err error) error {
	if err == nil {
		return nil
	}

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", b.name, models.ErrNotFound)
		case http.StatusTooManyRequests, http.StatusTeapot:
			return fmt.Errorf("%s: %w", b.name, models.ErrRateLimited)
		}
		return fmt.Errorf("%s: %w: %w", b.name, models.ErrUpstream, se)
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%s: %w: %w", b.name, models.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", b.name, models.ErrUpstream, err)
}

func (b *base) notFound(base, quote string) error {
	return fmt.Errorf("%s: %s/%s: %w", b.name, base, quote, models.ErrNotFound)
}

func (b *base) upstream(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", b.name, models.ErrUpstream, fmt.Sprintf(format, args...))
}

func (b *base) quote(base, quote string, price float64, volume *float64) models.Quote {
	return models.Quote{
		Source:    b.name,
		Base:      base,
		Quote:     quote,
		Price:     price,
		Volume:    volume,
		Timestamp: b.now().UTC(),
	}
}

// parsePrice reads decimal strings such as "67123.45000000" or "$1,234.56".
func parsePrice(s string) (float64, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if clean == "" {
		return 0, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("non-positive price %q", s)
	}
	f, _ := d.Float64()
	return f, nil
}

func optionalVolume(s string) *float64 {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

// sessionWindow is the calendar span that holds at least sessions weekday
// bars, with a week of slack for holidays.
func sessionWindow(sessions int) int {
	return sessions*7/5 + 7
}
