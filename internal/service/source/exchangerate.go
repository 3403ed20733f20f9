package source

import (
	"context"
	"time"

	"CoinFlow/internal/domain/models"
)

// ExchangeRate reads fiat cross rates from exchangerate-api.com.
type ExchangeRate struct{ base }

func NewExchangeRate(opts Options) *ExchangeRate {
	return &ExchangeRate{newBase("exchangerate", models.ClassFiat, "https://api.exchangerate-api.com", opts)}
}

func (c *ExchangeRate) Supports(base, quote string) bool {
	return base != quote && c.symbols.IsFiat(base) && c.symbols.IsFiat(quote)
}

type exchangeRateLatest struct {
	Base            string             `json:"base"`
	TimeLastUpdated int64              `json:"time_last_updated"`
	Rates           map[string]float64 `json:"rates"`
}

func (c *ExchangeRate) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	if !c.Supports(base, quote) {
		return models.Quote{}, c.notFound(base, quote)
	}

	var r exchangeRateLatest
	if err := c.get(ctx, "/v4/latest/"+base, nil, &r); err != nil {
		return models.Quote{}, err
	}
	rate, ok := r.Rates[quote]
	if !ok {
		return models.Quote{}, c.notFound(base, quote)
	}
	if rate <= 0 {
		return models.Quote{}, c.upstream("non-positive rate %v", rate)
	}

	q := c.quote(base, quote, rate, nil)
	if r.TimeLastUpdated > 0 {
		q.Timestamp = time.Unix(r.TimeLastUpdated, 0).UTC()
	}
	return q, nil
}
