package source

import (
	"context"

	"CoinFlow/internal/domain/models"
)

type Bybit struct{ base }

func NewBybit(opts Options) *Bybit {
	return &Bybit{newBase("bybit", models.ClassSpot, "https://api.bybit.com", opts)}
}

func (c *Bybit) Supports(base, quote string) bool {
	_, _, ok := c.symbols.spotPair(base, quote)
	return ok
}

// bybitInvalidSymbol is retCode for "Not supported symbols".
const bybitInvalidSymbol = 10001

type bybitTickers struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Volume24h string `json:"volume24h"`
		} `json:"list"`
	} `json:"result"`
}

func (c *Bybit) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	b, q, ok := c.symbols.spotPair(base, quote)
	if !ok {
		return models.Quote{}, c.notFound(base, quote)
	}

	var r bybitTickers
	query := map[string][]string{"category": {"spot"}, "symbol": {b + q}}
	if err := c.get(ctx, "/v5/market/tickers", query, &r); err != nil {
		return models.Quote{}, err
	}

	switch {
	case r.RetCode == bybitInvalidSymbol:
		return models.Quote{}, c.notFound(base, quote)
	case r.RetCode != 0:
		return models.Quote{}, c.upstream("retCode %d: %s", r.RetCode, r.RetMsg)
	case len(r.Result.List) == 0:
		return models.Quote{}, c.notFound(base, quote)
	}

	t := r.Result.List[0]
	price, err := parsePrice(t.LastPrice)
	if err != nil {
		return models.Quote{}, c.upstream("%v", err)
	}
	return c.quote(base, quote, price, optionalVolume(t.Volume24h)), nil
}
