package source

import (
	"context"

	"CoinFlow/internal/domain/models"
)

type KuCoin struct{ base }

func NewKuCoin(opts Options) *KuCoin {
	return &KuCoin{newBase("kucoin", models.ClassSpot, "https://api.kucoin.com", opts)}
}

func (c *KuCoin) Supports(base, quote string) bool {
	_, _, ok := c.symbols.spotPair(base, quote)
	return ok
}

const kucoinOK = "200000"

type kucoinLevel1 struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Price string `json:"price"`
		Size  string `json:"size"`
	} `json:"data"`
}

func (c *KuCoin) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	b, q, ok := c.symbols.spotPair(base, quote)
	if !ok {
		return models.Quote{}, c.notFound(base, quote)
	}

	var r kucoinLevel1
	query := map[string][]string{"symbol": {b + "-" + q}}
	if err := c.get(ctx, "/api/v1/market/orderbook/level1", query, &r); err != nil {
		return models.Quote{}, err
	}
	if r.Code != kucoinOK {
		return models.Quote{}, c.upstream("code %s: %s", r.Code, r.Msg)
	}
	// Unknown pairs return code 200000 with null data.
	if r.Data == nil || r.Data.Price == "" {
		return models.Quote{}, c.notFound(base, quote)
	}

	price, err := parsePrice(r.Data.Price)
	if err != nil {
		return models.Quote{}, c.upstream("%v", err)
	}
	return c.quote(base, quote, price, nil), nil
}
