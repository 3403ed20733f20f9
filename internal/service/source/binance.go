package source

import (
	"context"
	"errors"
	"strings"

	"CoinFlow/internal/domain/models"
	xhttp "CoinFlow/pkg/http"
)

type Binance struct{ base }

func NewBinance(opts Options) *Binance {
	return &Binance{newBase("binance", models.ClassSpot, "https://api.binance.com", opts)}
}

func (c *Binance) Supports(base, quote string) bool {
	_, _, ok := c.symbols.spotPair(base, quote)
	return ok
}

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (c *Binance) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	b, q, ok := c.symbols.spotPair(base, quote)
	if !ok {
		return models.Quote{}, c.notFound(base, quote)
	}

	var t binanceTicker
	err := c.get(ctx, "/api/v3/ticker/price", map[string][]string{"symbol": {b + q}}, &t)
	if err != nil {
		// Unknown symbols come back as 400 {"code":-1121,"msg":"Invalid symbol."}.
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == 400 && strings.Contains(se.Body, "-1121") {
			return models.Quote{}, c.notFound(base, quote)
		}
		return models.Quote{}, err
	}

	price, err := parsePrice(t.Price)
	if err != nil {
		return models.Quote{}, c.upstream("%v", err)
	}
	return c.quote(base, quote, price, nil), nil
}
