package source

import (
	"context"
	"errors"
	"strings"

	"CoinFlow/internal/domain/models"
	xhttp "CoinFlow/pkg/http"
)

type GateIO struct{ base }

func NewGateIO(opts Options) *GateIO {
	return &GateIO{newBase("gateio", models.ClassSpot, "https://api.gateio.ws", opts)}
}

func (c *GateIO) Supports(base, quote string) bool {
	_, _, ok := c.symbols.spotPair(base, quote)
	return ok
}

type gateTicker struct {
	CurrencyPair string `json:"currency_pair"`
	Last         string `json:"last"`
	BaseVolume   string `json:"base_volume"`
}

func (c *GateIO) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	b, q, ok := c.symbols.spotPair(base, quote)
	if !ok {
		return models.Quote{}, c.notFound(base, quote)
	}

	var tickers []gateTicker
	err := c.get(ctx, "/api/v4/spot/tickers", map[string][]string{"currency_pair": {b + "_" + q}}, &tickers)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.Code == 400 && strings.Contains(se.Body, "INVALID_CURRENCY") {
			return models.Quote{}, c.notFound(base, quote)
		}
		return models.Quote{}, err
	}
	if len(tickers) == 0 {
		return models.Quote{}, c.notFound(base, quote)
	}

	price, err := parsePrice(tickers[0].Last)
	if err != nil {
		return models.Quote{}, c.upstream("%v", err)
	}
	return c.quote(base, quote, price, optionalVolume(tickers[0].BaseVolume)), nil
}
