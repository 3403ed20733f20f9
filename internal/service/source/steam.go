package source

import (
	"context"
	"strings"

	"CoinFlow/internal/domain/models"
)

const (
	steamAppCS2 = "730"
	steamUSD    = "1"
)

// Steam prices CS2 marketplace items, e.g. "cs2:AK-47 | Redline (Field-Tested)".
type Steam struct{ base }

func NewSteam(opts Options) *Steam {
	return &Steam{newBase("steam", models.ClassMarketplace, "https://steamcommunity.com", opts)}
}

func (c *Steam) Supports(base, quote string) bool {
	return models.IsItem(base) && quote == "USD"
}

type steamOverview struct {
	Success     bool   `json:"success"`
	LowestPrice string `json:"lowest_price"`
	MedianPrice string `json:"median_price"`
	Volume      string `json:"volume"`
}

func (c *Steam) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	if !c.Supports(base, quote) {
		return models.Quote{}, c.notFound(base, quote)
	}
	name := strings.TrimSpace(base[len(models.ItemPrefix):])

	var r steamOverview
	query := map[string][]string{
		"appid":            {steamAppCS2},
		"currency":         {steamUSD},
		"market_hash_name": {name},
	}
	if err := c.get(ctx, "/market/priceoverview/", query, &r); err != nil {
		return models.Quote{}, err
	}
	if !r.Success {
		return models.Quote{}, c.notFound(base, quote)
	}

	raw := r.LowestPrice
	if raw == "" {
		raw = r.MedianPrice
	}
	if raw == "" {
		return models.Quote{}, c.notFound(base, quote)
	}
	price, err := parsePrice(raw)
	if err != nil {
		return models.Quote{}, c.upstream("%v", err)
	}
	return c.quote(base, quote, price, optionalVolume(r.Volume)), nil
}
