package source

import (
	"context"
	"strings"

	"CoinFlow/internal/domain/models"
)

type HTX struct{ base }

func NewHTX(opts Options) *HTX {
	return &HTX{newBase("htx", models.ClassSpot, "https://api.huobi.pro", opts)}
}

func (c *HTX) Supports(base, quote string) bool {
	_, _, ok := c.symbols.spotPair(base, quote)
	return ok
}

type htxMerged struct {
	Status  string `json:"status"`
	ErrCode string `json:"err-code"`
	ErrMsg  string `json:"err-msg"`
	Tick    *struct {
		Close  float64 `json:"close"`
		Amount float64 `json:"amount"`
	} `json:"tick"`
}

func (c *HTX) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	b, q, ok := c.symbols.spotPair(base, quote)
	if !ok {
		return models.Quote{}, c.notFound(base, quote)
	}

	var r htxMerged
	query := map[string][]string{"symbol": {strings.ToLower(b + q)}}
	if err := c.get(ctx, "/market/detail/merged", query, &r); err != nil {
		return models.Quote{}, err
	}

	if r.Status != "ok" {
		if r.ErrCode == "invalid-parameter" {
			return models.Quote{}, c.notFound(base, quote)
		}
		return models.Quote{}, c.upstream("status %s: %s %s", r.Status, r.ErrCode, r.ErrMsg)
	}
	if r.Tick == nil || r.Tick.Close <= 0 {
		return models.Quote{}, c.upstream("missing tick")
	}

	vol := r.Tick.Amount
	return c.quote(base, quote, r.Tick.Close, &vol), nil
}
