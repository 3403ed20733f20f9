package source

import (
	"context"
	"net/url"
	"sort"
	"time"

	"CoinFlow/internal/domain/models"
	xhttp "CoinFlow/pkg/http"
	xutil "CoinFlow/pkg/util"
)

// Yahoo serves equity quotes and daily history from the public chart API.
type Yahoo struct{ base }

func NewYahoo(opts Options) *Yahoo {
	return &Yahoo{newBase("yahoo", models.ClassEquity, "https://query1.finance.yahoo.com", opts,
		xhttp.WithUserAgent("Mozilla/5.0"))}
}

func (c *Yahoo) Supports(base, quote string) bool {
	return quote == "USD" && c.symbols.IsEquity(base)
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Yahoo) chart(ctx context.Context, ticker, rng string) (*yahooChart, error) {
	var ch yahooChart
	query := map[string][]string{"interval": {"1d"}, "range": {rng}}
	if err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), query, &ch); err != nil {
		return nil, err
	}
	if ch.Chart.Error != nil {
		if ch.Chart.Error.Code == "Not Found" {
			return nil, c.notFound(ticker, "")
		}
		return nil, c.upstream("%s: %s", ch.Chart.Error.Code, ch.Chart.Error.Description)
	}
	if len(ch.Chart.Result) == 0 {
		return nil, c.notFound(ticker, "")
	}
	return &ch, nil
}

func (c *Yahoo) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	if !c.Supports(base, quote) {
		return models.Quote{}, c.notFound(base, quote)
	}

	ch, err := c.chart(ctx, base, "5d")
	if err != nil {
		return models.Quote{}, err
	}
	res := ch.Chart.Result[0]

	price := res.Meta.RegularMarketPrice
	ts := res.Meta.RegularMarketTime
	if price <= 0 {
		points := closes(res.Timestamp, res.Indicators.Quote)
		if len(points) == 0 {
			return models.Quote{}, c.notFound(base, quote)
		}
		last := points[len(points)-1]
		price, ts = last.Price, last.Date.Unix()
	}

	q := c.quote(base, quote, price, nil)
	if ts > 0 {
		q.Timestamp = time.Unix(ts, 0).UTC()
	}
	return q, nil
}

// DailyCloses maps the pair onto a Yahoo ticker: AAPL, BTC-USD or EURUSD=X.
func (c *Yahoo) DailyCloses(ctx context.Context, pair models.Pair, days int) ([]models.PricePoint, error) {
	ticker, ok := c.historyTicker(pair)
	if !ok {
		return nil, c.notFound(pair.Base, pair.Quote)
	}

	window := days
	if !c.symbols.IsCrypto(pair.Base) {
		window = sessionWindow(days)
	}
	ch, err := c.chart(ctx, ticker, yahooRange(window))
	if err != nil {
		return nil, err
	}
	res := ch.Chart.Result[0]
	points := closes(res.Timestamp, res.Indicators.Quote)
	if len(points) == 0 {
		return nil, c.notFound(pair.Base, pair.Quote)
	}
	if len(points) > days {
		points = points[len(points)-days:]
	}
	return points, nil
}

func (c *Yahoo) historyTicker(p models.Pair) (string, bool) {
	switch {
	case models.IsItem(p.Base):
		return "", false
	case c.symbols.IsCrypto(p.Base) && c.symbols.IsFiat(p.Quote):
		return p.Base + "-" + p.Quote, true
	case c.symbols.IsFiat(p.Base) && c.symbols.IsFiat(p.Quote):
		return p.Base + p.Quote + "=X", true
	case c.symbols.IsEquity(p.Base) && p.Quote == "USD":
		return p.Base, true
	}
	return "", false
}

func yahooRange(days int) string {
	switch {
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	case days <= 1825:
		return "5y"
	case days <= 3650:
		return "10y"
	}
	return "max"
}

// closes skips null bars (holidays, halted sessions) and sorts by date.
func closes(timestamps []int64, quotes []struct {
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}) []models.PricePoint {
	if len(quotes) == 0 {
		return nil
	}
	cl := quotes[0].Close
	points := make([]models.PricePoint, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(cl) || cl[i] == nil || *cl[i] <= 0 {
			continue
		}
		points = append(points, models.PricePoint{Date: xutil.StartOfDay(time.Unix(ts, 0)), Price: *cl[i]})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}
