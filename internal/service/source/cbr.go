package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"CoinFlow/internal/domain/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

const rub = "RUB"

// CBR serves official Central Bank of Russia rates. One side of the pair is always RUB.
type CBR struct {
	base
	historyURL string
}

func NewCBR(opts Options) *CBR {
	history := opts.HistoryURL
	if history == "" {
		history = "https://www.cbr.ru"
	}
	return &CBR{
		base:       newBase("cbr", models.ClassOfficial, "https://www.cbr-xml-daily.ru", opts),
		historyURL: strings.TrimRight(history, "/"),
	}
}

func (c *CBR) Supports(base, quote string) bool {
	if base == quote {
		return false
	}
	switch {
	case base == rub:
		return c.symbols.IsFiat(quote)
	case quote == rub:
		return c.symbols.IsFiat(base)
	}
	return false
}

type cbrValute struct {
	ID       string  `json:"ID"`
	CharCode string  `json:"CharCode"`
	Nominal  float64 `json:"Nominal"`
	Value    float64 `json:"Value"`
}

type cbrDaily struct {
	Date   time.Time            `json:"Date"`
	Valute map[string]cbrValute `json:"Valute"`
}

func (c *CBR) daily(ctx context.Context) (*cbrDaily, error) {
	var d cbrDaily
	if err := c.get(ctx, "/daily_json.js", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *CBR) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	if !c.Supports(base, quote) {
		return models.Quote{}, c.notFound(base, quote)
	}

	d, err := c.daily(ctx)
	if err != nil {
		return models.Quote{}, err
	}

	foreign := base
	if base == rub {
		foreign = quote
	}
	v, ok := d.Valute[foreign]
	if !ok {
		return models.Quote{}, c.notFound(base, quote)
	}
	if v.Value <= 0 || v.Nominal <= 0 {
		return models.Quote{}, c.upstream("bad valute %s: %v/%v", foreign, v.Value, v.Nominal)
	}

	price := v.Value / v.Nominal
	if base == rub {
		price = v.Nominal / v.Value
	}
	q := c.quote(base, quote, price, nil)
	if !d.Date.IsZero() {
		q.Timestamp = d.Date.UTC()
	}
	return q, nil
}

type cbrDynamic struct {
	XMLName xml.Name `xml:"ValCurs"`
	Records []struct {
		Date    string `xml:"Date,attr"`
		Nominal string `xml:"Nominal"`
		Value   string `xml:"Value"`
	} `xml:"Record"`
}

// DailyCloses reads the XML_dynamic series for the foreign side of the pair.
func (c *CBR) DailyCloses(ctx context.Context, pair models.Pair, days int) ([]models.PricePoint, error) {
	if !c.Supports(pair.Base, pair.Quote) {
		return nil, c.notFound(pair.Base, pair.Quote)
	}

	d, err := c.daily(ctx)
	if err != nil {
		return nil, err
	}
	foreign := pair.Base
	if pair.Base == rub {
		foreign = pair.Quote
	}
	v, ok := d.Valute[foreign]
	if !ok || v.ID == "" {
		return nil, c.notFound(pair.Base, pair.Quote)
	}

	to := c.now().UTC()
	from := to.AddDate(0, 0, -sessionWindow(days))
	query := map[string][]string{
		"date_req1": {from.Format("02/01/2006")},
		"date_req2": {to.Format("02/01/2006")},
		"VAL_NM_RQ": {v.ID},
	}

	var raw []byte
	if err := c.getFrom(ctx, c.historyURL+"/scripts/XML_dynamic.asp", query, &raw); err != nil {
		return nil, err
	}

	var dyn cbrDynamic
	dec := xml.NewDecoder(strings.NewReader(string(raw)))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		if strings.EqualFold(label, "windows-1251") {
			return charmap.Windows1251.NewDecoder().Reader(input), nil
		}
		return nil, fmt.Errorf("unsupported charset %s", label)
	}
	if err := dec.Decode(&dyn); err != nil {
		return nil, c.upstream("decode xml: %v", err)
	}

	points := make([]models.PricePoint, 0, len(dyn.Records))
	for _, r := range dyn.Records {
		date, err := time.Parse("02.01.2006", r.Date)
		if err != nil {
			continue
		}
		value, err1 := decimal.NewFromString(strings.ReplaceAll(r.Value, ",", "."))
		nominal, err2 := decimal.NewFromString(strings.ReplaceAll(r.Nominal, ",", "."))
		if err1 != nil || err2 != nil || !value.IsPositive() || !nominal.IsPositive() {
			continue
		}
		price, _ := value.Div(nominal).Float64()
		if pair.Base == rub {
			price, _ = nominal.Div(value).Float64()
		}
		points = append(points, models.PricePoint{Date: date, Price: price})
	}
	if len(points) == 0 {
		return nil, c.notFound(pair.Base, pair.Quote)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	if len(points) > days {
		points = points[len(points)-days:]
	}
	return points, nil
}
