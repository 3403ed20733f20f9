package models

import "time"

// AggregatedRate is the reconciled view over all quotes for one pair.
type AggregatedRate struct {
	Base       string    `json:"base"`
	Quote      string    `json:"quote"`
	BestPrice  float64   `json:"best_price"`
	BestSource string    `json:"best_source"`
	Quotes     []Quote   `json:"all_quotes"`
	SpreadPct  float64   `json:"spread_pct"`
	ComputedAt time.Time `json:"computed_at"`
	// Via names the bridge currency when the rate was routed through one.
	Via string `json:"via,omitempty"`
}

// Conversion is an amount converted at the best rate.
type Conversion struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount float64         `json:"amount"`
	Result float64         `json:"result"`
	Rate   *AggregatedRate `json:"rate"`
}
