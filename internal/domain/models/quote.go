package models

import "time"

// DataClass groups sources by how fast their data goes stale.
type DataClass string

const (
	ClassSpot        DataClass = "spot"
	ClassFiat        DataClass = "fiat"
	ClassOfficial    DataClass = "official"
	ClassEquity      DataClass = "equity"
	ClassMarketplace DataClass = "marketplace"
)

// Quote is a single price reading from one provider.
type Quote struct {
	Source    string    `json:"source" msgpack:"source"`
	Base      string    `json:"base" msgpack:"base"`
	Quote     string    `json:"quote" msgpack:"quote"`
	Price     float64   `json:"price" msgpack:"price"`
	Volume    *float64  `json:"volume,omitempty" msgpack:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// PricePoint is one daily close used as forecast history.
type PricePoint struct {
	Date  time.Time `json:"date" msgpack:"date"`
	Price float64   `json:"price" msgpack:"price"`
}
