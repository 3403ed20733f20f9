package source

import (
	"strings"

	"CoinFlow/internal/domain/models"
)

// Symbols classifies tickers so adapters can decide what they support.
type Symbols struct {
	crypto map[string]bool
	fiat   map[string]bool
}

func NewSymbols(crypto, fiat []string) *Symbols {
	s := &Symbols{crypto: make(map[string]bool), fiat: make(map[string]bool)}
	for _, c := range crypto {
		s.crypto[strings.ToUpper(c)] = true
	}
	for _, f := range fiat {
		s.fiat[strings.ToUpper(f)] = true
	}
	return s
}

func DefaultSymbols() *Symbols {
	return NewSymbols(
		[]string{"BTC", "ETH", "USDT", "BNB", "SOL", "XRP", "ADA", "DOGE", "TON", "TRX", "DOT", "LTC", "AVAX", "LINK"},
		[]string{"USD", "EUR", "RUB", "GBP", "JPY", "CNY", "CHF", "KZT", "TRY", "AED"},
	)
}

func (s *Symbols) IsCrypto(sym string) bool { return s.crypto[sym] }

func (s *Symbols) IsFiat(sym string) bool { return s.fiat[sym] }

// IsEquity treats anything that is neither a known currency nor an item as a ticker.
func (s *Symbols) IsEquity(sym string) bool {
	return sym != "" && !s.crypto[sym] && !s.fiat[sym] && !models.IsItem(sym)
}

// spotPair maps a requested pair onto exchange symbols, quoting USD as USDT.
func (s *Symbols) spotPair(base, quote string) (string, string, bool) {
	if !s.crypto[base] {
		return "", "", false
	}
	if quote == "USD" {
		quote = "USDT"
	}
	if !s.crypto[quote] || base == quote {
		return "", "", false
	}
	return base, quote, true
}
