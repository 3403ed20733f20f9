package models

import (
	"fmt"
	"strings"
)

// ItemPrefix marks marketplace item symbols, e.g. "cs2:AK-47 | Redline (Field-Tested)".
const ItemPrefix = "cs2:"

type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// IsItem reports whether the symbol names a marketplace item.
func IsItem(symbol string) bool {
	return strings.HasPrefix(strings.ToLower(symbol), ItemPrefix)
}

// NormalizeSymbol upper-cases tickers and leaves item names intact apart from the prefix.
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	if IsItem(s) {
		return ItemPrefix + strings.TrimSpace(s[len(ItemPrefix):])
	}
	return strings.ToUpper(s)
}

// ParseAsset turns an asset symbol into a pair. Bare symbols are priced in defaultQuote,
// "BASE/QUOTE" is taken literally.
func ParseAsset(symbol, defaultQuote string) (Pair, error) {
	s := NormalizeSymbol(symbol)
	if s == "" || s == ItemPrefix {
		return Pair{}, fmt.Errorf("%w: empty symbol", ErrInvalidAsset)
	}
	if IsItem(s) {
		return Pair{Base: s, Quote: strings.ToUpper(defaultQuote)}, nil
	}
	if base, quote, ok := strings.Cut(s, "/"); ok {
		if base == "" || quote == "" {
			return Pair{}, fmt.Errorf("%w: %q", ErrInvalidAsset, symbol)
		}
		return Pair{Base: base, Quote: quote}, nil
	}
	return Pair{Base: s, Quote: strings.ToUpper(defaultQuote)}, nil
}

// AssetKey is the canonical symbol stored with forecasts and alerts: the bare
// base when priced in the reference currency, "BASE/QUOTE" otherwise.
func (p Pair) AssetKey(referenceQuote string) string {
	if p.Quote == strings.ToUpper(referenceQuote) {
		return p.Base
	}
	return p.String()
}
