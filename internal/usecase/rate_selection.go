package usecase

import (
	"math"
	"sort"

	"CoinFlow/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// byPrice returns a copy of quotes ordered by price, then source name.
func byPrice(quotes []models.Quote) []models.Quote {
	out := make([]models.Quote, len(quotes))
	copy(out, quotes)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Source < out[j].Source
	})
	return out
}

func prices(quotes []models.Quote) []float64 {
	ps := make([]float64, len(quotes))
	for i, q := range quotes {
		ps[i] = q.Price
	}
	return ps
}

// medianQuote picks the lower-middle quote for even counts.
func medianQuote(quotes []models.Quote) models.Quote {
	sorted := byPrice(quotes)
	return sorted[(len(sorted)-1)/2]
}

// isOutlier reports whether quotes[i] disagrees with the rest of the set.
// The reference statistics leave the candidate out, so a single bad quote
// cannot widen the band it is judged by. Two or more others allow
// max(k*sigma, thresholdPct of their mean); a single other quote is compared
// by percentage alone.
func isOutlier(quotes []models.Quote, i int, k, thresholdPct float64) bool {
	others := make([]float64, 0, len(quotes)-1)
	for j, q := range quotes {
		if j != i {
			others = append(others, q.Price)
		}
	}
	p := quotes[i].Price

	switch len(others) {
	case 0:
		return false
	case 1:
		return math.Abs(p-others[0])/others[0]*100 > thresholdPct
	}
	mean, std := stat.PopMeanStdDev(others, nil)
	tolerance := math.Max(k*std, mean*thresholdPct/100)
	return math.Abs(p-mean) > tolerance
}

// selectBest prefers the primary provider's quote unless it is an outlier.
// Otherwise it takes the median of the remaining quotes.
func selectBest(quotes []models.Quote, primary string, k, thresholdPct float64) models.Quote {
	if primary == "" {
		return medianQuote(quotes)
	}
	for i, q := range quotes {
		if q.Source != primary {
			continue
		}
		if !isOutlier(quotes, i, k, thresholdPct) {
			return q
		}
		rest := make([]models.Quote, 0, len(quotes)-1)
		rest = append(rest, quotes[:i]...)
		rest = append(rest, quotes[i+1:]...)
		return medianQuote(rest)
	}
	return medianQuote(quotes)
}

// spreadPct is (max-min)/mean*100, zero for fewer than two quotes.
func spreadPct(quotes []models.Quote) float64 {
	if len(quotes) < 2 {
		return 0
	}
	ps := prices(quotes)
	lo, hi := ps[0], ps[0]
	for _, p := range ps[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	mean := stat.Mean(ps, nil)
	if mean <= 0 {
		return 0
	}
	return (hi - lo) / mean * 100
}

// crossQuotes multiplies every quote of leg a with every quote of leg b.
func crossQuotes(a, b []models.Quote, base, quote string) []models.Quote {
	out := make([]models.Quote, 0, len(a)*len(b))
	for _, qa := range a {
		for _, qb := range b {
			ts := qa.Timestamp
			if qb.Timestamp.Before(ts) {
				ts = qb.Timestamp
			}
			out = append(out, models.Quote{
				Source:    qa.Source + "*" + qb.Source,
				Base:      base,
				Quote:     quote,
				Price:     qa.Price * qb.Price,
				Timestamp: ts,
			})
		}
	}
	return out
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
