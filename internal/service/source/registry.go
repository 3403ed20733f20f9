package source

import (
	"CoinFlow/internal/domain/repository"
	"CoinFlow/internal/service/ratelimit"
	"CoinFlow/pkg/config"
	"CoinFlow/pkg/logger"
)

// Registry is the set of enabled adapters, in registration order.
type Registry struct {
	Clients []repository.SourceClient
	History map[string]repository.HistoryProvider
	Streams []repository.MarketStream
}

// ByName returns the adapter registered under name.
func (r *Registry) ByName(name string) (repository.SourceClient, bool) {
	for _, c := range r.Clients {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// NewRegistry builds every adapter enabled in cfg. All HTTP adapters share one limiter.
func NewRegistry(cfg *config.Config, limiter *ratelimit.Limiter, l *logger.Logger) *Registry {
	symbols := NewSymbols(cfg.Symbols.Crypto, cfg.Symbols.Fiat)
	opts := func(sc config.SourceConfig) Options {
		return Options{
			BaseURL:    sc.BaseURL,
			HistoryURL: sc.HistoryURL,
			Timeout:    sc.Timeout,
			Burst:      sc.RateLimit.Burst,
			PerSecond:  sc.RateLimit.PerSecond,
			Limiter:    limiter,
			Symbols:    symbols,
			Logger:     l,
		}
	}

	r := &Registry{History: make(map[string]repository.HistoryProvider)}
	add := func(enabled bool, c repository.SourceClient) {
		if enabled {
			r.Clients = append(r.Clients, c)
		}
	}

	s := cfg.Sources
	add(s.Binance.Enabled, NewBinance(opts(s.Binance)))
	add(s.Bybit.Enabled, NewBybit(opts(s.Bybit)))
	add(s.KuCoin.Enabled, NewKuCoin(opts(s.KuCoin)))
	add(s.GateIO.Enabled, NewGateIO(opts(s.GateIO)))
	add(s.HTX.Enabled, NewHTX(opts(s.HTX)))
	add(s.ExchangeRate.Enabled, NewExchangeRate(opts(s.ExchangeRate)))

	if s.CBR.Enabled {
		cbr := NewCBR(opts(s.CBR))
		r.Clients = append(r.Clients, cbr)
		r.History[cbr.Name()] = cbr
	}
	if s.Yahoo.Enabled {
		y := NewYahoo(opts(s.Yahoo))
		r.Clients = append(r.Clients, y)
		r.History[y.Name()] = y
	}
	add(s.Steam.Enabled, NewSteam(opts(s.Steam)))

	if fh := s.Finnhub; fh.Enabled {
		f := NewFinnhub(FinnhubOptions{
			APIKey:         fh.APIKey,
			WebSocketURL:   fh.WebSocketURL,
			Symbols:        fh.Symbols,
			MaxAge:         fh.MaxAge,
			ReconnectDelay: fh.ReconnectDelay,
			PingInterval:   fh.PingInterval,
			Logger:         l,
		})
		r.Clients = append(r.Clients, f)
		r.Streams = append(r.Streams, f)
	}

	return r
}
