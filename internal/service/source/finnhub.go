package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/pkg/logger"

	"github.com/gorilla/websocket"
)

// FinnhubOptions configures the streaming adapter.
type FinnhubOptions struct {
	APIKey         string
	WebSocketURL   string
	Symbols        []string // e.g. AAPL, BINANCE:BTCUSDT
	MaxAge         time.Duration
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	Logger         *logger.Logger
	Now            func() time.Time
}

type lastTrade struct {
	price  float64
	volume float64
	at     time.Time
}

// Finnhub keeps the last trade per subscribed symbol from the Finnhub
// websocket and serves it through Fetch while it is fresh.
type Finnhub struct {
	opts   FinnhubOptions
	logger *logger.Logger

	// pair ("AAPL/USD") -> stream symbol, and back
	bySymbol map[string]models.Pair
	byPair   map[string]string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	writeMu   sync.Mutex

	tradesMu sync.RWMutex
	trades   map[string]lastTrade
}

func NewFinnhub(opts FinnhubOptions) *Finnhub {
	if opts.MaxAge <= 0 {
		opts.MaxAge = 5 * time.Minute
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WebSocketURL == "" {
		opts.WebSocketURL = "wss://ws.finnhub.io"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := opts.Logger
	if l == nil {
		l = logger.Nop()
	}

	f := &Finnhub{
		opts:     opts,
		logger:   l.With(logger.String("source", "finnhub")),
		bySymbol: make(map[string]models.Pair),
		byPair:   make(map[string]string),
		trades:   make(map[string]lastTrade),
	}
	for _, s := range opts.Symbols {
		p := streamPair(s)
		f.bySymbol[s] = p
		f.byPair[p.String()] = s
	}
	return f
}

// streamPair maps a Finnhub symbol onto a pair: "BINANCE:BTCUSDT" is BTC/USD,
// anything without an exchange prefix is an equity quoted in USD.
func streamPair(sym string) models.Pair {
	if i := strings.IndexByte(sym, ':'); i >= 0 {
		inst := sym[i+1:]
		for _, q := range []string{"USDT", "USDC", "USD"} {
			if strings.HasSuffix(inst, q) && len(inst) > len(q) {
				return models.Pair{Base: strings.TrimSuffix(inst, q), Quote: "USD"}
			}
		}
		return models.Pair{Base: inst, Quote: "USD"}
	}
	return models.Pair{Base: sym, Quote: "USD"}
}

func (f *Finnhub) Name() string { return "finnhub" }

func (f *Finnhub) Class() models.DataClass { return models.ClassEquity }

// MaxAge is how long a streamed trade is served after it printed.
func (f *Finnhub) MaxAge() time.Duration { return f.opts.MaxAge }

func (f *Finnhub) Supports(base, quote string) bool {
	_, ok := f.byPair[models.Pair{Base: base, Quote: quote}.String()]
	return ok
}

func (f *Finnhub) Fetch(ctx context.Context, base, quote string) (models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return models.Quote{}, fmt.Errorf("finnhub: %w: %w", models.ErrTimeout, err)
	}
	sym, ok := f.byPair[models.Pair{Base: base, Quote: quote}.String()]
	if !ok {
		return models.Quote{}, fmt.Errorf("finnhub: %s/%s: %w", base, quote, models.ErrNotFound)
	}

	f.tradesMu.RLock()
	t, ok := f.trades[sym]
	f.tradesMu.RUnlock()
	if !ok || f.opts.Now().Sub(t.at) > f.opts.MaxAge {
		return models.Quote{}, fmt.Errorf("finnhub: no fresh trade for %s: %w", sym, models.ErrNotFound)
	}

	q := models.Quote{Source: f.Name(), Base: base, Quote: quote, Price: t.price, Timestamp: t.at.UTC()}
	if t.volume > 0 {
		v := t.volume
		q.Volume = &v
	}
	return q, nil
}

// Connect dials the websocket and subscribes to every configured symbol.
func (f *Finnhub) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", f.opts.WebSocketURL, f.opts.APIKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	for _, s := range f.opts.Symbols {
		if err := f.write(map[string]string{"type": "subscribe", "symbol": s}); err != nil {
			_ = f.Close()
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	f.logger.Info("finnhub connected", logger.Int("symbols", len(f.opts.Symbols)))
	return nil
}

func (f *Finnhub) write(v interface{}) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("finnhub not connected")
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(v)
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Run reads trades until ctx is done, reconnecting after read failures.
func (f *Finnhub) Run(ctx context.Context) error {
	for {
		if !f.IsConnected() {
			if err := f.Connect(ctx); err != nil {
				f.logger.Warn("finnhub connect failed", logger.Error(err))
				if !sleepCtx(ctx, f.opts.ReconnectDelay) {
					return ctx.Err()
				}
				continue
			}
		}

		err := f.readLoop(ctx)
		_ = f.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("finnhub stream dropped", logger.Error(err))
		if !sleepCtx(ctx, f.opts.ReconnectDelay) {
			return ctx.Err()
		}
	}
}

func (f *Finnhub) readLoop(ctx context.Context) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("finnhub conn nil")
	}

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(pingCtx)

	// unblock ReadMessage on shutdown
	go func() {
		<-pingCtx.Done()
		if ctx.Err() != nil {
			_ = conn.Close()
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("finnhub read: %w", err)
		}
		var m fhMessage
		if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
			continue
		}
		f.record(m.Data)
	}
}

func (f *Finnhub) record(data []fhTrade) {
	f.tradesMu.Lock()
	defer f.tradesMu.Unlock()
	for _, d := range data {
		if d.P <= 0 {
			continue
		}
		at := time.UnixMilli(d.T)
		if prev, ok := f.trades[d.S]; ok && prev.at.After(at) {
			continue
		}
		f.trades[d.S] = lastTrade{price: d.P, volume: d.V, at: at}
	}
}

func (f *Finnhub) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.mu.Lock()
			conn := f.conn
			f.mu.Unlock()
			if conn == nil {
				return
			}
			f.writeMu.Lock()
			_ = conn.WriteMessage(websocket.PingMessage, nil)
			f.writeMu.Unlock()
		}
	}
}

func (f *Finnhub) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}

func (f *Finnhub) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
