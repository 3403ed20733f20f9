package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinFlow/internal/domain/models"
	pkgcache "CoinFlow/pkg/cache"
	"CoinFlow/pkg/logger"
	"CoinFlow/pkg/metrics"
)

var event = models.AlertEvent{
	EventID:     "0b6f4d1e-8d6b-4c1c-9a53-5d2f3c1e9a10",
	AlertID:     42,
	UserID:      1001,
	AssetSymbol: "BTC",
	Condition:   models.ConditionAbove,
	TargetPrice: 70000,
	ActualPrice: 70123.456,
	TriggeredAt: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
}

func TestFormatAlert(t *testing.T) {
	msg := FormatAlert(event)
	assert.Contains(t, msg, "<b>BTC</b> rose above 70,000.00")
	assert.Contains(t, msg, "Current price: <b>70,123.46</b>")
	assert.Contains(t, msg, "2024-03-15 12:00 UTC")

	item := event
	item.AssetSymbol = "cs2:AK-47 | Redline <FT>"
	item.Condition = models.ConditionBelow
	msg = FormatAlert(item)
	assert.Contains(t, msg, "AK-47 | Redline &lt;FT&gt;")
	assert.Contains(t, msg, "fell below")
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1,234,567.89", FormatPrice(1234567.891))
	assert.Equal(t, "0.0123", FormatPrice(0.01234))
	assert.Equal(t, "0.00001234", FormatPrice(0.00001234))
}

type telegramServer struct {
	*httptest.Server
	calls atomic.Int32
	last  sendMessage
	mu    sync.Mutex
}

func newTelegramServer(t *testing.T, reply func(call int32, w http.ResponseWriter)) *telegramServer {
	t.Helper()
	ts := &telegramServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var body sendMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		ts.mu.Lock()
		ts.last = body
		ts.mu.Unlock()
		reply(ts.calls.Add(1), w)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestTelegram(url string, retries int) *Telegram {
	return NewTelegram(TelegramConfig{
		BotToken:   "TOKEN",
		BaseURL:    url,
		Timeout:    time.Second,
		MaxRetries: retries,
		RetryBase:  time.Millisecond,
	}, logger.Nop())
}

func TestTelegramSend(t *testing.T) {
	ts := newTelegramServer(t, func(_ int32, w http.ResponseWriter) {
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	})

	require.NoError(t, newTestTelegram(ts.URL, 2).Send(context.Background(), 1001, "hello"))
	assert.Equal(t, int32(1), ts.calls.Load())
	assert.Equal(t, int64(1001), ts.last.ChatID)
	assert.Equal(t, "HTML", ts.last.ParseMode)
	assert.Equal(t, "hello", ts.last.Text)
}

func TestTelegramRetriesThrottling(t *testing.T) {
	ts := newTelegramServer(t, func(call int32, w http.ResponseWriter) {
		if call == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":0}}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	})

	require.NoError(t, newTestTelegram(ts.URL, 2).Send(context.Background(), 1, "x"))
	assert.Equal(t, int32(2), ts.calls.Load())
}

func TestTelegramRejectedIsNotRetried(t *testing.T) {
	ts := newTelegramServer(t, func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := newTestTelegram(ts.URL, 3).Send(context.Background(), 1, "x")
	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorContains(t, err, "blocked")
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestTelegramGivesUpOnServerErrors(t *testing.T) {
	ts := newTelegramServer(t, func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := newTestTelegram(ts.URL, 2).Send(context.Background(), 1, "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Equal(t, int32(3), ts.calls.Load())
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []int64
	texts []string
	err   error
}

func (s *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, chatID)
	s.texts = append(s.texts, text)
	return nil
}

func TestDeliveryDropsDuplicates(t *testing.T) {
	sender := &fakeSender{}
	seen := pkgcache.NewMemoryCache(pkgcache.WithMemoryCleanup(0))
	d := NewDelivery(sender, seen, "alerts", metrics.Nop{}, logger.Nop())
	raw, _ := json.Marshal(event)

	ctx := context.Background()
	require.NoError(t, d.KafkaHandler().Handle(ctx, raw))
	require.NoError(t, d.QueueJob().Handle(ctx, raw))

	assert.Equal(t, []int64{1001}, sender.sent)
	assert.Contains(t, sender.texts[0], "BTC")
	assert.Equal(t, "alerts", d.KafkaHandler().Topic())
	assert.Equal(t, JobType, d.QueueJob().Type())
}

func TestDeliveryErrors(t *testing.T) {
	ctx := context.Background()
	raw, _ := json.Marshal(event)

	transient := &fakeSender{err: errors.New("connection reset")}
	d := NewDelivery(transient, nil, "alerts", metrics.Nop{}, logger.Nop())
	assert.Error(t, d.Deliver(ctx, raw), "transient failures go back to the broker")

	rejected := &fakeSender{err: ErrRejected}
	d = NewDelivery(rejected, nil, "alerts", metrics.Nop{}, logger.Nop())
	assert.NoError(t, d.Deliver(ctx, raw), "rejected messages are dropped")

	assert.NoError(t, d.Deliver(ctx, []byte("{not json")))
}

type fakePublisher struct {
	topic string
	key   []byte
	value any
}

func (p *fakePublisher) Publish(_ context.Context, topic string, key []byte, value any) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

type fakeEnqueuer struct {
	msgType string
	payload any
	err     error
}

func (q *fakeEnqueuer) Enqueue(_ context.Context, msgType string, payload any) error {
	q.msgType, q.payload = msgType, payload
	return q.err
}

func TestNotifiers(t *testing.T) {
	ctx := context.Background()

	pub := &fakePublisher{}
	kn := NewKafkaNotifier(pub, "coinflow.alerts.triggered")
	require.NoError(t, kn.Notify(ctx, event))
	assert.Equal(t, "coinflow.alerts.triggered", pub.topic)
	assert.Equal(t, "1001", string(pub.key))
	assert.Equal(t, event, pub.value)
	assert.Equal(t, "kafka", kn.Name())

	q := &fakeEnqueuer{}
	qn := NewQueueNotifier(q)
	require.NoError(t, qn.Notify(ctx, event))
	assert.Equal(t, JobType, q.msgType)
	assert.Equal(t, "redis", qn.Name())

	q.err = errors.New("redis down")
	assert.Error(t, qn.Notify(ctx, event))

	assert.NoError(t, NewLogNotifier(logger.Nop()).Notify(ctx, event))
}
