package metrics

import (
	"testing"

	"CoinFlow/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var (
	_ repository.Metrics = (*Recorder)(nil)
	_ repository.Metrics = Nop{}
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordFetch("binance", "ok", 0.2)
	r.RecordFetch("binance", "ok", 0.3)
	r.RecordFetch("binance", "timeout", 8)
	r.RecordCache(true)
	r.RecordAggregation("BTC/USD", 100, 2, 3)
	r.RecordBreakerState("htx", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.fetches.WithLabelValues("binance", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetches.WithLabelValues("binance", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 100.0, testutil.ToFloat64(r.bestPrice.WithLabelValues("BTC/USD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerOpen.WithLabelValues("htx")))
}
