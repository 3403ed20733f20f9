package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CoinFlow/internal/domain/models"
)

func TestArchiveInsertOneRowPerQuote(t *testing.T) {
	at := time.Date(2024, 3, 15, 12, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	rate := &models.AggregatedRate{
		Base:       "BTC",
		Quote:      "USDT",
		BestPrice:  100,
		BestSource: "binance",
		SpreadPct:  2,
		ComputedAt: at,
		Quotes: []models.Quote{
			{Source: "binance", Price: 100},
			{Source: "bybit", Price: 101},
			{Source: "kucoin", Price: 99},
		},
	}

	q, args := archiveInsert("coinflow.aggregated_quotes", rate)
	require.Len(t, args, 3*archiveColumns)
	assert.True(t, strings.HasPrefix(q, "INSERT INTO coinflow.aggregated_quotes (computed_at,"))
	assert.Equal(t, 3, strings.Count(q, "(?, ?, ?, ?, ?, ?, ?, ?, ?)"))

	assert.Equal(t, at.UTC(), args[0])
	assert.Equal(t, "bybit", args[archiveColumns+3])
	assert.Equal(t, 101.0, args[archiveColumns+4])
	assert.Equal(t, 100.0, args[2*archiveColumns+5])
}

func TestArchiveInsertSkipsEmptyRates(t *testing.T) {
	_, args := archiveInsert("t", &models.AggregatedRate{Base: "BTC", Quote: "USD"})
	assert.Empty(t, args)
	_, args = archiveInsert("t", nil)
	assert.Empty(t, args)
}

func TestArchiveSchemaUsesDatabase(t *testing.T) {
	stmts := ArchiveSchema("coinflow", "aggregated_quotes")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE DATABASE IF NOT EXISTS coinflow")
	assert.Contains(t, stmts[1], "coinflow.aggregated_quotes")
	assert.Contains(t, stmts[1], "MergeTree")
}
