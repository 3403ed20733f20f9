package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	pkgch "CoinFlow/pkg/clickhouse"
)

// ArchiveSchema creates the quote archive. One row is written per contributing quote.
func ArchiveSchema(database, table string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			computed_at DateTime64(3, 'UTC'),
			base        LowCardinality(String),
			quote       LowCardinality(String),
			source      LowCardinality(String),
			price       Float64,
			best_price  Float64,
			best_source LowCardinality(String),
			spread_pct  Float64,
			via         LowCardinality(String)
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(computed_at)
		ORDER BY (base, quote, computed_at)`, database, table),
	}
}

// ClickHouseArchive stores aggregated rates and serves daily closes back as history.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

var (
	_ repository.QuoteArchive    = (*ClickHouseArchive)(nil)
	_ repository.HistoryProvider = (*ClickHouseArchive)(nil)
)

func NewClickHouseArchive(ctx context.Context, ch *pkgch.Client, table string) (*ClickHouseArchive, error) {
	if err := ch.InitSchema(ctx, ArchiveSchema(ch.Database(), table)); err != nil {
		return nil, err
	}
	return &ClickHouseArchive{db: ch.DB(), table: ch.Database() + "." + table}, nil
}

func (s *ClickHouseArchive) Name() string { return "clickhouse" }

const archiveColumns = 9

func (s *ClickHouseArchive) Archive(ctx context.Context, rate *models.AggregatedRate) error {
	q, args := archiveInsert(s.table, rate)
	if len(args) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("archive %s/%s: %w", rate.Base, rate.Quote, err)
	}
	return nil
}

// archiveInsert builds one multi-row INSERT covering every quote of the rate.
func archiveInsert(table string, rate *models.AggregatedRate) (string, []any) {
	if rate == nil || len(rate.Quotes) == 0 {
		return "", nil
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", archiveColumns), ", ") + ")"
	values := make([]string, 0, len(rate.Quotes))
	args := make([]any, 0, len(rate.Quotes)*archiveColumns)
	for _, q := range rate.Quotes {
		values = append(values, placeholder)
		args = append(args,
			rate.ComputedAt.UTC(),
			rate.Base,
			rate.Quote,
			q.Source,
			q.Price,
			rate.BestPrice,
			rate.BestSource,
			rate.SpreadPct,
			rate.Via,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (computed_at, base, quote, source, price, best_price, best_source, spread_pct, via) VALUES %s",
		table, strings.Join(values, ", "))
	return q, args
}

// DailyCloses returns the last archived best price of each day, oldest first.
func (s *ClickHouseArchive) DailyCloses(ctx context.Context, pair models.Pair, days int) ([]models.PricePoint, error) {
	from := time.Now().UTC().AddDate(0, 0, -days)
	q := fmt.Sprintf(`SELECT toDate(computed_at) AS day, argMax(best_price, computed_at)
		FROM %s
		WHERE base = ? AND quote = ? AND computed_at >= ?
		GROUP BY day
		ORDER BY day`, s.table)

	rows, err := s.db.QueryContext(ctx, q, pair.Base, pair.Quote, from)
	if err != nil {
		return nil, fmt.Errorf("%w: clickhouse history: %v", models.ErrUpstream, err)
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Date, &p.Price); err != nil {
			return nil, fmt.Errorf("scan close: %w", err)
		}
		p.Date = p.Date.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("clickhouse %s: %w", pair, models.ErrNotFound)
	}
	return out, nil
}

func (s *ClickHouseArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseArchive) Close() error {
	return nil
}
