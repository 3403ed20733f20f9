package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoinFlow/internal/domain/models"
	"CoinFlow/internal/domain/repository"
	"CoinFlow/pkg/sqlite"
)

// Times are stored as unix seconds, UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS forecasts (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		asset_symbol    TEXT    NOT NULL,
		model_type      TEXT    NOT NULL,
		user_id         INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL,
		target_date     INTEGER NOT NULL,
		predicted_price REAL    NOT NULL,
		realized_price  REAL,
		mae             REAL,
		mape            REAL,
		graded_at       INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_forecasts_due ON forecasts(target_date) WHERE realized_price IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_forecasts_asset ON forecasts(asset_symbol, target_date)`,

	`CREATE TABLE IF NOT EXISTS alerts (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id      INTEGER NOT NULL,
		asset_symbol TEXT    NOT NULL,
		condition    TEXT    NOT NULL CHECK (condition IN ('above', 'below')),
		target_price REAL    NOT NULL,
		active       INTEGER NOT NULL DEFAULT 1,
		created_at   INTEGER NOT NULL,
		triggered_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(active)`,
}

// SQLiteStore persists forecasts and alerts.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ repository.ForecastRepository = (*SQLiteStore)(nil)
	_ repository.AlertRepository    = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens the database and applies the schema.
func NewSQLiteStore(ctx context.Context, cfg sqlite.Config) (*SQLiteStore, error) {
	db, err := sqlite.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveForecasts(ctx context.Context, records []*models.ForecastRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO forecasts
		(asset_symbol, model_type, user_id, created_at, target_date, predicted_price)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.AssetSymbol, string(r.ModelType), r.UserID,
			r.CreatedAt.Unix(), r.TargetDate.Unix(), r.PredictedPrice)
		if err != nil {
			return fmt.Errorf("insert forecast: %w", err)
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const forecastColumns = `id, asset_symbol, model_type, user_id, created_at, target_date,
	predicted_price, realized_price, mae, mape, graded_at`

func (s *SQLiteStore) ListForecasts(ctx context.Context, asset string, since time.Time, limit int) ([]*models.ForecastRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+forecastColumns+` FROM forecasts
		WHERE (? = '' OR asset_symbol = ?) AND created_at >= ?
		ORDER BY created_at DESC, id DESC LIMIT ?`,
		asset, asset, since.Unix(), limit)
	if err != nil {
		return nil, err
	}
	return scanForecasts(rows)
}

func (s *SQLiteStore) ListDueForecasts(ctx context.Context, now time.Time, limit int) ([]*models.ForecastRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+forecastColumns+` FROM forecasts
		WHERE realized_price IS NULL AND target_date <= ?
		ORDER BY target_date, id LIMIT ?`,
		now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	return scanForecasts(rows)
}

func (s *SQLiteStore) GradeForecast(ctx context.Context, id int64, realized, mae, mape float64, gradedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE forecasts
		SET realized_price = ?, mae = ?, mape = ?, graded_at = ?
		WHERE id = ? AND realized_price IS NULL`,
		realized, mae, mape, gradedAt.Unix(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) ModelAccuracy(ctx context.Context, asset string, since time.Time) (map[models.ModelType]models.ModelAccuracy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT model_type, AVG(mae), AVG(mape), COUNT(*) FROM forecasts
		WHERE asset_symbol = ? AND realized_price IS NOT NULL AND target_date >= ?
		GROUP BY model_type`,
		asset, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[models.ModelType]models.ModelAccuracy)
	for rows.Next() {
		var (
			model string
			acc   models.ModelAccuracy
		)
		if err := rows.Scan(&model, &acc.AvgMAE, &acc.AvgMAPE, &acc.SampleCount); err != nil {
			return nil, err
		}
		out[models.ModelType(model)] = acc
	}
	return out, rows.Err()
}

func scanForecasts(rows *sql.Rows) ([]*models.ForecastRecord, error) {
	defer rows.Close()

	var out []*models.ForecastRecord
	for rows.Next() {
		var (
			r                   models.ForecastRecord
			model               string
			created, target     int64
			realized, mae, mape sql.NullFloat64
			graded              sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.AssetSymbol, &model, &r.UserID, &created, &target,
			&r.PredictedPrice, &realized, &mae, &mape, &graded); err != nil {
			return nil, err
		}
		r.ModelType = models.ModelType(model)
		r.CreatedAt = time.Unix(created, 0).UTC()
		r.TargetDate = time.Unix(target, 0).UTC()
		r.RealizedPrice = nullFloat(realized)
		r.MAE = nullFloat(mae)
		r.MAPE = nullFloat(mape)
		r.GradedAt = nullTime(graded)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO alerts
		(user_id, asset_symbol, condition, target_price, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.UserID, a.AssetSymbol, string(a.Condition), a.TargetPrice, a.Active, a.CreatedAt.Unix())
	if err != nil {
		return err
	}
	a.ID, err = res.LastInsertId()
	return err
}

const alertColumns = `id, user_id, asset_symbol, condition, target_price, active, created_at, triggered_at`

func (s *SQLiteStore) ListAlerts(ctx context.Context, userID int64, activeOnly bool) ([]*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts
		WHERE user_id = ? AND (? = 0 OR active = 1) ORDER BY id`,
		userID, activeOnly)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (s *SQLiteStore) ListActiveAlerts(ctx context.Context) ([]*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %d: %w", id, models.ErrAlertNotFound)
	}
	return nil
}

// ClaimAlert flips an active alert to triggered; only one caller can win.
func (s *SQLiteStore) ClaimAlert(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET active = 0, triggered_at = ?
		WHERE id = ? AND active = 1`, at.Unix(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteStore) ReleaseAlert(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE alerts SET active = 1, triggered_at = NULL WHERE id = ?`, id)
	return err
}

func scanAlerts(rows *sql.Rows) ([]*models.Alert, error) {
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		var (
			a         models.Alert
			cond      string
			created   int64
			triggered sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.AssetSymbol, &cond, &a.TargetPrice, &a.Active, &created, &triggered); err != nil {
			return nil, err
		}
		a.Condition = models.Condition(cond)
		a.CreatedAt = time.Unix(created, 0).UTC()
		a.TriggeredAt = nullTime(triggered)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
