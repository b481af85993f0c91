package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finanzas/internal/core"
	applog "finanzas/internal/log"

	_ "modernc.org/sqlite"
)

const keyDisplayCurrency = "display_currency"

type SQLiteRepository struct {
	db            *sql.DB
	logger        *applog.Logger
	schemaVersion uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateSchema(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger := applog.Default(applog.ComponentStorage)
	logger.Debug("SQLite ready", "path", dbPath, "schema_version", version)
	return &SQLiteRepository{db: db, logger: logger, schemaVersion: version}, nil
}

// SchemaVersion is the migration version the database was brought up to.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// DisplayCurrency returns the stored display currency, if one was saved.
func (r *SQLiteRepository) DisplayCurrency(ctx context.Context) (string, bool, error) {
	var code string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE key = ?`, keyDisplayCurrency).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get display currency: %w", err)
	}
	return code, true, nil
}

func (r *SQLiteRepository) SetDisplayCurrency(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		keyDisplayCurrency, code, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set display currency: %w", err)
	}
	r.logger.InfoContext(ctx, "Display currency saved", applog.FieldCurrency, code)
	return nil
}

// SaveSnapshot stores an applied summary. The full summary is kept as JSON
// next to the columns used for lookups.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, seq int64, reason string, s core.MonthlySummary) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO summary_snapshots
			(seq, reason, year, month, currency, total_income, total_expenses, net_balance,
			 approximate, degraded, payload, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, reason, s.Year, s.Month, s.Currency,
		s.TotalIncome.String(), s.TotalExpenses.String(), s.NetBalance.String(),
		s.Approximate, s.Degraded, string(payload), s.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently stored summary for a month.
func (r *SQLiteRepository) LatestSnapshot(ctx context.Context, year, month int, currency string) (core.MonthlySummary, bool, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM summary_snapshots
		WHERE year = ? AND month = ? AND currency = ?
		ORDER BY id DESC LIMIT 1`, year, month, currency).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlySummary{}, false, nil
	}
	if err != nil {
		return core.MonthlySummary{}, false, fmt.Errorf("get latest snapshot: %w", err)
	}
	var s core.MonthlySummary
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return core.MonthlySummary{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, true, nil
}

// SnapshotRow is one line of the snapshot history.
type SnapshotRow struct {
	Seq         int64
	Reason      string
	Year        int
	Month       int
	Currency    string
	NetBalance  string
	Approximate bool
	Degraded    bool
	ComputedAt  time.Time
}

// ListSnapshots returns the newest snapshots first.
func (r *SQLiteRepository) ListSnapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, reason, year, month, currency, net_balance, approximate, degraded, computed_at
		FROM summary_snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		if err := rows.Scan(&s.Seq, &s.Reason, &s.Year, &s.Month, &s.Currency,
			&s.NetBalance, &s.Approximate, &s.Degraded, &s.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneSnapshots deletes snapshots computed before the cutoff.
func (r *SQLiteRepository) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM summary_snapshots WHERE computed_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return n, nil
}
