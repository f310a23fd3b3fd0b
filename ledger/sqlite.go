package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverCgo is github.com/mattn/go-sqlite3.
	DriverCgo = "sqlite3"
	// DriverPure is modernc.org/sqlite, for builds without cgo.
	DriverPure = "sqlite"
)

// SQLiteBackend persists the ledger in a single SQLite file.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens path with the cgo driver and applies the schema.
func NewSQLite(path string) (*SQLiteBackend, error) {
	return NewSQLiteWithDriver(DriverCgo, path)
}

func NewSQLiteWithDriver(driver, path string) (*SQLiteBackend, error) {
	if driver != DriverCgo && driver != DriverPure {
		return nil, fmt.Errorf("unknown sqlite driver %q", driver)
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Load(ctx context.Context) ([]TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteBackend) Commit(ctx context.Context, b Batch) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, u := range b.Updates {
		res, err := tx.ExecContext(ctx, `
			UPDATE trades SET
				symbol = ?, entry_price = ?, stop_price = ?, target_price = ?, position_size = ?,
				status = ?, entry_time = ?, exit_price = ?, exit_time = ?, profit_loss = ?,
				profit_loss_percent = ?, confidence = ?, reason = ?, notes = ?, broker = ?, parent_id = ?
			WHERE id = ?`,
			append(tradeArgs(u), u.ID)...,
		)
		if err != nil {
			return nil, fmt.Errorf("update trade %d: %w", u.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return nil, fmt.Errorf("update trade %d: %w", u.ID, ErrNotFound)
		}
	}

	ids := make([]int64, 0, len(b.Inserts))
	for _, rec := range b.Inserts {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO trades
			(symbol, entry_price, stop_price, target_price, position_size, status, entry_time,
			 exit_price, exit_time, profit_loss, profit_loss_percent, confidence, reason, notes, broker, parent_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tradeArgs(rec)...,
		)
		if err != nil {
			return nil, fmt.Errorf("insert trade %s: %w", rec.Symbol, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	payload, err := json.Marshal(b.Metrics)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO metrics (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(payload), formatTime(b.Metrics.LastUpdated),
	); err != nil {
		return nil, fmt.Errorf("save metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// Metrics reads the stored metrics snapshot. ok is false before the first
// commit.
func (s *SQLiteBackend) Metrics(ctx context.Context) (m PerformanceMetrics, ok bool, err error) {
	var payload string
	err = s.db.QueryRowContext(ctx, `SELECT payload FROM metrics WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return m, false, nil
	}
	if err != nil {
		return m, false, err
	}
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return m, false, err
	}
	return m, true, nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(r scanner) (TradeRecord, error) {
	var (
		rec       TradeRecord
		status    string
		entryTime string
		exitTime  sql.NullString
	)
	err := r.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.EntryPrice,
		&rec.StopPrice,
		&rec.TargetPrice,
		&rec.PositionSize,
		&status,
		&entryTime,
		&rec.ExitPrice,
		&exitTime,
		&rec.ProfitLoss,
		&rec.ProfitLossPercent,
		&rec.Confidence,
		&rec.Reason,
		&rec.Notes,
		&rec.Broker,
		&rec.ParentID,
	)
	if err != nil {
		return TradeRecord{}, err
	}
	rec.Status = Status(status)
	if rec.EntryTime, err = parseTime(entryTime); err != nil {
		return TradeRecord{}, fmt.Errorf("trade %d entry_time: %w", rec.ID, err)
	}
	if exitTime.Valid && exitTime.String != "" {
		t, err := parseTime(exitTime.String)
		if err != nil {
			return TradeRecord{}, fmt.Errorf("trade %d exit_time: %w", rec.ID, err)
		}
		rec.ExitTime = &t
	}
	return rec, nil
}

func tradeArgs(t TradeRecord) []any {
	var exitTime any
	if t.ExitTime != nil {
		exitTime = formatTime(*t.ExitTime)
	}
	return []any{
		t.Symbol,
		t.EntryPrice,
		t.StopPrice,
		t.TargetPrice,
		t.PositionSize,
		string(t.Status),
		formatTime(t.EntryTime),
		t.ExitPrice,
		exitTime,
		t.ProfitLoss,
		t.ProfitLossPercent,
		t.Confidence,
		t.Reason,
		t.Notes,
		t.Broker,
		t.ParentID,
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
