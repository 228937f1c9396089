package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"DividendSentinel/internal/model"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so a dashboard can read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS weekly_reports (
			run_id     TEXT PRIMARY KEY,
			timestamp  INTEGER NOT NULL,
			data_as_of INTEGER,
			complete   INTEGER NOT NULL,
			incomplete INTEGER NOT NULL,
			positions  INTEGER NOT NULL,
			notices    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_ts ON weekly_reports(timestamp)`,

		`CREATE TABLE IF NOT EXISTS weekly_scores (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         TEXT NOT NULL REFERENCES weekly_reports(run_id),
			timestamp      INTEGER NOT NULL,
			ticker         TEXT NOT NULL,
			name           TEXT,
			held           INTEGER NOT NULL,
			value_score    REAL,
			dividend_score REAL,
			health_score   REAL,
			composite      REAL NOT NULL,
			decision       TEXT NOT NULL,
			complete       INTEGER NOT NULL,
			price          REAL,
			pe             REAL,
			pb             REAL,
			yield          REAL,
			dividend_cagr  REAL,
			holding_weight REAL,
			screen_passed  INTEGER NOT NULL,
			issues         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_run ON weekly_scores(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_ticker_ts ON weekly_scores(ticker, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func sub(s model.SubScore) interface{} {
	if !s.Defined {
		return nil
	}
	return s.Value
}

func num(n model.Num) interface{} {
	if !n.Valid {
		return nil
	}
	return n.V
}

func unixOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

// RecordWeekly stores the report and all of its scores in one transaction.
func (r *SQLiteRecorder) RecordWeekly(ctx context.Context, rep *model.WeeklyReport) error {
	if rep.RunID == "" {
		return errors.New("record weekly: report has no run id")
	}
	ts := rep.RunAt.Unix()

	reportSQL, reportArgs, err := sq.Insert("weekly_reports").
		Columns("run_id", "timestamp", "data_as_of", "complete", "incomplete", "positions", "notices").
		Values(rep.RunID, ts, unixOrNil(rep.DataAsOf), rep.Complete, rep.Incomplete, len(rep.Positions), strings.Join(rep.Notices, "\n")).
		ToSql()
	if err != nil {
		return err
	}

	var scoreSQL string
	var scoreArgs []interface{}
	if len(rep.Scores) > 0 {
		ins := sq.Insert("weekly_scores").Columns(
			"run_id", "timestamp", "ticker", "name", "held",
			"value_score", "dividend_score", "health_score", "composite", "decision", "complete",
			"price", "pe", "pb", "yield", "dividend_cagr", "holding_weight", "screen_passed", "issues",
		)
		for _, s := range rep.Scores {
			m := s.Metrics
			ins = ins.Values(
				rep.RunID, ts, s.Ticker, s.Security.Name, s.Held,
				sub(s.Value), sub(s.Dividend), sub(s.Health), s.Composite, string(s.Decision), s.Complete,
				num(m.Price), num(m.PE), num(m.PB), num(m.TrailingYield), num(m.DividendCAGR), num(m.HoldingWeight),
				s.Screen.Passed, strings.Join(s.Issues, "; "),
			)
		}
		if scoreSQL, scoreArgs, err = ins.ToSql(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, reportSQL, reportArgs...); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert report %s: %w", rep.RunID, err)
	}
	if scoreSQL != "" {
		if _, err := tx.ExecContext(ctx, scoreSQL, scoreArgs...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert scores %s: %w", rep.RunID, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) PreviousDecisions(ctx context.Context, before time.Time) (map[string]model.Decision, error) {
	runSQL, runArgs, err := sq.Select("run_id").
		From("weekly_reports").
		Where(sq.Lt{"timestamp": before.Unix()}).
		OrderBy("timestamp DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Decision)
	var runID string
	err = r.db.QueryRowContext(ctx, runSQL, runArgs...).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous run: %w", err)
	}

	query, args, err := sq.Select("ticker", "decision").
		From("weekly_scores").
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("previous decisions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ticker, decision string
		if err := rows.Scan(&ticker, &decision); err != nil {
			return nil, err
		}
		out[ticker] = model.Decision(decision)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) History(ctx context.Context, ticker string, limit int) ([]ScoreRecord, error) {
	b := sq.Select("run_id", "timestamp", "ticker", "held", "composite", "decision", "complete").
		From("weekly_scores").
		Where(sq.Eq{"ticker": ticker}).
		OrderBy("timestamp DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []ScoreRecord
	for rows.Next() {
		var rec ScoreRecord
		var ts int64
		var decision string
		if err := rows.Scan(&rec.RunID, &ts, &rec.Ticker, &rec.Held, &rec.Composite, &decision, &rec.Complete); err != nil {
			return nil, err
		}
		rec.RunAt = time.Unix(ts, 0)
		rec.Decision = model.Decision(decision)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
