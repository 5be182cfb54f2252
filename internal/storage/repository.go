// Package storage persists transactions, leak insights and analysis runs in
// SQLite. Dates are stored as ISO strings at UTC midnight; amounts as cents.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"leakwatch/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveTransactions inserts new transactions and silently skips rows that
// collide on (user, date, narration, amount). Returns stored and duplicate
// counts.
func (r *SQLiteRepository) SaveTransactions(ctx context.Context, txns []core.Transaction) (stored, duplicates int, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(id, user_id, txn_date, amount_cents, merchant_hint,
			 level_1_tag, level_2_tag, level_3_tag, level_3_confidence, narration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txns {
		res, err := stmt.ExecContext(ctx,
			t.ID, t.UserID, t.Date.UTC().Format(dateLayout), t.AmountCents, t.MerchantHint,
			t.Tags.Level1, t.Tags.Level2, t.Tags.Level3, t.Tags.Level3Confidence, t.Narration)
		if err != nil {
			return 0, 0, fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("rows affected for %s: %w", t.ID, err)
		}
		if n == 0 {
			duplicates++
		} else {
			stored++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit transactions: %w", err)
	}
	return stored, duplicates, nil
}

// ListTransactions returns a user's transactions ordered by date then id.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, txn_date, amount_cents, merchant_hint,
		       level_1_tag, level_2_tag, level_3_tag, level_3_confidence, narration
		FROM transactions
		WHERE user_id = ?
		ORDER BY txn_date, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var date string
		if err := rows.Scan(&t.ID, &t.UserID, &date, &t.AmountCents, &t.MerchantHint,
			&t.Tags.Level1, &t.Tags.Level2, &t.Tags.Level3, &t.Tags.Level3Confidence, &t.Narration); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Date, err = time.ParseInLocation(dateLayout, date, time.UTC); err != nil {
			return nil, fmt.Errorf("parse date %q: %w", date, err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

// ListUserIDs returns every user with at least one stored transaction.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM transactions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user ids: %w", err)
	}
	return ids, nil
}

// UpsertLeaks writes the latest analysis for a user. Rows keyed by merchant
// are updated in place so the resolved flag survives re-analysis.
func (r *SQLiteRepository) UpsertLeaks(ctx context.Context, userID string, leaks []core.Leak, analysisAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO leak_insights
			(user_id, merchant_hint, category, probability, saving_cents,
			 reasoning, actionable_step, analysis_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, merchant_hint) DO UPDATE SET
			category = excluded.category,
			probability = excluded.probability,
			saving_cents = excluded.saving_cents,
			reasoning = excluded.reasoning,
			actionable_step = excluded.actionable_step,
			analysis_ts = excluded.analysis_ts`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	ts := analysisAt.UTC().Format(time.RFC3339)
	for _, l := range leaks {
		if _, err := stmt.ExecContext(ctx,
			userID, string(l.PatternKey), string(l.Category), l.Probability,
			l.EstimatedAnnualSaving.Cents, l.Reasoning, l.ActionableStep, ts); err != nil {
			return fmt.Errorf("upsert leak %s: %w", l.PatternKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit leaks: %w", err)
	}
	return nil
}

// LatestLeaks returns the most recent analysis batch for a user: all insights
// carrying the max analysis timestamp, active ones only.
func (r *SQLiteRepository) LatestLeaks(ctx context.Context, userID string) ([]core.LeakInsight, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, merchant_hint, category, probability, saving_cents,
		       reasoning, actionable_step, analysis_ts, is_resolved, resolved_at
		FROM leak_insights
		WHERE user_id = ?
		  AND is_resolved = 0
		  AND analysis_ts = (SELECT MAX(analysis_ts) FROM leak_insights WHERE user_id = ?)
		ORDER BY saving_cents DESC, probability DESC, merchant_hint`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("latest leaks: %w", err)
	}
	defer rows.Close()
	return scanInsights(rows)
}

// ListLeaks returns all of a user's insights, optionally filtered by the
// resolved flag.
func (r *SQLiteRepository) ListLeaks(ctx context.Context, userID string, resolved *bool) ([]core.LeakInsight, error) {
	query := `
		SELECT id, user_id, merchant_hint, category, probability, saving_cents,
		       reasoning, actionable_step, analysis_ts, is_resolved, resolved_at
		FROM leak_insights
		WHERE user_id = ?`
	args := []any{userID}
	if resolved != nil {
		query += ` AND is_resolved = ?`
		if *resolved {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	query += ` ORDER BY saving_cents DESC, probability DESC, merchant_hint`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leaks: %w", err)
	}
	defer rows.Close()
	return scanInsights(rows)
}

// SetLeakResolved flips the resolution flag for one insight owned by the
// user. Returns ErrNotFound when no such insight exists.
func (r *SQLiteRepository) SetLeakResolved(ctx context.Context, userID string, insightID int64, resolved bool) error {
	var res sql.Result
	var err error
	if resolved {
		res, err = r.db.ExecContext(ctx, `
			UPDATE leak_insights
			SET is_resolved = 1, resolved_at = ?
			WHERE id = ? AND user_id = ?`,
			time.Now().UTC().Format(time.RFC3339), insightID, userID)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE leak_insights
			SET is_resolved = 0, resolved_at = NULL
			WHERE id = ? AND user_id = ?`, insightID, userID)
	}
	if err != nil {
		return fmt.Errorf("set leak resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LeakSummary aggregates active and resolved counts with the active annual
// saving by category.
func (r *SQLiteRepository) LeakSummary(ctx context.Context, userID string) (core.LeakSummary, error) {
	summary := core.LeakSummary{SavingCentsByCategory: make(map[core.LeakCategory]int64)}

	row := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN is_resolved = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_resolved = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_resolved = 0 THEN saving_cents ELSE 0 END), 0)
		FROM leak_insights
		WHERE user_id = ?`, userID)
	if err := row.Scan(&summary.ActiveLeaks, &summary.ResolvedLeaks, &summary.ActiveAnnualSaving.Cents); err != nil {
		return core.LeakSummary{}, fmt.Errorf("leak summary: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, COALESCE(SUM(saving_cents), 0)
		FROM leak_insights
		WHERE user_id = ? AND is_resolved = 0
		GROUP BY category`, userID)
	if err != nil {
		return core.LeakSummary{}, fmt.Errorf("summary by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var cents int64
		if err := rows.Scan(&category, &cents); err != nil {
			return core.LeakSummary{}, fmt.Errorf("scan summary row: %w", err)
		}
		summary.SavingCentsByCategory[core.LeakCategory(category)] = cents
	}
	if err := rows.Err(); err != nil {
		return core.LeakSummary{}, fmt.Errorf("iterate summary rows: %w", err)
	}
	return summary, nil
}

// StartRun records a new analysis run in RUNNING state.
func (r *SQLiteRepository) StartRun(ctx context.Context, run core.AnalysisRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, user_id, started_at, status)
		VALUES (?, ?, ?, ?)`,
		run.RunID, run.UserID, run.StartedAt.UTC().Format(time.RFC3339), string(run.Status))
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun closes a run with its final status and counters.
func (r *SQLiteRepository) FinishRun(ctx context.Context, run core.AnalysisRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET finished_at = ?, status = ?, error_message = ?,
		    txn_count = ?, pattern_count = ?, leak_count = ?
		WHERE run_id = ?`,
		finished.Format(time.RFC3339), string(run.Status), run.ErrorMessage,
		run.TxnCount, run.PatternCount, run.LeakCount, run.RunID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInsights(rows *sql.Rows) ([]core.LeakInsight, error) {
	var insights []core.LeakInsight
	for rows.Next() {
		var in core.LeakInsight
		var merchant, category, analysisTS string
		var resolvedAt sql.NullString
		var resolved int
		if err := rows.Scan(&in.ID, &in.UserID, &merchant, &category,
			&in.Leak.Probability, &in.Leak.EstimatedAnnualSaving.Cents,
			&in.Leak.Reasoning, &in.Leak.ActionableStep, &analysisTS,
			&resolved, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		in.Leak.PatternKey = core.PatternKey(merchant)
		in.Leak.Category = core.LeakCategory(category)
		ts, err := time.Parse(time.RFC3339, analysisTS)
		if err != nil {
			return nil, fmt.Errorf("parse analysis timestamp %q: %w", analysisTS, err)
		}
		in.AnalysisAt = ts
		in.Resolved = resolved == 1
		if resolvedAt.Valid {
			rt, err := time.Parse(time.RFC3339, resolvedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse resolved timestamp %q: %w", resolvedAt.String, err)
			}
			in.ResolvedAt = &rt
		}
		insights = append(insights, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate insights: %w", err)
	}
	return insights, nil
}
