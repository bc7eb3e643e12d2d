package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/i-dream-of-ai/sparkmango/pkg/models"
)

// Tracker records and queries generation token usage.
type Tracker interface {
	// Record stores a usage record and updates its run's counters.
	Record(ctx context.Context, rec models.UsageRecord) error
	// StartRun registers a batch run so it is listed even before any request completes.
	StartRun(ctx context.Context, runID, contract string) error
	// QueryByContract returns usage records for a contract since a given time.
	QueryByContract(ctx context.Context, contract string, since time.Time) ([]models.UsageRecord, error)
	// TotalByContract returns total tokens used for a contract since a given time.
	TotalByContract(ctx context.Context, contract string, since time.Time) (int64, error)
	// TotalByContractAndModel returns total tokens used for a contract and model since a given time.
	TotalByContractAndModel(ctx context.Context, contract, model string, since time.Time) (int64, error)
	// Summary returns aggregated usage summaries, optionally filtered by contract.
	Summary(ctx context.Context, contract string) ([]models.UsageSummary, error)
	// CostReport returns token totals grouped by contract and model since a given time.
	CostReport(ctx context.Context, since time.Time, contract string) ([]models.CostReport, error)
	// ListRuns returns all runs, optionally filtered by contract.
	ListRuns(ctx context.Context, contract string) ([]models.RunSummary, error)
	// RunRequests returns the per-function records of a run.
	RunRequests(ctx context.Context, runID string) ([]models.UsageRecord, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

var _ Tracker = (*SQLiteTracker)(nil)

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL DEFAULT '',
	contract TEXT NOT NULL,
	function TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_contract_time ON usage_records(contract, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_run ON usage_records(run_id);
`

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	contract TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	last_activity DATETIME NOT NULL,
	request_count INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_contract ON runs(contract);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate runs table: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// Record stores a usage record and updates run counters.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (run_id, contract, function, model, prompt_tokens, completion_tokens, total_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Contract, rec.Function, rec.Model, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	// Update run counters if run is set.
	if rec.RunID != "" {
		_, err = t.db.ExecContext(ctx,
			`INSERT INTO runs (id, contract, started_at, last_activity, request_count, total_tokens) VALUES (?, ?, ?, ?, 1, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   last_activity = excluded.last_activity,
			   request_count = request_count + 1,
			   total_tokens = total_tokens + excluded.total_tokens`,
			rec.RunID, rec.Contract, rec.CreatedAt, rec.CreatedAt, rec.TotalTokens,
		)
		if err != nil {
			return fmt.Errorf("update run counters: %w", err)
		}
	}

	return nil
}

// StartRun ensures the run row exists.
func (t *SQLiteTracker) StartRun(ctx context.Context, runID, contract string) error {
	now := time.Now().UTC()
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO runs (id, contract, started_at, last_activity) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		runID, contract, now, now,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// ListRuns returns all runs, optionally filtered by contract.
func (t *SQLiteTracker) ListRuns(ctx context.Context, contract string) ([]models.RunSummary, error) {
	query := `SELECT id, contract, started_at, last_activity, request_count, total_tokens FROM runs`
	var args []any
	if contract != "" {
		query += ` WHERE contract = ?`
		args = append(args, contract)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var r models.RunSummary
		if err := rows.Scan(&r.ID, &r.Contract, &r.StartedAt, &r.LastActivity, &r.RequestCount, &r.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunRequests returns the records of a run in the order they were made.
func (t *SQLiteTracker) RunRequests(ctx context.Context, runID string) ([]models.UsageRecord, error) {
	return t.queryRecords(ctx,
		`WHERE run_id = ? ORDER BY created_at ASC, id ASC`, runID)
}

// QueryByContract returns usage records for a contract since a given time.
func (t *SQLiteTracker) QueryByContract(ctx context.Context, contract string, since time.Time) ([]models.UsageRecord, error) {
	return t.queryRecords(ctx,
		`WHERE contract = ? AND created_at >= ? ORDER BY created_at DESC`, contract, since)
}

func (t *SQLiteTracker) queryRecords(ctx context.Context, where string, args ...any) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, run_id, contract, function, model, prompt_tokens, completion_tokens, total_tokens, created_at
		 FROM usage_records `+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.Contract, &r.Function, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalByContract returns total tokens used for a contract since a given time.
func (t *SQLiteTracker) TotalByContract(ctx context.Context, contract string, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE contract = ? AND created_at >= ?`,
		contract, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage: %w", err)
	}
	return total, nil
}

// TotalByContractAndModel returns total tokens used for a contract and model since a given time.
func (t *SQLiteTracker) TotalByContractAndModel(ctx context.Context, contract, model string, since time.Time) (int64, error) {
	var total int64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total_tokens), 0) FROM usage_records WHERE contract = ? AND model = ? AND created_at >= ?`,
		contract, model, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total usage by model: %w", err)
	}
	return total, nil
}

// Summary returns aggregated usage grouped by contract and model.
func (t *SQLiteTracker) Summary(ctx context.Context, contract string) ([]models.UsageSummary, error) {
	query := `SELECT contract, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		 FROM usage_records`
	var args []any
	if contract != "" {
		query += ` WHERE contract = ?`
		args = append(args, contract)
	}
	query += ` GROUP BY contract, model ORDER BY contract, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Contract, &s.Model, &s.RequestCount, &s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// CostReport returns token totals grouped by contract and model. EstimatedCost
// is left for the caller to fill from pricing.
func (t *SQLiteTracker) CostReport(ctx context.Context, since time.Time, contract string) ([]models.CostReport, error) {
	query := `SELECT contract, model, COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(total_tokens)
		 FROM usage_records WHERE created_at >= ?`
	args := []any{since}
	if contract != "" {
		query += ` AND contract = ?`
		args = append(args, contract)
	}
	query += ` GROUP BY contract, model ORDER BY contract, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cost report: %w", err)
	}
	defer rows.Close()

	var reports []models.CostReport
	for rows.Next() {
		var r models.CostReport
		if err := rows.Scan(&r.Contract, &r.Model, &r.RequestCount, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan cost report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ApplyPricing fills EstimatedCost from per-1K token prices.
func ApplyPricing(reports []models.CostReport, pricing []models.ModelPricing) {
	byModel := make(map[string]models.ModelPricing, len(pricing))
	for _, p := range pricing {
		byModel[p.Model] = p
	}
	for i := range reports {
		if p, ok := byModel[reports[i].Model]; ok {
			reports[i].EstimatedCost = (float64(reports[i].PromptTokens)/1000)*p.PromptCost +
				(float64(reports[i].CompletionTokens)/1000)*p.CompletionCost
		}
	}
}

// Contracts returns the contracts with recorded usage, sorted.
func Contracts(ctx context.Context, t Tracker) ([]string, error) {
	rows, err := t.Summary(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		if !seen[r.Contract] {
			seen[r.Contract] = true
			out = append(out, r.Contract)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
