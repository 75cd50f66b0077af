package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/deepdive/internal/agent/core"
)

// Store wraps the Postgres connection used by the API layer. Analysis runs are
// archived here after the pipeline finishes; the pipeline itself never touches
// the database.
type Store struct {
	DB *sql.DB
}

// New constructs the Store from DATABASE_URL or POSTGRES_* environment variables.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// AnalysisRun is one archived pipeline run.
type AnalysisRun struct {
	ID                    string
	UserID                string
	Query                 string
	Status                string
	Error                 string
	ComprehensiveAnalysis string
	KeyInsights           []string
	ConfidenceScore       float64
	Sources               []string
	CostEstimate          float64
	TokensUsed            int64
	ModelsUsed            []string
	ProcessingTime        time.Duration
	CreatedAt             time.Time
	FinishedAt            *time.Time
}

// Run status values persisted in analysis_runs.status.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// CreateAnalysisRun records a run the moment it is accepted, before the
// pipeline starts.
func (s *Store) CreateAnalysisRun(ctx context.Context, id, userID, query string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO analysis_runs (id, user_id, query, status, created_at)
VALUES ($1,$2,$3,$4,NOW())
`, id, userID, query, RunStatusRunning)
	return err
}

// FinishAnalysisRun archives the final result of a successful run.
func (s *Store) FinishAnalysisRun(ctx context.Context, userID string, result core.ReflectionOutput) error {
	insights, err := json.Marshal(result.KeyInsights)
	if err != nil {
		return fmt.Errorf("marshal insights: %w", err)
	}
	sources, err := json.Marshal(result.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	models, err := json.Marshal(result.ModelsUsed)
	if err != nil {
		return fmt.Errorf("marshal models: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
UPDATE analysis_runs SET
  status = $2,
  comprehensive_analysis = $3,
  key_insights = $4,
  confidence_score = $5,
  sources = $6,
  cost_estimate = $7,
  tokens_used = $8,
  models_used = $9,
  processing_time_ms = $10,
  finished_at = NOW()
WHERE id = $1 AND user_id = $11
`, result.RunID, RunStatusSucceeded, result.ComprehensiveAnalysis, insights,
		result.ConfidenceScore, sources, result.CostEstimate, result.TokensUsed,
		models, result.ProcessingTime.Milliseconds(), userID)
	return err
}

// FailAnalysisRun marks a run as failed with its terminal error.
func (s *Store) FailAnalysisRun(ctx context.Context, id, userID, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE analysis_runs SET status = $2, error = $3, finished_at = NOW()
WHERE id = $1 AND user_id = $4
`, id, RunStatusFailed, errMsg, userID)
	return err
}

// GetAnalysisRun fetches one archived run scoped to its owner.
func (s *Store) GetAnalysisRun(ctx context.Context, id, userID string) (AnalysisRun, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, query, status, COALESCE(error,''), COALESCE(comprehensive_analysis,''),
       COALESCE(key_insights,'[]'), COALESCE(confidence_score,0), COALESCE(sources,'[]'),
       COALESCE(cost_estimate,0), COALESCE(tokens_used,0), COALESCE(models_used,'[]'),
       COALESCE(processing_time_ms,0), created_at, finished_at
FROM analysis_runs
WHERE id=$1 AND user_id=$2
`, id, userID)
	run, err := scanAnalysisRun(row)
	if err == sql.ErrNoRows {
		return AnalysisRun{}, false, nil
	}
	if err != nil {
		return AnalysisRun{}, false, err
	}
	return run, true, nil
}

// ListAnalysisRuns returns the owner's runs, newest first.
func (s *Store) ListAnalysisRuns(ctx context.Context, userID string, limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, query, status, COALESCE(error,''), COALESCE(comprehensive_analysis,''),
       COALESCE(key_insights,'[]'), COALESCE(confidence_score,0), COALESCE(sources,'[]'),
       COALESCE(cost_estimate,0), COALESCE(tokens_used,0), COALESCE(models_used,'[]'),
       COALESCE(processing_time_ms,0), created_at, finished_at
FROM analysis_runs
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AnalysisRun
	for rows.Next() {
		run, err := scanAnalysisRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysisRun(row rowScanner) (AnalysisRun, error) {
	var run AnalysisRun
	var insights, sources, models []byte
	var processingMS int64
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &run.UserID, &run.Query, &run.Status, &run.Error,
		&run.ComprehensiveAnalysis, &insights, &run.ConfidenceScore, &sources,
		&run.CostEstimate, &run.TokensUsed, &models, &processingMS,
		&run.CreatedAt, &finished); err != nil {
		return AnalysisRun{}, err
	}
	if err := json.Unmarshal(insights, &run.KeyInsights); err != nil {
		return AnalysisRun{}, fmt.Errorf("unmarshal insights: %w", err)
	}
	if err := json.Unmarshal(sources, &run.Sources); err != nil {
		return AnalysisRun{}, fmt.Errorf("unmarshal sources: %w", err)
	}
	if err := json.Unmarshal(models, &run.ModelsUsed); err != nil {
		return AnalysisRun{}, fmt.Errorf("unmarshal models: %w", err)
	}
	run.ProcessingTime = time.Duration(processingMS) * time.Millisecond
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
