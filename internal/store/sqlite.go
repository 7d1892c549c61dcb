package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/analysis-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id            TEXT PRIMARY KEY,
	request       TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	progress      INTEGER NOT NULL DEFAULT 0,
	current_phase TEXT,
	current_step  TEXT,
	artifacts     TEXT NOT NULL DEFAULT '{}',
	total_cost    REAL NOT NULL DEFAULT 0,
	error         TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at    DATETIME,
	completed_at  DATETIME,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_created_at ON analysis_jobs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_jobs (id, request, status, progress, artifacts, total_cost, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(reqJSON), string(model.JobStatusPending), 0, `{}`, 0.0, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.AnalysisJob{
		ID:        id,
		Request:   req,
		Status:    model.JobStatusPending,
		Artifacts: map[string]any{},
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request, status, progress, current_phase, current_step, artifacts, total_cost, error, created_at, started_at, completed_at FROM analysis_jobs WHERE id = ?`,
		jobID,
	)
	job, err := scanJobSQLite(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return job, nil
}

// UpdateJob applies the non-nil fields of update. SQLite has no jsonb
// merge operator, so an artifact update reads the current map, merges
// the key, and writes it back.
func (s *SQLiteStore) UpdateJob(ctx context.Context, jobID string, update model.JobUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = ?", column))
		args = append(args, value)
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Progress != nil {
		add("progress", *update.Progress)
	}
	if update.CurrentPhase != nil {
		add("current_phase", string(*update.CurrentPhase))
	}
	if update.CurrentStep != nil {
		add("current_step", *update.CurrentStep)
	}
	if update.Artifact != nil {
		merged, err := s.mergeArtifact(ctx, jobID, *update.Artifact)
		if err != nil {
			return err
		}
		add("artifacts", merged)
	}
	if update.TotalCost != nil {
		add("total_cost", *update.TotalCost)
	}
	if update.Error != nil {
		errJSON, err := json.Marshal(update.Error)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal error record")
		}
		add("error", string(errJSON))
	}
	if update.StartedAt != nil {
		add("started_at", update.StartedAt.UTC())
	}
	if update.CompletedAt != nil {
		add("completed_at", update.CompletedAt.UTC())
	}

	query := fmt.Sprintf("UPDATE analysis_jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	args = append(args, jobID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", jobID)
	}
	return checkRowsAffected(res, jobID)
}

func (s *SQLiteStore) mergeArtifact(ctx context.Context, jobID string, artifact model.ArtifactUpdate) (string, error) {
	var current string
	err := s.db.QueryRowContext(ctx,
		`SELECT artifacts FROM analysis_jobs WHERE id = ?`, jobID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return "", eris.Wrapf(ErrNotFound, "sqlite: merge artifact for job %s", jobID)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: read artifacts for job %s", jobID)
	}

	artifacts := map[string]any{}
	if current != "" {
		if err := json.Unmarshal([]byte(current), &artifacts); err != nil {
			return "", eris.Wrap(err, "sqlite: unmarshal artifacts")
		}
	}
	artifacts[artifact.Key] = artifact.Value

	merged, err := json.Marshal(artifacts)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal artifacts")
	}
	return string(merged), nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error) {
	query := `SELECT id, request, status, progress, current_phase, current_step, artifacts, total_cost, error, created_at, started_at, completed_at FROM analysis_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CompanyName != "" {
		query += ` AND json_extract(request, '$.company_name') = ?`
		args = append(args, filter.CompanyName)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.AnalysisJob
	for rows.Next() {
		job, err := scanJobSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJobSQLite(row scannable) (*model.AnalysisJob, error) {
	var j model.AnalysisJob
	var reqJSON, artifactsJSON string
	var errJSON, phase, step sql.NullString

	err := row.Scan(&j.ID, &reqJSON, &j.Status, &j.Progress, &phase, &step,
		&artifactsJSON, &j.TotalCost, &errJSON, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(reqJSON), &j.Request); err != nil {
		return nil, eris.Wrap(err, "unmarshal request")
	}
	if artifactsJSON != "" {
		if err := json.Unmarshal([]byte(artifactsJSON), &j.Artifacts); err != nil {
			return nil, eris.Wrap(err, "unmarshal artifacts")
		}
	}
	if errJSON.Valid {
		j.Error = &model.ErrorRecord{}
		if err := json.Unmarshal([]byte(errJSON.String), j.Error); err != nil {
			return nil, eris.Wrap(err, "unmarshal error record")
		}
	}
	if phase.Valid {
		j.CurrentPhase = model.Phase(phase.String)
	}
	if step.Valid {
		j.CurrentStep = step.String
	}
	return &j, nil
}
