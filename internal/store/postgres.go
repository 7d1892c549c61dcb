package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/analysis-engine/internal/model"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = eris.New("store: job not found")

// Pool is the subset of pgxpool.Pool the store uses. Satisfied by
// pgxmock in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_job": `INSERT INTO analysis_jobs (id, request, status, progress, artifacts, total_cost, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_job":    `SELECT id, request, status, progress, current_phase, current_step, artifacts, total_cost, error, created_at, started_at, completed_at FROM analysis_jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_jobs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	request       JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	progress      INTEGER NOT NULL DEFAULT 0,
	current_phase TEXT,
	current_step  TEXT,
	artifacts     JSONB NOT NULL DEFAULT '{}',
	total_cost    DOUBLE PRECISION NOT NULL DEFAULT 0,
	error         JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analysis_jobs_status ON analysis_jobs(status);
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_company ON analysis_jobs((request->>'company_name'));
CREATE INDEX IF NOT EXISTS idx_analysis_jobs_created_at ON analysis_jobs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal request")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, request, status, progress, artifacts, total_cost, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, reqJSON, string(model.JobStatusPending), 0, []byte(`{}`), 0.0, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.AnalysisJob{
		ID:        id,
		Request:   req,
		Status:    model.JobStatusPending,
		Artifacts: map[string]any{},
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, request, status, progress, current_phase, current_step, artifacts, total_cost, error, created_at, started_at, completed_at FROM analysis_jobs WHERE id = $1`,
		jobID,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get job %s", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return job, nil
}

// UpdateJob applies the non-nil fields of update in a single statement.
// Artifact updates merge one key into the jsonb map server-side.
func (s *PostgresStore) UpdateJob(ctx context.Context, jobID string, update model.JobUpdate) error {
	sets := []string{"updated_at = now()"}
	var args []any
	argIdx := 1

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
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
		patch, err := json.Marshal(map[string]any{update.Artifact.Key: update.Artifact.Value})
		if err != nil {
			return eris.Wrap(err, "postgres: marshal artifact")
		}
		sets = append(sets, fmt.Sprintf("artifacts = COALESCE(artifacts, '{}'::jsonb) || $%d::jsonb", argIdx))
		args = append(args, patch)
		argIdx++
	}
	if update.TotalCost != nil {
		add("total_cost", *update.TotalCost)
	}
	if update.Error != nil {
		errJSON, err := json.Marshal(update.Error)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal error record")
		}
		add("error", errJSON)
	}
	if update.StartedAt != nil {
		add("started_at", update.StartedAt.UTC())
	}
	if update.CompletedAt != nil {
		add("completed_at", update.CompletedAt.UTC())
	}

	query := fmt.Sprintf("UPDATE analysis_jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), argIdx)
	args = append(args, jobID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: update job %s", jobID)
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error) {
	query := `SELECT id, request, status, progress, current_phase, current_step, artifacts, total_cost, error, created_at, started_at, completed_at FROM analysis_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.CompanyName != "" {
		query += fmt.Sprintf(` AND request->>'company_name' = $%d`, argIdx)
		args = append(args, filter.CompanyName)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.AnalysisJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func scanJob(row pgx.Row) (*model.AnalysisJob, error) {
	var j model.AnalysisJob
	var reqJSON, artifactsJSON []byte
	var errJSON *[]byte
	var phase, step *string

	err := row.Scan(&j.ID, &reqJSON, &j.Status, &j.Progress, &phase, &step,
		&artifactsJSON, &j.TotalCost, &errJSON, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(reqJSON, &j.Request); err != nil {
		return nil, eris.Wrap(err, "unmarshal request")
	}
	if len(artifactsJSON) > 0 {
		if err := json.Unmarshal(artifactsJSON, &j.Artifacts); err != nil {
			return nil, eris.Wrap(err, "unmarshal artifacts")
		}
	}
	if errJSON != nil {
		j.Error = &model.ErrorRecord{}
		if err := json.Unmarshal(*errJSON, j.Error); err != nil {
			return nil, eris.Wrap(err, "unmarshal error record")
		}
	}
	if phase != nil {
		j.CurrentPhase = model.Phase(*phase)
	}
	if step != nil {
		j.CurrentStep = *step
	}
	return &j, nil
}
