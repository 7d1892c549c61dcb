// Package store persists analysis job records.
package store

import (
	"context"

	"github.com/sells-group/analysis-engine/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status      model.JobStatus `json:"status,omitempty"`
	CompanyName string          `json:"company_name,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Offset      int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis jobs. UpdateJob
// applies a partial update; an artifact update merges one key into the
// job's artifacts without replacing the rest of the map.
type Store interface {
	CreateJob(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisJob, error)
	GetJob(ctx context.Context, jobID string) (*model.AnalysisJob, error)
	UpdateJob(ctx context.Context, jobID string, update model.JobUpdate) error
	ListJobs(ctx context.Context, filter JobFilter) ([]model.AnalysisJob, error)

	Migrate(ctx context.Context) error
	Close() error
}
