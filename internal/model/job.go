package model

import "time"

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Phase identifies a stage of the analysis pipeline.
type Phase string

const (
	PhaseExtract     Phase = "extract"
	PhaseResearch    Phase = "research"
	PhaseDiscover    Phase = "discover"
	PhaseCompetitors Phase = "competitors"
	PhaseEnrich      Phase = "enrich"
	PhaseSynthesize  Phase = "synthesize"
)

// AnalysisRequest describes the company to analyze.
type AnalysisRequest struct {
	CompanyName string `json:"company_name"`
	Website     string `json:"website"`
	Processor   string `json:"processor,omitempty"` // research depth tier, default from config
}

// ErrorRecord captures a terminal failure on a job.
type ErrorRecord struct {
	Message    string    `json:"message"`
	Trace      string    `json:"trace,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AnalysisJob is the persistent record of one analysis run. It is created
// Pending by the trigger surface and mutated exclusively by the pipeline
// for the duration of a single run.
type AnalysisJob struct {
	ID           string          `json:"id"`
	Request      AnalysisRequest `json:"request"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"` // 0-100, non-decreasing while processing
	CurrentPhase Phase           `json:"current_phase,omitempty"`
	CurrentStep  string          `json:"current_step,omitempty"`
	Artifacts    map[string]any  `json:"artifacts,omitempty"`
	TotalCost    float64         `json:"total_cost"`
	Error        *ErrorRecord    `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// ArtifactUpdate sets or replaces a single key in a job's artifacts map.
type ArtifactUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// JobUpdate is a partial update applied to a job record. Nil fields are
// left untouched; Artifact merges one key into the artifacts map.
type JobUpdate struct {
	Status       *JobStatus      `json:"status,omitempty"`
	Progress     *int            `json:"progress,omitempty"`
	CurrentPhase *Phase          `json:"current_phase,omitempty"`
	CurrentStep  *string         `json:"current_step,omitempty"`
	Artifact     *ArtifactUpdate `json:"artifact,omitempty"`
	TotalCost    *float64        `json:"total_cost,omitempty"`
	Error        *ErrorRecord    `json:"error,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}
