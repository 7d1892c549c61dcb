package parallel

import "encoding/json"

// Research processor tiers, in increasing depth and cost.
const (
	ProcessorLite  = "lite"
	ProcessorBase  = "base"
	ProcessorCore  = "core"
	ProcessorPro   = "pro"
	ProcessorUltra = "ultra"
)

// Task run statuses reported by GET /v1/tasks/runs/{id}.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ExtractRequest is the body for POST /v1/extract.
type ExtractRequest struct {
	URL      string   `json:"url"`
	Formats  []string `json:"formats,omitempty"`
	MaxDepth int      `json:"max_depth,omitempty"`
}

// TaskRunRequest is the body for POST /v1/tasks/runs.
type TaskRunRequest struct {
	Input     string `json:"input"`
	Processor string `json:"processor"`
}

// RunStarted is the response from operations that start an async run.
// RunID is empty when the operation resolved inline.
type RunStarted struct {
	RunID string `json:"run_id"`
}

// RunStatus is the response from GET /v1/tasks/runs/{id}.
type RunStatus struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// FindAllRequest is the body for POST /v1/findall.
type FindAllRequest struct {
	Query      string   `json:"query"`
	EntityType string   `json:"entity_type"`
	Limit      int      `json:"limit,omitempty"`
	Enrich     []string `json:"enrich,omitempty"`
}

// FindAllStarted is the response from POST /v1/findall.
type FindAllStarted struct {
	FindAllID string `json:"findall_id"`
}

// FindAllStatus is the response from GET /v1/findall/{id}. A FindAll is
// done when both activity flags are false; results accumulate inline as
// generation and enrichment proceed.
type FindAllStatus struct {
	FindAllID            string          `json:"findall_id"`
	IsActiveGeneration   bool            `json:"is_active_generation"`
	AreEnrichmentsActive bool            `json:"are_enrichments_active"`
	Results              []FindAllResult `json:"results,omitempty"`
}

// FindAllResult is one discovered entity.
type FindAllResult struct {
	Name       string         `json:"name"`
	URL        string         `json:"url,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EnrichRequest is the body for POST /v1/enrich.
type EnrichRequest struct {
	CompanyName string   `json:"company_name"`
	Website     string   `json:"website,omitempty"`
	Fields      []string `json:"fields,omitempty"`
}

// EnrichResponse is the response from POST /v1/enrich. Small lookups
// resolve inline with Data set and no RunID; larger ones return a RunID
// to poll.
type EnrichResponse struct {
	RunID string          `json:"run_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}
