// Package gateway is the single egress point for the research API. It
// composes the shared rate limiter, response cache, and cost ledger around
// a generic Call operation, and exposes typed helpers per API capability.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/cost"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/internal/ratelimit"
	"github.com/sells-group/analysis-engine/internal/respcache"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// CallSpec describes one outbound API call.
type CallSpec struct {
	Operation   string // logical name, used for cache keying and logs
	Method      string
	Path        string
	Body        any
	Category    string // tariff category for cost estimation
	Cacheable   bool
	BypassCache bool
}

// CallMeta reports per-call accounting.
type CallMeta struct {
	CostEstimate  float64
	Cached        bool
	Latency       time.Duration
	CorrelationID string
}

// StatusSnapshot is the decoded status of an in-flight external task,
// unified across task kinds. Status/Error are set for simple-status runs,
// the activity flags and Raw for dual-flag discovery.
type StatusSnapshot struct {
	Status string
	Error  string

	ActiveGeneration bool
	ActiveEnrichment bool
	Raw              json.RawMessage
}

// Gateway performs all outbound research API calls.
type Gateway interface {
	// Call executes spec, decoding the JSON response into out (out may be
	// nil to discard). Errors are *NetworkError or *DecodeError.
	Call(ctx context.Context, spec CallSpec, out any) (*CallMeta, error)

	// Typed helpers. Each starts an external task (or resolves inline)
	// and returns a handle for the completion waiter.
	Extract(ctx context.Context, req parallel.ExtractRequest) (model.TaskHandle, *CallMeta, error)
	DeepResearch(ctx context.Context, input, processor string) (model.TaskHandle, *CallMeta, error)
	DiscoverEntities(ctx context.Context, req parallel.FindAllRequest) (model.TaskHandle, *CallMeta, error)
	Enrich(ctx context.Context, req parallel.EnrichRequest) (model.TaskHandle, *CallMeta, error)

	// PollStatus and FetchResult always bypass the cache: every poll must
	// observe the task's true current state.
	PollStatus(ctx context.Context, handle model.TaskHandle) (*StatusSnapshot, *CallMeta, error)
	FetchResult(ctx context.Context, handle model.TaskHandle) (json.RawMessage, *CallMeta, error)
}

// Deps holds the gateway's injected collaborators. Limiter, Cache, and
// Ledger are process-wide singletons owned by the composition root.
type Deps struct {
	Client  parallel.Client
	Limiter *ratelimit.Limiter
	Cache   *respcache.Cache
	Ledger  *cost.Ledger
	Tariff  cost.Tariff
}

type gateway struct {
	deps Deps
}

// New creates a Gateway.
func New(deps Deps) Gateway {
	return &gateway{deps: deps}
}

func (g *gateway) Call(ctx context.Context, spec CallSpec, out any) (*CallMeta, error) {
	meta := &CallMeta{CorrelationID: uuid.New().String()}
	log := zap.L().With(
		zap.String("operation", spec.Operation),
		zap.String("correlation_id", meta.CorrelationID),
	)

	var cacheKey string
	if spec.Cacheable && !spec.BypassCache {
		cacheKey = respcache.MakeKey(spec.Operation, spec.Body)
		if data, ok := g.deps.Cache.Get(cacheKey); ok {
			if err := decode(spec.Operation, data, out); err != nil {
				return nil, err
			}
			meta.Cached = true
			log.Debug("gateway: cache hit")
			return meta, nil
		}
	}

	if err := g.deps.Limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := g.deps.Client.Do(ctx, spec.Method, spec.Path, spec.Body)
	meta.Latency = time.Since(start)
	if err != nil {
		var apiErr *parallel.APIError
		if errors.As(err, &apiErr) {
			return nil, &NetworkError{StatusCode: apiErr.StatusCode, Body: apiErr.Body}
		}
		return nil, err
	}

	if err := decode(spec.Operation, data, out); err != nil {
		return nil, err
	}

	meta.CostEstimate = g.deps.Tariff.Estimate(spec.Category)
	g.deps.Ledger.Record(spec.Category, meta.CostEstimate, meta.CorrelationID)

	if spec.Cacheable && !spec.BypassCache {
		g.deps.Cache.Set(cacheKey, data)
	}

	log.Debug("gateway: call complete",
		zap.String("category", spec.Category),
		zap.Float64("cost_estimate", meta.CostEstimate),
		zap.Duration("latency", meta.Latency),
	)
	return meta, nil
}

func decode(operation string, data []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &DecodeError{Operation: operation, Err: err}
	}
	return nil
}
