package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analysis-engine/internal/cost"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

func (g *gateway) Extract(ctx context.Context, req parallel.ExtractRequest) (model.TaskHandle, *CallMeta, error) {
	var started parallel.RunStarted
	meta, err := g.Call(ctx, CallSpec{
		Operation: "extract",
		Method:    http.MethodPost,
		Path:      "/v1/extract",
		Body:      req,
		Category:  cost.CategoryExtract,
		Cacheable: true,
	}, &started)
	if err != nil {
		return model.TaskHandle{}, nil, eris.Wrap(err, "gateway: start extract")
	}
	return model.TaskHandle{
		ID:        started.RunID,
		Kind:      model.TaskKindSimpleStatus,
		StartedAt: time.Now(),
	}, meta, nil
}

func (g *gateway) DeepResearch(ctx context.Context, input, processor string) (model.TaskHandle, *CallMeta, error) {
	var started parallel.RunStarted
	meta, err := g.Call(ctx, CallSpec{
		Operation: "deep_research",
		Method:    http.MethodPost,
		Path:      "/v1/tasks/runs",
		Body:      parallel.TaskRunRequest{Input: input, Processor: processor},
		Category:  cost.ResearchCategory(processor),
		Cacheable: true,
	}, &started)
	if err != nil {
		return model.TaskHandle{}, nil, eris.Wrap(err, "gateway: start deep research")
	}
	return model.TaskHandle{
		ID:        started.RunID,
		Kind:      model.TaskKindSimpleStatus,
		StartedAt: time.Now(),
	}, meta, nil
}

func (g *gateway) DiscoverEntities(ctx context.Context, req parallel.FindAllRequest) (model.TaskHandle, *CallMeta, error) {
	var started parallel.FindAllStarted
	meta, err := g.Call(ctx, CallSpec{
		Operation: "discover",
		Method:    http.MethodPost,
		Path:      "/v1/findall",
		Body:      req,
		Category:  cost.CategoryDiscovery,
		Cacheable: true,
	}, &started)
	if err != nil {
		return model.TaskHandle{}, nil, eris.Wrap(err, "gateway: start discovery")
	}
	return model.TaskHandle{
		ID:        started.FindAllID,
		Kind:      model.TaskKindDualFlag,
		StartedAt: time.Now(),
	}, meta, nil
}

func (g *gateway) Enrich(ctx context.Context, req parallel.EnrichRequest) (model.TaskHandle, *CallMeta, error) {
	var resp parallel.EnrichResponse
	meta, err := g.Call(ctx, CallSpec{
		Operation: "enrich",
		Method:    http.MethodPost,
		Path:      "/v1/enrich",
		Body:      req,
		Category:  cost.CategoryEnrich,
		Cacheable: true,
	}, &resp)
	if err != nil {
		return model.TaskHandle{}, nil, eris.Wrap(err, "gateway: enrich")
	}

	// Small lookups resolve inline: no run id, body already final.
	if resp.RunID == "" {
		return model.TaskHandle{
			Kind:      model.TaskKindSynchronous,
			StartedAt: time.Now(),
			Inline:    resp.Data,
		}, meta, nil
	}
	return model.TaskHandle{
		ID:        resp.RunID,
		Kind:      model.TaskKindSimpleStatus,
		StartedAt: time.Now(),
	}, meta, nil
}

func (g *gateway) PollStatus(ctx context.Context, handle model.TaskHandle) (*StatusSnapshot, *CallMeta, error) {
	switch handle.Kind {
	case model.TaskKindDualFlag:
		var raw json.RawMessage
		meta, err := g.Call(ctx, CallSpec{
			Operation:   "findall_status",
			Method:      http.MethodGet,
			Path:        fmt.Sprintf("/v1/findall/%s", handle.ID),
			Category:    cost.CategoryStatus,
			BypassCache: true,
		}, &raw)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "gateway: poll findall %s", handle.ID)
		}
		var status parallel.FindAllStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, nil, &DecodeError{Operation: "findall_status", Err: err}
		}
		return &StatusSnapshot{
			ActiveGeneration: status.IsActiveGeneration,
			ActiveEnrichment: status.AreEnrichmentsActive,
			Raw:              raw,
		}, meta, nil

	default:
		var status parallel.RunStatus
		meta, err := g.Call(ctx, CallSpec{
			Operation:   "run_status",
			Method:      http.MethodGet,
			Path:        fmt.Sprintf("/v1/tasks/runs/%s", handle.ID),
			Category:    cost.CategoryStatus,
			BypassCache: true,
		}, &status)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "gateway: poll run %s", handle.ID)
		}
		return &StatusSnapshot{Status: status.Status, Error: status.Error}, meta, nil
	}
}

func (g *gateway) FetchResult(ctx context.Context, handle model.TaskHandle) (json.RawMessage, *CallMeta, error) {
	var raw json.RawMessage
	meta, err := g.Call(ctx, CallSpec{
		Operation:   "run_result",
		Method:      http.MethodGet,
		Path:        fmt.Sprintf("/v1/tasks/runs/%s/result", handle.ID),
		Category:    cost.CategoryResult,
		BypassCache: true,
	}, &raw)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "gateway: fetch result %s", handle.ID)
	}
	return raw, meta, nil
}
