package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sells-group/analysis-engine/internal/gateway"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/anthropic"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// mockGateway implements gateway.Gateway with overridable functions. The
// default helpers resolve inline so tests run without a poll loop.
type mockGateway struct {
	extractFunc  func(ctx context.Context, req parallel.ExtractRequest) (model.TaskHandle, *gateway.CallMeta, error)
	researchFunc func(ctx context.Context, input, processor string) (model.TaskHandle, *gateway.CallMeta, error)
	discoverFunc func(ctx context.Context, req parallel.FindAllRequest) (model.TaskHandle, *gateway.CallMeta, error)
	enrichFunc   func(ctx context.Context, req parallel.EnrichRequest) (model.TaskHandle, *gateway.CallMeta, error)
	pollFunc     func(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error)
	fetchFunc    func(ctx context.Context, handle model.TaskHandle) (json.RawMessage, *gateway.CallMeta, error)

	researchInputs []string
}

func inlineHandle(payload string) model.TaskHandle {
	return model.TaskHandle{
		Kind:   model.TaskKindSynchronous,
		Inline: json.RawMessage(payload),
	}
}

func metaWithCost(c float64) *gateway.CallMeta {
	return &gateway.CallMeta{CostEstimate: c}
}

func (m *mockGateway) Call(ctx context.Context, spec gateway.CallSpec, out any) (*gateway.CallMeta, error) {
	return &gateway.CallMeta{}, nil
}

func (m *mockGateway) Extract(ctx context.Context, req parallel.ExtractRequest) (model.TaskHandle, *gateway.CallMeta, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, req)
	}
	return inlineHandle(`{"markdown":"About Acme: we make anvils."}`), metaWithCost(0.015), nil
}

func (m *mockGateway) DeepResearch(ctx context.Context, input, processor string) (model.TaskHandle, *gateway.CallMeta, error) {
	m.researchInputs = append(m.researchInputs, input)
	if m.researchFunc != nil {
		return m.researchFunc(ctx, input, processor)
	}
	return inlineHandle(`{"summary":"deep research result"}`), metaWithCost(0.09), nil
}

func (m *mockGateway) DiscoverEntities(ctx context.Context, req parallel.FindAllRequest) (model.TaskHandle, *gateway.CallMeta, error) {
	if m.discoverFunc != nil {
		return m.discoverFunc(ctx, req)
	}
	return inlineHandle(`{
		"findall_id": "fa-1",
		"is_active_generation": false,
		"are_enrichments_active": false,
		"results": [
			{"name": "Globex", "url": "https://globex.com"},
			{"name": "Initech", "url": "https://initech.com"}
		]
	}`), metaWithCost(0.50), nil
}

func (m *mockGateway) Enrich(ctx context.Context, req parallel.EnrichRequest) (model.TaskHandle, *gateway.CallMeta, error) {
	if m.enrichFunc != nil {
		return m.enrichFunc(ctx, req)
	}
	return inlineHandle(`{"employee_count":120,"industry":"manufacturing"}`), metaWithCost(0.02), nil
}

func (m *mockGateway) PollStatus(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error) {
	if m.pollFunc != nil {
		return m.pollFunc(ctx, handle)
	}
	return nil, nil, errors.New("unexpected PollStatus")
}

func (m *mockGateway) FetchResult(ctx context.Context, handle model.TaskHandle) (json.RawMessage, *gateway.CallMeta, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, handle)
	}
	return nil, nil, errors.New("unexpected FetchResult")
}

// mockAnthropic implements anthropic.Client.
type mockAnthropic struct {
	createMessageFunc func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if m.createMessageFunc != nil {
		return m.createMessageFunc(ctx, req)
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Acme prospecting report."}},
		Usage: anthropic.TokenUsage{
			InputTokens:  1000,
			OutputTokens: 500,
		},
	}, nil
}
