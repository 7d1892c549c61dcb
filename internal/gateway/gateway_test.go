package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analysis-engine/internal/cost"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/internal/ratelimit"
	"github.com/sells-group/analysis-engine/internal/respcache"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// fakeClient implements parallel.Client for testing.
type fakeClient struct {
	calls  atomic.Int32
	doFunc func(ctx context.Context, method, path string, body any) ([]byte, error)
}

func (f *fakeClient) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	f.calls.Add(1)
	return f.doFunc(ctx, method, path, body)
}

func newTestGateway(client parallel.Client) (Gateway, *cost.Ledger) {
	ledger := cost.NewLedger(100)
	return New(Deps{
		Client:  client,
		Limiter: ratelimit.New(100, 1000),
		Cache:   respcache.New(time.Minute),
		Ledger:  ledger,
		Tariff:  cost.DefaultTariff(),
	}), ledger
}

func TestCall_DecodesAndRecordsCost(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return []byte(`{"run_id":"run-1"}`), nil
	}}
	gw, ledger := newTestGateway(client)

	var started parallel.RunStarted
	meta, err := gw.Call(context.Background(), CallSpec{
		Operation: "extract",
		Method:    http.MethodPost,
		Path:      "/v1/extract",
		Body:      parallel.ExtractRequest{URL: "https://acme.com"},
		Category:  cost.CategoryExtract,
		Cacheable: true,
	}, &started)
	require.NoError(t, err)

	assert.Equal(t, "run-1", started.RunID)
	assert.False(t, meta.Cached)
	assert.InDelta(t, 0.015, meta.CostEstimate, 1e-9)
	assert.NotEmpty(t, meta.CorrelationID)
	assert.Equal(t, 1, ledger.Len())
}

func TestCall_CacheHitSkipsNetworkAndCost(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return []byte(`{"run_id":"run-1"}`), nil
	}}
	gw, ledger := newTestGateway(client)

	spec := CallSpec{
		Operation: "extract",
		Method:    http.MethodPost,
		Path:      "/v1/extract",
		Body:      parallel.ExtractRequest{URL: "https://acme.com"},
		Category:  cost.CategoryExtract,
		Cacheable: true,
	}

	var first parallel.RunStarted
	_, err := gw.Call(context.Background(), spec, &first)
	require.NoError(t, err)

	var second parallel.RunStarted
	meta, err := gw.Call(context.Background(), spec, &second)
	require.NoError(t, err)

	assert.True(t, meta.Cached)
	assert.InDelta(t, 0, meta.CostEstimate, 1e-9)
	assert.Equal(t, "run-1", second.RunID)
	assert.Equal(t, int32(1), client.calls.Load())
	assert.Equal(t, 1, ledger.Len())
}

func TestCall_BypassCacheAlwaysCalls(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return []byte(`{"run_id":"run-1","status":"running"}`), nil
	}}
	gw, _ := newTestGateway(client)

	handle := model.TaskHandle{ID: "run-1", Kind: model.TaskKindSimpleStatus}
	_, _, err := gw.PollStatus(context.Background(), handle)
	require.NoError(t, err)
	_, _, err = gw.PollStatus(context.Background(), handle)
	require.NoError(t, err)

	assert.Equal(t, int32(2), client.calls.Load())
}

func TestCall_NetworkError(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return nil, &parallel.APIError{StatusCode: 503, Body: "overloaded"}
	}}
	gw, ledger := newTestGateway(client)

	_, err := gw.Call(context.Background(), CallSpec{
		Operation: "extract",
		Method:    http.MethodPost,
		Path:      "/v1/extract",
		Category:  cost.CategoryExtract,
	}, nil)
	require.Error(t, err)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, 503, netErr.StatusCode)
	assert.Contains(t, netErr.Body, "overloaded")
	assert.Equal(t, 0, ledger.Len())
}

func TestCall_DecodeError(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return []byte(`{not json`), nil
	}}
	gw, _ := newTestGateway(client)

	var started parallel.RunStarted
	_, err := gw.Call(context.Background(), CallSpec{
		Operation: "extract",
		Method:    http.MethodPost,
		Path:      "/v1/extract",
		Category:  cost.CategoryExtract,
	}, &started)
	require.Error(t, err)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "extract", decErr.Operation)
}

func TestCall_UnknownCategoryDefaultEstimate(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return []byte(`{}`), nil
	}}
	gw, _ := newTestGateway(client)

	meta, err := gw.Call(context.Background(), CallSpec{
		Operation: "experimental",
		Method:    http.MethodPost,
		Path:      "/v1/experimental",
		Category:  "experimental",
	}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, meta.CostEstimate, 1e-9)
}

func TestDeepResearch_ReturnsSimpleStatusHandle(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		assert.Equal(t, "/v1/tasks/runs", path)
		return []byte(`{"run_id":"run-deep"}`), nil
	}}
	gw, ledger := newTestGateway(client)

	handle, meta, err := gw.DeepResearch(context.Background(), "research Acme", parallel.ProcessorCore)
	require.NoError(t, err)

	assert.Equal(t, "run-deep", handle.ID)
	assert.Equal(t, model.TaskKindSimpleStatus, handle.Kind)
	assert.InDelta(t, 0.09, meta.CostEstimate, 1e-9)
	assert.InDelta(t, 0.09, ledger.TotalSince(time.Time{}), 1e-9)
}

func TestDiscoverEntities_ReturnsDualFlagHandle(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return []byte(`{"findall_id":"fa-1"}`), nil
	}}
	gw, _ := newTestGateway(client)

	handle, _, err := gw.DiscoverEntities(context.Background(), parallel.FindAllRequest{
		Query: "competitors of Acme", EntityType: "company",
	})
	require.NoError(t, err)

	assert.Equal(t, "fa-1", handle.ID)
	assert.Equal(t, model.TaskKindDualFlag, handle.Kind)
}

func TestEnrich_InlineResolvesSynchronous(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return []byte(`{"data":{"employees":120}}`), nil
	}}
	gw, _ := newTestGateway(client)

	handle, _, err := gw.Enrich(context.Background(), parallel.EnrichRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, model.TaskKindSynchronous, handle.Kind)
	assert.Empty(t, handle.ID)
	assert.JSONEq(t, `{"employees":120}`, string(handle.Inline))
}

func TestEnrich_AsyncReturnsRunHandle(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		return []byte(`{"run_id":"run-en"}`), nil
	}}
	gw, _ := newTestGateway(client)

	handle, _, err := gw.Enrich(context.Background(), parallel.EnrichRequest{CompanyName: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, "run-en", handle.ID)
	assert.Equal(t, model.TaskKindSimpleStatus, handle.Kind)
}

func TestPollStatus_DualFlag(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		assert.Equal(t, "/v1/findall/fa-1", path)
		return []byte(`{"findall_id":"fa-1","is_active_generation":true,"are_enrichments_active":false,"results":[{"name":"Rival"}]}`), nil
	}}
	gw, _ := newTestGateway(client)

	snap, _, err := gw.PollStatus(context.Background(), model.TaskHandle{ID: "fa-1", Kind: model.TaskKindDualFlag})
	require.NoError(t, err)

	assert.True(t, snap.ActiveGeneration)
	assert.False(t, snap.ActiveEnrichment)
	assert.Contains(t, string(snap.Raw), "Rival")
}

func TestFetchResult(t *testing.T) {
	client := &fakeClient{doFunc: func(ctx context.Context, method, path string, body any) ([]byte, error) {
		assert.Equal(t, "/v1/tasks/runs/run-1/result", path)
		return []byte(`{"summary":"done"}`), nil
	}}
	gw, _ := newTestGateway(client)

	raw, meta, err := gw.FetchResult(context.Background(), model.TaskHandle{ID: "run-1", Kind: model.TaskKindSimpleStatus})
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"done"}`, string(raw))
	assert.InDelta(t, 0, meta.CostEstimate, 1e-9)
}
