package waiter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/analysis-engine/internal/gateway"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// mockGateway implements gateway.Gateway with overridable functions.
type mockGateway struct {
	pollStatusFunc  func(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error)
	fetchResultFunc func(ctx context.Context, handle model.TaskHandle) (json.RawMessage, *gateway.CallMeta, error)

	polls   int
	fetches int
}

func (m *mockGateway) Call(ctx context.Context, spec gateway.CallSpec, out any) (*gateway.CallMeta, error) {
	return &gateway.CallMeta{}, nil
}

func (m *mockGateway) Extract(ctx context.Context, req parallel.ExtractRequest) (model.TaskHandle, *gateway.CallMeta, error) {
	return model.TaskHandle{}, nil, errors.New("not implemented")
}

func (m *mockGateway) DeepResearch(ctx context.Context, input, processor string) (model.TaskHandle, *gateway.CallMeta, error) {
	return model.TaskHandle{}, nil, errors.New("not implemented")
}

func (m *mockGateway) DiscoverEntities(ctx context.Context, req parallel.FindAllRequest) (model.TaskHandle, *gateway.CallMeta, error) {
	return model.TaskHandle{}, nil, errors.New("not implemented")
}

func (m *mockGateway) Enrich(ctx context.Context, req parallel.EnrichRequest) (model.TaskHandle, *gateway.CallMeta, error) {
	return model.TaskHandle{}, nil, errors.New("not implemented")
}

func (m *mockGateway) PollStatus(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error) {
	m.polls++
	return m.pollStatusFunc(ctx, handle)
}

func (m *mockGateway) FetchResult(ctx context.Context, handle model.TaskHandle) (json.RawMessage, *gateway.CallMeta, error) {
	m.fetches++
	if m.fetchResultFunc == nil {
		return nil, nil, errors.New("unexpected FetchResult")
	}
	return m.fetchResultFunc(ctx, handle)
}

func newTestWaiter(gw gateway.Gateway) *Waiter {
	return New(gw, WithPollInterval(time.Millisecond), WithBudget(time.Minute))
}

func TestAwait_SynchronousResolvesInline(t *testing.T) {
	gw := &mockGateway{}
	w := newTestWaiter(gw)

	handle := model.TaskHandle{
		Kind:   model.TaskKindSynchronous,
		Inline: json.RawMessage(`{"employees":120}`),
	}
	result, err := w.Await(context.Background(), handle)
	require.NoError(t, err)

	assert.JSONEq(t, `{"employees":120}`, string(result))
	assert.Zero(t, gw.polls)
}

func TestAwait_SimpleStatusCompletes(t *testing.T) {
	statuses := []string{parallel.RunStatusQueued, parallel.RunStatusRunning, parallel.RunStatusCompleted}
	gw := &mockGateway{}
	gw.pollStatusFunc = func(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error) {
		return &gateway.StatusSnapshot{Status: statuses[gw.polls-1]}, &gateway.CallMeta{}, nil
	}
	gw.fetchResultFunc = func(ctx context.Context, handle model.TaskHandle) (json.RawMessage, *gateway.CallMeta, error) {
		return json.RawMessage(`{"summary":"done"}`), &gateway.CallMeta{}, nil
	}
	w := newTestWaiter(gw)

	result, err := w.Await(context.Background(), model.TaskHandle{ID: "run-1", Kind: model.TaskKindSimpleStatus})
	require.NoError(t, err)

	assert.JSONEq(t, `{"summary":"done"}`, string(result))
	assert.Equal(t, 3, gw.polls)
	assert.Equal(t, 1, gw.fetches)
}

func TestAwait_SimpleStatusFailure(t *testing.T) {
	statuses := []string{parallel.RunStatusQueued, parallel.RunStatusRunning, parallel.RunStatusFailed}
	gw := &mockGateway{}
	gw.pollStatusFunc = func(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error) {
		return &gateway.StatusSnapshot{Status: statuses[gw.polls-1], Error: "processor crashed"}, &gateway.CallMeta{}, nil
	}
	w := newTestWaiter(gw)

	_, err := w.Await(context.Background(), model.TaskHandle{ID: "run-1", Kind: model.TaskKindSimpleStatus})
	require.Error(t, err)

	var failed *TaskFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "run-1", failed.Handle.ID)
	assert.Contains(t, failed.Error(), "processor crashed")
	assert.Equal(t, 3, gw.polls)
	assert.Zero(t, gw.fetches)
}

func TestAwait_DualFlagWaitsForBothFlags(t *testing.T) {
	flags := []struct{ gen, enrich bool }{
		{true, true},
		{true, false},
		{false, false},
	}
	gw := &mockGateway{}
	gw.pollStatusFunc = func(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error) {
		f := flags[gw.polls-1]
		return &gateway.StatusSnapshot{
			ActiveGeneration: f.gen,
			ActiveEnrichment: f.enrich,
			Raw:              json.RawMessage(`{"results":[{"name":"Rival"}]}`),
		}, &gateway.CallMeta{}, nil
	}
	w := newTestWaiter(gw)

	result, err := w.Await(context.Background(), model.TaskHandle{ID: "fa-1", Kind: model.TaskKindDualFlag})
	require.NoError(t, err)

	assert.Contains(t, string(result), "Rival")
	assert.Equal(t, 3, gw.polls)
	assert.Zero(t, gw.fetches, "dual-flag results come from the status payload")
}

func TestAwait_TransientPollErrorsRetried(t *testing.T) {
	gw := &mockGateway{}
	gw.pollStatusFunc = func(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error) {
		if gw.polls < 3 {
			return nil, nil, errors.New("connection reset")
		}
		return &gateway.StatusSnapshot{Status: parallel.RunStatusCompleted}, &gateway.CallMeta{}, nil
	}
	gw.fetchResultFunc = func(ctx context.Context, handle model.TaskHandle) (json.RawMessage, *gateway.CallMeta, error) {
		return json.RawMessage(`{}`), &gateway.CallMeta{}, nil
	}
	w := newTestWaiter(gw)

	_, err := w.Await(context.Background(), model.TaskHandle{ID: "run-1", Kind: model.TaskKindSimpleStatus})
	require.NoError(t, err)
	assert.Equal(t, 3, gw.polls)
}

func TestAwait_BudgetExceeded(t *testing.T) {
	gw := &mockGateway{}
	gw.pollStatusFunc = func(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error) {
		return &gateway.StatusSnapshot{Status: parallel.RunStatusRunning}, &gateway.CallMeta{}, nil
	}
	w := New(gw, WithPollInterval(time.Millisecond), WithBudget(5*time.Millisecond))

	_, err := w.Await(context.Background(), model.TaskHandle{ID: "run-1", Kind: model.TaskKindSimpleStatus})
	require.Error(t, err)

	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "run-1", timeout.Handle.ID)
	assert.GreaterOrEqual(t, gw.polls, 1)
}

func TestAwait_ContextCanceled(t *testing.T) {
	gw := &mockGateway{}
	gw.pollStatusFunc = func(ctx context.Context, handle model.TaskHandle) (*gateway.StatusSnapshot, *gateway.CallMeta, error) {
		return &gateway.StatusSnapshot{Status: parallel.RunStatusRunning}, &gateway.CallMeta{}, nil
	}
	w := New(gw, WithPollInterval(50*time.Millisecond), WithBudget(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := w.Await(ctx, model.TaskHandle{ID: "run-1", Kind: model.TaskKindSimpleStatus})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
