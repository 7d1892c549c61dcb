package pipeline

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/events"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/internal/store"
)

// phaseRange is a phase's slice of the global 0-100 progress scale.
type phaseRange struct {
	start, end int
}

var phaseOrder = []model.Phase{
	model.PhaseExtract,
	model.PhaseResearch,
	model.PhaseDiscover,
	model.PhaseCompetitors,
	model.PhaseEnrich,
	model.PhaseSynthesize,
}

var phaseRanges = map[model.Phase]phaseRange{
	model.PhaseExtract:     {0, 15},
	model.PhaseResearch:    {15, 40},
	model.PhaseDiscover:    {40, 55},
	model.PhaseCompetitors: {55, 80},
	model.PhaseEnrich:      {80, 90},
	model.PhaseSynthesize:  {90, 100},
}

// progressTracker writes monotonic progress updates for one job. Progress
// write failures are logged and swallowed; a stale progress value must not
// kill a run that is otherwise fine.
type progressTracker struct {
	jobID string
	store store.Store
	bus   events.Bus
	last  int
}

// step records fractional completion f within the phase's sub-range,
// updating the job's progress and current-step label.
func (t *progressTracker) step(ctx context.Context, phase model.Phase, label string, f float64) {
	r := phaseRanges[phase]
	value := int(math.Round(float64(r.start) + float64(r.end-r.start)*f))
	if value < t.last {
		value = t.last
	}
	t.last = value

	if err := t.store.UpdateJob(ctx, t.jobID, model.JobUpdate{
		Progress:    &value,
		CurrentStep: &label,
	}); err != nil {
		zap.L().Warn("progress update failed",
			zap.String("job_id", t.jobID),
			zap.Error(err))
		return
	}

	t.bus.Publish(events.TopicJobProgress, map[string]any{
		"job_id":   t.jobID,
		"phase":    string(phase),
		"step":     label,
		"progress": value,
	})
}
