package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// artifactCompetitorResearch holds the per-competitor deep-dive results.
const artifactCompetitorResearch = "competitor_research"

// TargetResult is the deep-dive outcome for one competitor. A failed
// target keeps its Error set and Research empty.
type TargetResult struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Research any    `json:"research,omitempty"`
	Error    string `json:"error,omitempty"`
}

// runCompetitors runs a deep research task per discovered competitor,
// strictly serially. A single target's failure is recorded on that target
// and the loop moves on; only the aggregate artifact write can fail the
// phase.
func (p *Pipeline) runCompetitors(ctx context.Context, r *run) error {
	targets := r.competitors
	if len(targets) == 0 {
		r.tracker.step(ctx, model.PhaseCompetitors, "no competitors to research", 1)
		return p.saveArtifact(ctx, r, artifactCompetitorResearch, []TargetResult{})
	}

	results := make([]TargetResult, 0, len(targets))
	for i, target := range targets {
		label := fmt.Sprintf("researching competitor %d/%d: %s", i+1, len(targets), target.Name)
		r.tracker.step(ctx, model.PhaseCompetitors, label, float64(i)/float64(len(targets)))

		results = append(results, p.researchTarget(ctx, r, target))
	}

	if err := p.saveArtifact(ctx, r, artifactCompetitorResearch, results); err != nil {
		return err
	}
	r.tracker.step(ctx, model.PhaseCompetitors, "competitor research done", 1)
	return nil
}

func (p *Pipeline) researchTarget(ctx context.Context, r *run, target parallel.FindAllResult) TargetResult {
	result := TargetResult{Name: target.Name, URL: target.URL}

	input := fmt.Sprintf(
		"Research the company %q as a competitor of %q: overlapping offerings, "+
			"pricing posture, relative strengths and weaknesses.",
		target.Name, r.job.Request.CompanyName)

	// Competitor dives use the base tier regardless of the job's processor;
	// one deep tier per competitor would dominate the run's cost.
	handle, meta, err := p.gw.DeepResearch(ctx, input, parallel.ProcessorBase)
	p.charge(ctx, r, meta)
	if err != nil {
		result.Error = err.Error()
		zap.L().Warn("competitor research start failed",
			zap.String("job_id", r.job.ID),
			zap.String("competitor", target.Name),
			zap.Error(err))
		return result
	}

	raw, err := p.waiter.Await(ctx, handle)
	if err != nil {
		result.Error = err.Error()
		zap.L().Warn("competitor research failed",
			zap.String("job_id", r.job.ID),
			zap.String("competitor", target.Name),
			zap.Error(err))
		return result
	}

	result.Research = decodeArtifact(raw)
	return result
}
