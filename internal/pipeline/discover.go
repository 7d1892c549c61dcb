package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// artifactCompetitors holds the discovered competitor list.
const artifactCompetitors = "competitors"

// runDiscover finds competitors of the target company via entity discovery.
func (p *Pipeline) runDiscover(ctx context.Context, r *run) error {
	r.tracker.step(ctx, model.PhaseDiscover, "starting competitor discovery", 0.05)

	handle, meta, err := p.gw.DiscoverEntities(ctx, parallel.FindAllRequest{
		Query: fmt.Sprintf("direct competitors of %s (%s)",
			r.job.Request.CompanyName, r.job.Request.Website),
		EntityType: "company",
		Limit:      p.cfg.Pipeline.MaxCompetitors,
	})
	p.charge(ctx, r, meta)
	if err != nil {
		return eris.Wrap(err, "discover: start")
	}

	r.tracker.step(ctx, model.PhaseDiscover, "waiting for competitor discovery", 0.3)
	raw, err := p.waiter.Await(ctx, handle)
	if err != nil {
		return eris.Wrap(err, "discover: await")
	}

	var status parallel.FindAllStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return eris.Wrap(err, "discover: decode results")
	}

	targets := status.Results
	if max := p.cfg.Pipeline.MaxCompetitors; max > 0 && len(targets) > max {
		targets = targets[:max]
	}
	r.competitors = targets
	zap.L().Info("competitors discovered",
		zap.String("job_id", r.job.ID),
		zap.Int("count", len(targets)))

	if err := p.saveArtifact(ctx, r, artifactCompetitors, targets); err != nil {
		return err
	}
	r.tracker.step(ctx, model.PhaseDiscover, "competitor discovery done", 1)
	return nil
}
