package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// artifactEnrichment holds the firmographic enrichment data.
const artifactEnrichment = "enrichment"

// runEnrich looks up firmographic fields for the target company. Small
// lookups resolve inline; the waiter handles either shape.
func (p *Pipeline) runEnrich(ctx context.Context, r *run) error {
	r.tracker.step(ctx, model.PhaseEnrich, "starting enrichment", 0.1)

	handle, meta, err := p.gw.Enrich(ctx, parallel.EnrichRequest{
		CompanyName: r.job.Request.CompanyName,
		Website:     r.job.Request.Website,
		Fields:      []string{"employee_count", "revenue_range", "industry", "founded_year", "headquarters"},
	})
	p.charge(ctx, r, meta)
	if err != nil {
		return eris.Wrap(err, "enrich: start")
	}

	r.tracker.step(ctx, model.PhaseEnrich, "waiting for enrichment", 0.4)
	raw, err := p.waiter.Await(ctx, handle)
	if err != nil {
		return eris.Wrap(err, "enrich: await")
	}

	if err := p.saveArtifact(ctx, r, artifactEnrichment, decodeArtifact(raw)); err != nil {
		return err
	}
	r.tracker.step(ctx, model.PhaseEnrich, "enrichment done", 1)
	return nil
}
