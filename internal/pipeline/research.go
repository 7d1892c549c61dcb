package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analysis-engine/internal/model"
)

// artifactCompanyResearch holds the deep research result for the target.
const artifactCompanyResearch = "company_research"

// processorFor resolves the research depth tier, preferring the per-job
// request over the configured default.
func (p *Pipeline) processorFor(r *run) string {
	if r.job.Request.Processor != "" {
		return r.job.Request.Processor
	}
	return p.cfg.Pipeline.Processor
}

// runResearch runs a deep research task on the target company.
func (p *Pipeline) runResearch(ctx context.Context, r *run) error {
	processor := p.processorFor(r)
	r.tracker.step(ctx, model.PhaseResearch, "starting company research", 0.05)

	input := fmt.Sprintf(
		"Research the company %q (%s): business model, products and services, "+
			"target customers, market position, leadership, and recent developments.",
		r.job.Request.CompanyName, r.job.Request.Website)

	handle, meta, err := p.gw.DeepResearch(ctx, input, processor)
	p.charge(ctx, r, meta)
	if err != nil {
		return eris.Wrap(err, "research: start")
	}

	r.tracker.step(ctx, model.PhaseResearch, "waiting for company research", 0.3)
	raw, err := p.waiter.Await(ctx, handle)
	if err != nil {
		return eris.Wrap(err, "research: await")
	}

	if err := p.saveArtifact(ctx, r, artifactCompanyResearch, decodeArtifact(raw)); err != nil {
		return err
	}
	r.tracker.step(ctx, model.PhaseResearch, "company research done", 1)
	return nil
}
