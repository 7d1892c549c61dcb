package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// artifactWebsiteContent holds the extracted website text.
const artifactWebsiteContent = "website_content"

// runExtract pulls the target company's website content through the
// extraction endpoint.
func (p *Pipeline) runExtract(ctx context.Context, r *run) error {
	r.tracker.step(ctx, model.PhaseExtract, "starting website extraction", 0.1)

	handle, meta, err := p.gw.Extract(ctx, parallel.ExtractRequest{
		URL:     r.job.Request.Website,
		Formats: []string{"markdown"},
	})
	p.charge(ctx, r, meta)
	if err != nil {
		return eris.Wrap(err, "extract: start")
	}

	r.tracker.step(ctx, model.PhaseExtract, "waiting for website extraction", 0.4)
	raw, err := p.waiter.Await(ctx, handle)
	if err != nil {
		return eris.Wrap(err, "extract: await")
	}

	if err := p.saveArtifact(ctx, r, artifactWebsiteContent, decodeArtifact(raw)); err != nil {
		return err
	}
	r.tracker.step(ctx, model.PhaseExtract, "website extraction done", 1)
	return nil
}
