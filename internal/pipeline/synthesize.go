package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analysis-engine/internal/cost"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/pkg/anthropic"
)

// artifactReport holds the synthesized analysis report.
const artifactReport = "report"

const synthesisSystemPrompt = `You are a sales research analyst. Given raw ` +
	`research artifacts about a company (website content, deep research, ` +
	`competitor analysis, firmographics), write a concise prospecting report: ` +
	`company overview, competitive landscape, buying signals, and suggested ` +
	`outreach angles. Use only the provided material.`

// runSynthesize turns the accumulated artifacts into the final report.
// Token cost comes from the calculator rather than the per-call tariff.
func (p *Pipeline) runSynthesize(ctx context.Context, r *run) error {
	r.tracker.step(ctx, model.PhaseSynthesize, "synthesizing report", 0.1)

	material, err := json.MarshalIndent(r.artifacts, "", "  ")
	if err != nil {
		return eris.Wrap(err, "synthesize: marshal artifacts")
	}

	resp, err := p.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.cfg.Anthropic.Model,
		MaxTokens: int64(p.cfg.Anthropic.MaxTokens),
		System:    anthropic.BuildCachedSystemBlocks(synthesisSystemPrompt),
		Messages: []anthropic.Message{{
			Role: "user",
			Content: fmt.Sprintf("Research artifacts for %s:\n\n%s",
				r.job.Request.CompanyName, material),
		}},
	})
	if err != nil {
		return eris.Wrap(err, "synthesize: create message")
	}

	usage := resp.Usage
	spent := p.calc.Synthesis(p.cfg.Anthropic.Model,
		usage.InputTokens, usage.OutputTokens,
		usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
	p.ledger.Record(cost.CategorySynthesis, spent, r.job.ID)
	r.total += spent
	if err := p.store.UpdateJob(ctx, r.job.ID, model.JobUpdate{TotalCost: &r.total}); err != nil {
		return eris.Wrap(err, "synthesize: update cost")
	}

	r.tracker.step(ctx, model.PhaseSynthesize, "saving report", 0.9)
	if err := p.saveArtifact(ctx, r, artifactReport, resp.Text()); err != nil {
		return err
	}
	r.tracker.step(ctx, model.PhaseSynthesize, "report ready", 1)
	return nil
}
