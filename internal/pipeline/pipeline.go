// Package pipeline drives an analysis job through its fixed phase sequence,
// persisting artifacts and progress as it goes.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/config"
	"github.com/sells-group/analysis-engine/internal/cost"
	"github.com/sells-group/analysis-engine/internal/events"
	"github.com/sells-group/analysis-engine/internal/gateway"
	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/internal/store"
	"github.com/sells-group/analysis-engine/internal/waiter"
	"github.com/sells-group/analysis-engine/pkg/anthropic"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// Pipeline orchestrates the six analysis phases for a job.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	gw        gateway.Gateway
	waiter    *waiter.Waiter
	anthropic anthropic.Client
	ledger    *cost.Ledger
	calc      *cost.Calculator
	bus       events.Bus
}

// New creates a Pipeline with all dependencies.
func New(
	cfg *config.Config,
	st store.Store,
	gw gateway.Gateway,
	w *waiter.Waiter,
	aiClient anthropic.Client,
	ledger *cost.Ledger,
	bus events.Bus,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		gw:        gw,
		waiter:    w,
		anthropic: aiClient,
		ledger:    ledger,
		calc:      cost.NewCalculator(cost.DefaultModelRates()),
		bus:       bus,
	}
}

// run carries the mutable state of one job execution. A job is owned by
// exactly one run at a time; nothing else writes its record.
type run struct {
	job       *model.AnalysisJob
	tracker   *progressTracker
	artifacts map[string]any
	total     float64

	// competitor targets handed from the discover phase to the deep-dive
	// phase without a round-trip through the artifact store
	competitors []parallel.FindAllResult
}

// ProcessAnalysis executes the analysis pipeline for a Pending job. The
// job must exist and be Pending; guarding against duplicate invocation is
// the trigger's responsibility. The job ends Completed or Failed.
func (p *Pipeline) ProcessAnalysis(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return eris.Wrapf(err, "pipeline: load job %s", jobID)
	}
	if job.Status != model.JobStatusPending {
		return eris.Errorf("pipeline: job %s is %s, want pending", jobID, job.Status)
	}

	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("company", job.Request.CompanyName))
	log.Info("analysis starting")

	started := time.Now().UTC()
	processing := model.JobStatusProcessing
	if err := p.store.UpdateJob(ctx, job.ID, model.JobUpdate{
		Status:    &processing,
		StartedAt: &started,
	}); err != nil {
		return eris.Wrapf(err, "pipeline: mark job %s processing", jobID)
	}
	p.bus.Publish(events.TopicJobStarted, map[string]any{
		"job_id":  job.ID,
		"company": job.Request.CompanyName,
	})

	r := &run{
		job:       job,
		tracker:   &progressTracker{jobID: job.ID, store: p.store, bus: p.bus},
		artifacts: map[string]any{},
	}

	phases := map[model.Phase]func(context.Context, *run) error{
		model.PhaseExtract:     p.runExtract,
		model.PhaseResearch:    p.runResearch,
		model.PhaseDiscover:    p.runDiscover,
		model.PhaseCompetitors: p.runCompetitors,
		model.PhaseEnrich:      p.runEnrich,
		model.PhaseSynthesize:  p.runSynthesize,
	}

	for _, phase := range phaseOrder {
		if err := p.startPhase(ctx, r, phase); err != nil {
			return p.fail(ctx, r, phase, err)
		}
		log.Info("phase starting", zap.String("phase", string(phase)))

		start := time.Now()
		if err := phases[phase](ctx, r); err != nil {
			log.Error("phase failed",
				zap.String("phase", string(phase)),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
			return p.fail(ctx, r, phase, err)
		}

		log.Info("phase finished",
			zap.String("phase", string(phase)),
			zap.Duration("duration", time.Since(start)),
			zap.Float64("total_cost", r.total))
		p.bus.Publish(events.TopicPhaseFinished, map[string]any{
			"job_id": job.ID,
			"phase":  string(phase),
		})
	}

	completed := model.JobStatusCompleted
	finished := time.Now().UTC()
	final := 100
	if err := p.store.UpdateJob(ctx, job.ID, model.JobUpdate{
		Status:      &completed,
		Progress:    &final,
		TotalCost:   &r.total,
		CompletedAt: &finished,
	}); err != nil {
		return eris.Wrapf(err, "pipeline: mark job %s completed", jobID)
	}
	p.bus.Publish(events.TopicJobCompleted, map[string]any{
		"job_id":     job.ID,
		"total_cost": r.total,
	})
	log.Info("analysis completed", zap.Float64("total_cost", r.total))
	return nil
}

func (p *Pipeline) startPhase(ctx context.Context, r *run, phase model.Phase) error {
	if err := p.store.UpdateJob(ctx, r.job.ID, model.JobUpdate{
		CurrentPhase: &phase,
	}); err != nil {
		return eris.Wrapf(err, "pipeline: set phase %s", phase)
	}
	p.bus.Publish(events.TopicPhaseStarted, map[string]any{
		"job_id": r.job.ID,
		"phase":  string(phase),
	})
	return nil
}

// charge adds gateway call estimates to the running total and writes it
// through, so a failed run still shows the cost incurred so far.
func (p *Pipeline) charge(ctx context.Context, r *run, metas ...*gateway.CallMeta) {
	for _, meta := range metas {
		if meta != nil {
			r.total += meta.CostEstimate
		}
	}
	if err := p.store.UpdateJob(ctx, r.job.ID, model.JobUpdate{
		TotalCost: &r.total,
	}); err != nil {
		zap.L().Warn("cost update failed",
			zap.String("job_id", r.job.ID),
			zap.Error(err))
	}
}

// saveArtifact persists one phase output. Artifact writes are load-bearing:
// a failure here fails the phase.
func (p *Pipeline) saveArtifact(ctx context.Context, r *run, key string, value any) error {
	r.artifacts[key] = value
	if err := p.store.UpdateJob(ctx, r.job.ID, model.JobUpdate{
		Artifact: &model.ArtifactUpdate{Key: key, Value: value},
	}); err != nil {
		return eris.Wrapf(err, "pipeline: persist artifact %s", key)
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, r *run, phase model.Phase, cause error) error {
	failed := model.JobStatusFailed
	now := time.Now().UTC()
	update := model.JobUpdate{
		Status:      &failed,
		TotalCost:   &r.total,
		CompletedAt: &now,
		Error: &model.ErrorRecord{
			Message:    cause.Error(),
			Trace:      eris.ToString(cause, true),
			OccurredAt: now,
		},
	}
	if err := p.store.UpdateJob(ctx, r.job.ID, update); err != nil {
		zap.L().Error("failed to record job failure",
			zap.String("job_id", r.job.ID),
			zap.Error(err))
	}
	p.bus.Publish(events.TopicJobFailed, map[string]any{
		"job_id": r.job.ID,
		"phase":  string(phase),
		"error":  cause.Error(),
	})
	return eris.Wrapf(cause, "pipeline: job %s failed in phase %s", r.job.ID, phase)
}

// decodeArtifact turns a raw task result into a storable value. Bodies that
// are not valid JSON are kept as plain text.
func decodeArtifact(raw json.RawMessage) any {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}
