package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/internal/store"
)

var (
	batchFile        string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run analyses for a list of companies from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		requests, err := loadBatchFile(batchFile)
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentJobs
		}

		return processBatch(ctx, env.Store, requests, concurrency, env.Pipeline.ProcessAnalysis)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "JSON file with an array of {company_name, website} entries (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max concurrent analyses (default from config)")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

func loadBatchFile(path string) ([]model.AnalysisRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read batch file %s", path)
	}
	var requests []model.AnalysisRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, eris.Wrap(err, "parse batch file")
	}
	return requests, nil
}

// analyzeFunc is the callback signature for running one analysis job.
type analyzeFunc func(ctx context.Context, jobID string) error

// processBatch creates a job per request and runs them concurrently up to
// the given limit. Individual failures are logged and counted; they do not
// abort the batch.
func processBatch(ctx context.Context, st store.Store, requests []model.AnalysisRequest, concurrency int, analyze analyzeFunc) error {
	if len(requests) == 0 {
		zap.L().Info("batch file has no entries")
		return nil
	}

	zap.L().Info("processing batch",
		zap.Int("companies", len(requests)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, req := range requests {
		g.Go(func() error {
			log := zap.L().With(zap.String("company", req.CompanyName))

			job, err := st.CreateJob(gctx, req)
			if err != nil {
				failed.Add(1)
				log.Error("job creation failed", zap.Error(err))
				return nil
			}

			if err := analyze(gctx, job.ID); err != nil {
				failed.Add(1)
				log.Error("analysis failed", zap.String("job_id", job.ID), zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("analysis complete", zap.String("job_id", job.ID))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
