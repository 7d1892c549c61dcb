package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/model"
)

var (
	runName      string
	runWebsite   string
	runProcessor string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an analysis for a single company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Store.CreateJob(ctx, model.AnalysisRequest{
			CompanyName: runName,
			Website:     runWebsite,
			Processor:   runProcessor,
		})
		if err != nil {
			return eris.Wrap(err, "create job")
		}

		if err := env.Pipeline.ProcessAnalysis(ctx, job.ID); err != nil {
			return eris.Wrap(err, "process analysis")
		}

		final, err := env.Store.GetJob(ctx, job.ID)
		if err != nil {
			return eris.Wrap(err, "load finished job")
		}

		zap.L().Info("analysis complete",
			zap.String("job_id", final.ID),
			zap.Float64("total_cost", final.TotalCost),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "company name (required)")
	runCmd.Flags().StringVar(&runWebsite, "website", "", "company website URL (required)")
	runCmd.Flags().StringVar(&runProcessor, "processor", "", "research depth tier (default from config)")
	_ = runCmd.MarkFlagRequired("name")
	_ = runCmd.MarkFlagRequired("website")
	rootCmd.AddCommand(runCmd)
}
