package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/analysis-engine/internal/model"
	"github.com/sells-group/analysis-engine/internal/store"
)

var (
	jobsStatus  string
	jobsCompany string
	jobsLimit   int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect analysis job records",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Status:      model.JobStatus(jobsStatus),
			CompanyName: jobsCompany,
			Limit:       jobsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one analysis job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get job %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending, processing, completed, failed)")
	jobsListCmd.Flags().StringVar(&jobsCompany, "company", "", "filter by company name")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 50, "max jobs to list")
	jobsCmd.AddCommand(jobsListCmd, jobsGetCmd)
	rootCmd.AddCommand(jobsCmd)
}
