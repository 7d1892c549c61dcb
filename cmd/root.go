package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "analysis-engine",
	Short: "Sales research analysis pipeline",
	Long:  "Runs multi-phase company analyses: website extraction, deep research, competitor discovery and deep-dives, firmographic enrichment, and report synthesis.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
