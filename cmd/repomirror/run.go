package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mirrorlabs.io/repomirror/pkg/config"
	"mirrorlabs.io/repomirror/pkg/plog"
	"mirrorlabs.io/repomirror/pkg/runner"
)

func newRunCmd() *cobra.Command {
	var (
		configPath      string
		jobFilter       string
		sourceFilter    string
		dryRun          bool
		continueOnError bool
		parallel        int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Mirror the configured jobs once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(configPath)
			if err != nil {
				exitCode = runner.ExitRuntimeError
				return err
			}

			summary, err := runner.Run(ctx, runner.Params{
				Config:          cfg,
				JobFilter:       jobFilter,
				SourceFilter:    sourceFilter,
				DryRun:          dryRun,
				ContinueOnError: continueOnError,
				Parallel:        parallel,
			})
			if err != nil {
				exitCode = runner.ExitRuntimeError
				return err
			}

			plog.Info("Run complete",
				"pairs", summary.Pairs, "pairsFailed", summary.PairsFailed,
				"copied", summary.Stats.Copied, "skipped", summary.Stats.Skipped,
				"deleted", summary.Stats.Deleted, "failed", summary.Stats.Failed)
			exitCode = summary.ExitCode()
			if exitCode != runner.ExitOK {
				return fmt.Errorf("run finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the job configuration file (required)")
	cmd.Flags().StringVar(&jobFilter, "job", "", "run only the job with this name")
	cmd.Flags().StringVar(&sourceFilter, "source", "", "run only sources matching this path, basename or glob")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "keep going past per-file failures")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "number of (job, source) pairs mirrored concurrently")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
