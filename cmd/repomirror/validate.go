package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mirrorlabs.io/repomirror/pkg/config"
	"mirrorlabs.io/repomirror/pkg/runner"
)

func newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a job configuration file without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				exitCode = runner.ExitInvalidConfig
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Valid config: %s (%d job(s))\n", configPath, len(cfg.Jobs))
			for _, job := range cfg.Jobs {
				fmt.Fprintf(out, "  - job=%s sources=%d fallbackTarget=%s createTargetDirsIfMissing=%t\n",
					job.Name, len(job.Sources), job.FallbackTarget, job.CreateTargetDirsIfMissing)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the job configuration file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
