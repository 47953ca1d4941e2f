package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mirrorlabs.io/repomirror/pkg/config"
	"mirrorlabs.io/repomirror/pkg/runner"
)

func newListCmd() *cobra.Command {
	var (
		configPath   string
		jobFilter    string
		sourceFilter string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured jobs, sources and resolved destinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				exitCode = runner.ExitInvalidConfig
				return err
			}
			jobs, err := config.SelectJobs(cfg, jobFilter)
			if err != nil {
				exitCode = runner.ExitInvalidConfig
				return err
			}

			out := cmd.OutOrStdout()
			partial := false
			for _, job := range jobs {
				sources, err := config.SelectSources(job, sourceFilter)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %v\n", job.Name, err)
					partial = true
					continue
				}
				fmt.Fprintf(out, "job: %s (compare: %s, delete extraneous: %t)\n",
					job.Name, job.CompareBy, job.DeleteExtraneous)
				for _, src := range sources {
					dst, err := config.ResolveTarget(job, src)
					if err != nil {
						fmt.Fprintf(out, "  - %s -> ERROR: %v\n", src.Source, err)
						continue
					}
					marker := "fallback"
					if src.Target != "" {
						marker = "explicit"
					}
					fmt.Fprintf(out, "  - %s -> %s (%s)\n", src.Source, dst, marker)
				}
			}
			if partial {
				exitCode = runner.ExitPartialFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the job configuration file (required)")
	cmd.Flags().StringVar(&jobFilter, "job", "", "list only the job with this name")
	cmd.Flags().StringVar(&sourceFilter, "source", "", "list only sources matching this path, basename or glob")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
