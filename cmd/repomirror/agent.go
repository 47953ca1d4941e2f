package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mirrorlabs.io/repomirror/pkg/config"
	"mirrorlabs.io/repomirror/pkg/plog"
	"mirrorlabs.io/repomirror/pkg/runner"
	"mirrorlabs.io/repomirror/pkg/scheduler"
	"mirrorlabs.io/repomirror/pkg/settings"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage the background mirror agent",
	}
	cmd.AddCommand(
		newAgentConfigureCmd(),
		newAgentStatusCmd(),
		newAgentRunCmd(),
	)
	return cmd
}

func newAgentConfigureCmd() *cobra.Command {
	var (
		configPath      string
		enable          bool
		disable         bool
		intervalMinutes int
		jobFilter       string
		sourceFilter    string
		dryRun          bool
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Persist the agent's run parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return fmt.Errorf("--enable and --disable are mutually exclusive")
			}

			s, err := settings.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("config") {
				// Reject unloadable documents now rather than on the next tick.
				if _, err := config.Load(configPath); err != nil {
					exitCode = runner.ExitInvalidConfig
					return err
				}
				s.ConfigPath = configPath
			}
			if enable {
				s.ScheduleEnabled = true
			}
			if disable {
				s.ScheduleEnabled = false
			}
			if cmd.Flags().Changed("interval") {
				s.ScheduleMinutes = intervalMinutes
			}
			if cmd.Flags().Changed("job") {
				s.JobFilter = jobFilter
			}
			if cmd.Flags().Changed("source") {
				s.SourceFilter = sourceFilter
			}
			if cmd.Flags().Changed("dry-run") {
				s.DryRun = dryRun
			}
			if cmd.Flags().Changed("continue-on-error") {
				s.ContinueOnError = continueOnError
			}

			if err := settings.Save(s); err != nil {
				return err
			}
			plog.Info("Agent settings saved",
				"enabled", s.ScheduleEnabled, "intervalMinutes", s.Normalized().ScheduleMinutes)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the job configuration file")
	cmd.Flags().BoolVar(&enable, "enable", false, "enable the periodic schedule")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable the periodic schedule")
	cmd.Flags().IntVar(&intervalMinutes, "interval", settings.DefaultScheduleMinutes, "minutes between scheduled runs")
	cmd.Flags().StringVar(&jobFilter, "job", "", "restrict scheduled runs to one job")
	cmd.Flags().StringVar(&sourceFilter, "source", "", "restrict scheduled runs to matching sources")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "make scheduled runs report-only")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep scheduled runs going past per-file failures")
	return cmd
}

func newAgentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the persisted agent settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newAgentRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings.Load()
			if err != nil {
				return err
			}
			if s.ConfigPath == "" {
				return fmt.Errorf("no config path set; run 'repomirror agent configure --config <path>' first")
			}
			if !s.ScheduleEnabled {
				return fmt.Errorf("schedule is disabled; run 'repomirror agent configure --enable' first")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			interval := time.Duration(s.Normalized().ScheduleMinutes) * time.Minute
			sched := scheduler.New(interval, func(ctx context.Context) {
				cfg, err := config.Load(s.ConfigPath)
				if err != nil {
					plog.Error("Failed to load config, skipping run", "path", s.ConfigPath, "error", err)
					return
				}
				summary, err := runner.Run(ctx, runner.Params{
					Config:          cfg,
					JobFilter:       s.JobFilter,
					SourceFilter:    s.SourceFilter,
					DryRun:          s.DryRun,
					ContinueOnError: s.ContinueOnError,
				})
				if err != nil {
					plog.Error("Scheduled run failed", "error", err)
					return
				}
				plog.Info("Scheduled run complete",
					"pairs", summary.Pairs, "pairsFailed", summary.PairsFailed,
					"copied", summary.Stats.Copied, "skipped", summary.Stats.Skipped,
					"deleted", summary.Stats.Deleted, "failed", summary.Stats.Failed)
			})
			sched.Start(ctx)
			return nil
		},
	}
}
