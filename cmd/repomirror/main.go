// Command repomirror mirrors configured source directories into destination
// directories, honoring gitignore-style exclusion rules.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"mirrorlabs.io/repomirror/pkg/plog"
	"mirrorlabs.io/repomirror/pkg/runner"
)

// version is injected at build time via -ldflags.
var version = "dev"

// exitCode is set by commands that map their outcome onto specific process
// exit codes. main applies it after cobra finishes.
var exitCode = runner.ExitOK

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if exitCode == runner.ExitOK {
			exitCode = runner.ExitRuntimeError
		}
	}
	os.Exit(exitCode)
}

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "repomirror",
		Short:         "One-way directory mirroring with gitignore-aware exclusions",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			plog.SetLevel(plog.LevelFromString(logLevel))
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"minimum log level (debug, notice, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newListCmd(),
		newAgentCmd(),
		newVersionCmd(),
	)
	return cmd
}
