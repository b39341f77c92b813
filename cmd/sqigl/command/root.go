// Package command provides sqigl's cobra command tree: project lifecycle
// commands (init, create, feature, build, check, apply, save, release),
// database commands for production rollout (install, apply), and
// migration authoring commands (create, generate).
package command

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqigl/sqigl/internal/config"
	"github.com/sqigl/sqigl/internal/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "sqigl",
	Short: "A version-aware SQL schema migration tool",
	Long: `sqigl builds a project's SQL source tree into a single ordered
script, saves it as a content-addressed migration, and applies or checks
it against Postgres or SQLite with transactional, row-lock-serialized
semantics.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logLevel
		if !cmd.Flags().Changed("log-level") {
			if cfg, err := config.Load(); err == nil {
				level = cfg.LogLevel
			}
		}
		logger.Init(logger.ParseLevel(level))
	},
}

// Execute runs the root command, parsing CLI arguments and dispatching to
// the most specific subcommand.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error, off")
}
