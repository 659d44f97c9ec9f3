// Package commands implements the topolane command-line tree: a thin
// cobra wrapper over internal/config, internal/store, internal/engine,
// internal/governor, internal/reconcile, and internal/monitor.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/topolane/topolane/internal/logging"
)

const Version = "0.1.0"

var (
	configPath    string
	logLevelFlags []string
)

var rootCmd = &cobra.Command{
	Use:     "topolane",
	Short:   "Multi-cloud infrastructure knowledge graph and reconciliation platform",
	Version: Version,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&logLevelFlags, "log-level", []string{"info"},
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(governorCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// HandleError prints msg and err to stderr and exits 1.
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

func setupLog() error {
	defaultLevel, packageLevels := parseLogLevelFlags(logLevelFlags)
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags turns ["debug"] or ["default=info", "engine=debug"]
// into a default level plus per-package overrides.
func parseLogLevelFlags(flags []string) (string, map[string]string) {
	defaultLevel := "info"
	levels := make(map[string]string)
	for _, flag := range flags {
		if flag == "" {
			continue
		}
		parts := splitOnce(flag, '=')
		if len(parts) == 1 {
			defaultLevel = parts[0]
			continue
		}
		levels[parts[0]] = parts[1]
	}
	return defaultLevel, levels
}

func splitOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}
