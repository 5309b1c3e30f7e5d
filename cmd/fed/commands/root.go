package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configSources []string
	verbose       bool
	jsonOutput    bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fed",
		Short: "OpenFed - Runtime Module Federation Host",
		Long: `OpenFed is a host runtime for module federation. It resolves modules
exported by remote containers, loading each remote's artifact lazily
and at most once, and keeps shared dependencies single-instance across
all loaded containers.

Features:
  - Typed host configs via CUE
  - Light procedural remote generation via Starlark
  - WASM container artifacts with sandboxed execution
  - Artifact fetching over HTTP, file and SFTP
  - Policy gating of loaded containers (OPA/rego)
  - Persisted artifact, resolution and event history`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVarP(&configSources, "config", "c", []string{"."}, "CUE config files or directories")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newRemotesCommand())
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newServeCommand(version))

	return rootCmd
}
