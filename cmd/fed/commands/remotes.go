package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfed/openfed/pkg/config"
)

func newRemotesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remotes",
		Short: "Manage remote registrations",
	}

	cmd.AddCommand(newRemotesListCommand())
	cmd.AddCommand(newRemotesEvalCommand())

	return cmd
}

func newRemotesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List remotes from the host configuration",
		Example: `  # List configured remotes
  fed remotes list

  # List as JSON
  fed remotes list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}

			remotes := append([]config.RemoteConfig(nil), cfg.Remotes...)
			sort.Slice(remotes, func(i, j int) bool { return remotes[i].Name < remotes[j].Name })

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(remotes)
			}

			if len(remotes) == 0 {
				fmt.Println("No remotes configured")
				return nil
			}

			for _, remote := range remotes {
				line := fmt.Sprintf("%-20s %s", remote.Name, remote.Location)
				if len(remote.Labels) > 0 {
					pairs := make([]string, 0, len(remote.Labels))
					for k, v := range remote.Labels {
						pairs = append(pairs, k+"="+v)
					}
					sort.Strings(pairs)
					line += "  [" + strings.Join(pairs, ",") + "]"
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newRemotesEvalCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "eval <script.star>",
		Short: "Generate remotes from a Starlark script",
		Long: `Evaluate a Starlark script that produces remote registrations.

The script runs sandboxed with the host's variables as input and must
set a top-level "remotes" list of dicts with name, location, and
optional labels. The resulting remotes are printed, not registered;
use the script as a config source under serve for live registration.`,
		Example: `  # Generate per-tenant remotes
  fed remotes eval tenants.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, parser, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			script, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}

			remotes, err := parser.EvaluateStarlarkRemotes(ctx, string(script), cfg.Variables)
			if err != nil {
				return err
			}

			log.Debug().Int("count", len(remotes)).Msg("script produced remotes")

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(remotes)
			}

			for _, remote := range remotes {
				fmt.Printf("%-20s %s\n", remote.Name, remote.Location)
			}
			return nil
		},
	}
}
