package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfed/openfed/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate CUE host configuration",
		Long: `Validate CUE host configuration files.

This command checks:
  - CUE syntax validity
  - Host schema conformance
  - Remote name and location constraints
  - Policy and store settings`,
		Example: `  # Validate configs in current directory
  fed validate

  # Validate specific files
  fed validate host.cue remotes.cue

  # Validate a directory with JSON output
  fed validate --json ./configs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := configSources
			if len(args) > 0 {
				sources = args
			}

			log.Debug().Strs("sources", sources).Msg("validating configuration")

			parser := config.NewCUEParser()

			parsed, err := parser.Parse(cmd.Context(), sources)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(parsed)
			}

			if len(parsed.Errors) > 0 {
				for _, verr := range parsed.Errors {
					fmt.Printf("%s\n", verr.Error())
				}
				return fmt.Errorf("configuration invalid: %d error(s)", len(parsed.Errors))
			}

			fmt.Printf("Configuration valid: host %s with %d remote(s)\n",
				parsed.Host.Name, len(parsed.Host.Remotes))
			return nil
		},
	}

	return cmd
}
