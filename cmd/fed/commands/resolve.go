package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newResolveCommand() *cobra.Command {
	var (
		fn    string
		input string
	)

	cmd := &cobra.Command{
		Use:   "resolve <remote> <export>",
		Short: "Resolve a module from a remote container",
		Long: `Resolve an exported module from a remote container.

The remote's artifact is fetched and loaded on first use, its shared
dependencies are negotiated against the host registry, and the
requested export is looked up in the loaded container. With --fn the
resolved module is also invoked and its output printed.`,
		Example: `  # Resolve the render export of the checkout remote
  fed resolve checkout render

  # Resolve and invoke a function with a JSON payload
  fed resolve checkout render --fn renderCart --input '{"items":3}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, export := args[0], args[1]
			ctx := cmd.Context()

			cfg, parser, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			rt, err := buildRuntime(ctx, cfg, parser, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.Close(ctx); cerr != nil {
					log.Warn().Err(cerr).Msg("telemetry shutdown failed")
				}
			}()

			module, err := rt.host.ResolveModule(ctx, remote, export)
			if err != nil {
				return err
			}

			if fn == "" {
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(map[string]string{
						"module":    module.Name(),
						"container": module.Container(),
					})
				}
				fmt.Printf("Resolved %s from container %s\n", module.Name(), module.Container())
				return nil
			}

			output, err := module.Invoke(ctx, fn, []byte(input))
			if err != nil {
				return err
			}

			fmt.Println(string(output))
			return nil
		},
	}

	cmd.Flags().StringVar(&fn, "fn", "", "function to invoke on the resolved module")
	cmd.Flags().StringVar(&input, "input", "", "JSON payload passed to --fn")

	return cmd
}
