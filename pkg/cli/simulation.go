package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/getmockd/hoverfly-go/pkg/cli/internal/output"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

func newImportCmd(g *globals) *cobra.Command {
	var appendPairs bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Upload a simulation to the proxy",
		Long: `Import decodes a simulation file (JSON, or YAML for .yaml/.yml) and uploads it.
The proxy's simulation is replaced unless --append is given.`,
		Example: `  hoverctl import simulation.json
  hoverctl import extra-pairs.yaml --append`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, cfg, err := g.client(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer client.Close()

			sim, err := readSimulation(args[0], cfg.DecodeOptions()...)
			if err != nil {
				return err
			}
			verb := "Imported"
			if appendPairs {
				verb = "Appended"
				err = client.AddSimulation(ctx, sim)
			} else {
				err = client.SetSimulation(ctx, sim)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d pair(s) from %s\n", verb, len(sim.Data.Pairs), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&appendPairs, "append", false, "Append to the current simulation instead of replacing it")
	return cmd
}

func newExportCmd(g *globals) *cobra.Command {
	var (
		outFile string
		asYAML  bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the proxy's simulation to stdout or a file",
		Example: `  hoverctl export > simulation.json
  hoverctl export -o captured.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, _, err := g.client(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer client.Close()

			sim, err := client.Simulation(ctx)
			if err != nil {
				return err
			}

			if outFile != "" && isYAML(outFile) {
				asYAML = true
			}
			var data []byte
			if asYAML {
				data, err = simulation.ToYAML(sim)
			} else {
				data, err = simulation.Encode(sim)
			}
			if err != nil {
				return err
			}

			if outFile == "" {
				if asYAML {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return output.JSON(cmd.OutOrStdout(), json.RawMessage(data))
			}
			if err := os.WriteFile(outFile, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d pair(s) to %s\n", len(sim.Data.Pairs), outFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Write YAML instead of JSON")
	return cmd
}

func newValidateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a simulation file against the simulation schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			opts := append(cfg.DecodeOptions(), simulation.WithSchemaValidation())
			sim, err := readSimulation(args[0], opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid %s simulation with %d pair(s)\n",
				args[0], sim.Meta.SchemaVersion, len(sim.Data.Pairs))
			return nil
		},
	}
}
