package commands

import (
	"github.com/spf13/cobra"

	"github.com/sidstack/proxtalos/cmd/proxtalos/handlers"
)

// Init returns the command that runs the configuration wizard.
func Init() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a cluster configuration interactively",
		Long: `Init walks through a short wizard and writes a configuration file.

The generated YAML is explicit and can be edited by hand afterwards.

Example:
  proxtalos init
  proxtalos init -o production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Path for the configuration file (default: proxtalos.yaml)")

	return cmd
}
