package commands

import (
	"github.com/spf13/cobra"

	"github.com/sidstack/proxtalos/cmd/proxtalos/handlers"
)

// Destroy returns the destroy command.
//
// The destroy command reads a cluster map file written by deploy and
// removes every VM it records from the Proxmox host.
func Destroy() *cobra.Command {
	var opts handlers.DestroyOptions

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy a deployed cluster from its cluster map",
		Long: `Destroy stops and deletes every VM recorded in a cluster map file.

The cluster map is the JSON file 'proxtalos deploy' writes into the output
directory. Nodes are processed control planes first, then workers; a VM
that is already gone is logged and skipped, so running destroy twice is
safe.

Example:
  proxtalos destroy -c proxtalos.yaml --map ./talos_cluster/demo-cluster-map.json

WARNING: This operation is irreversible. All cluster data will be lost.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to cluster configuration file (required)")
	cmd.Flags().StringVar(&opts.MapPath, "map", "", "Path to the cluster map file (default: derived from config)")
	cmd.Flags().BoolVar(&opts.RemoveArtifacts, "remove-artifacts", false, "Remove the artifact directory after teardown")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
