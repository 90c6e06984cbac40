package commands

import (
	"github.com/spf13/cobra"

	"github.com/sidstack/proxtalos/cmd/proxtalos/handlers"
)

// Deploy returns the command for provisioning a Kubernetes cluster.
//
// Optional flags:
//
//	--config, -c: Path to cluster configuration YAML file (default: proxtalos.yaml)
//
// Environment variables:
//
//	PROXTALOS_SSH_PASSWORD: Password for the Proxmox host, used when no
//	SSH key is configured or key authentication fails.
func Deploy() *cobra.Command {
	var opts handlers.DeployOptions

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a Kubernetes cluster on Proxmox VE",
		Long: `Deploy provisions a complete Kubernetes cluster.

The command clones VMs from the configured Talos template, waits for them
to boot, discovers their addresses through the QEMU guest agent, applies
Talos machine configurations, bootstraps the cluster, and verifies that
every node registered with the Kubernetes API.

On success it writes a cluster map JSON file into the output directory;
'proxtalos destroy' consumes that file for teardown. On failure every VM
the run created is stopped and destroyed again.

Examples:
  # Deploy using proxtalos.yaml in the current directory
  proxtalos deploy

  # Deploy using a specific config file
  proxtalos deploy -c production.yaml

  # Override the node counts from the file
  proxtalos deploy -c production.yaml --control-planes 3 --workers 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: proxtalos.yaml)")
	cmd.Flags().StringVar(&opts.ClusterName, "cluster-name", "", "Override the cluster name")
	cmd.Flags().StringVar(&opts.ProxmoxHost, "proxmox-host", "", "Override the Proxmox host")
	cmd.Flags().IntVar(&opts.TemplateVMID, "template-vmid", 0, "Override the template VMID")
	cmd.Flags().IntVar(&opts.ControlPlanes, "control-planes", 0, "Override the control plane count")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Override the worker count")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "Override the artifact directory")

	return cmd
}
