// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the proxtalos CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxtalos",
		Short: "Provision Kubernetes on Proxmox VE using Talos",
	}

	cmd.AddCommand(Init())
	cmd.AddCommand(Deploy())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Version())

	return cmd
}
