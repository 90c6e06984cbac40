// Package talos generates Talos Linux machine configurations and drives
// the machine API: applying configs to nodes in maintenance mode,
// bootstrapping the first control plane, and retrieving the kubeconfig.
package talos
