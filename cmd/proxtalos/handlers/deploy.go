// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/siderolabs/talos/pkg/machinery/config/generate/secrets"

	"github.com/sidstack/proxtalos/internal/clustermap"
	"github.com/sidstack/proxtalos/internal/config"
	"github.com/sidstack/proxtalos/internal/k8s"
	"github.com/sidstack/proxtalos/internal/platform/talos"
	"github.com/sidstack/proxtalos/internal/provisioning"
	"github.com/sidstack/proxtalos/internal/provisioning/cluster"
	"github.com/sidstack/proxtalos/internal/provisioning/compute"
	"github.com/sidstack/proxtalos/internal/proxmox"
	"github.com/sidstack/proxtalos/internal/util/naming"
)

const defaultConfigFile = "proxtalos.yaml"

// sshPasswordEnv supplies the Proxmox host password when no key is
// configured or key authentication fails.
const sshPasswordEnv = "PROXTALOS_SSH_PASSWORD"

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads config from file.
	loadConfigFile = config.LoadFile

	// newVMController connects to the Proxmox host and returns the VM
	// controller plus a close function for the underlying SSH connection.
	newVMController = connectProxmox

	// getOrGenerateSecrets loads or generates Talos secrets.
	getOrGenerateSecrets = talos.GetOrGenerateSecrets

	// newTalosGenerator creates a new Talos configuration generator.
	newTalosGenerator = func(clusterName, kubernetesVersion, talosVersion, endpoint string, sb *secrets.Bundle) provisioning.ConfigProducer {
		return talos.NewGenerator(clusterName, kubernetesVersion, talosVersion, endpoint, sb)
	}

	// newMachineAPI returns the Talos machine API implementation.
	newMachineAPI = func() provisioning.MachineAPI { return talos.API{} }

	// newVerifier returns the cluster membership verifier.
	newVerifier = func() provisioning.MembershipVerifier { return k8s.Verifier{} }

	// newProvisioningContext builds the provisioning context.
	newProvisioningContext = provisioning.NewContext

	// saveClusterMap persists the cluster map.
	saveClusterMap = (*clustermap.Map).Save
)

// DeployOptions carries the deploy command's flag values. Zero-valued
// fields leave the corresponding config file setting untouched.
type DeployOptions struct {
	ConfigPath    string
	ClusterName   string
	ProxmoxHost   string
	TemplateVMID  int
	ControlPlanes int
	Workers       int
	OutputDir     string
}

// apply overlays the non-zero flag values onto the loaded configuration.
func (o DeployOptions) apply(cfg *config.Config) {
	if o.ClusterName != "" {
		cfg.ClusterName = o.ClusterName
	}
	if o.ProxmoxHost != "" {
		cfg.ProxmoxHost = o.ProxmoxHost
	}
	if o.TemplateVMID > 0 {
		cfg.TemplateVMID = o.TemplateVMID
	}
	if o.ControlPlanes > 0 {
		cfg.ControlPlanes.Count = o.ControlPlanes
	}
	if o.Workers > 0 {
		cfg.Workers.Count = o.Workers
	}
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
}

// Deploy provisions a Kubernetes cluster on a Proxmox VE host using Talos.
//
// The workflow:
//  1. Load and validate the cluster configuration; flags override the file
//  2. Connect to the Proxmox host over SSH
//  3. Load or generate the Talos secrets bundle in the artifact directory
//  4. Run the compute phase (clone, boot, discover) and the cluster phase
//     (apply configs, bootstrap, kubeconfig, membership check)
//  5. Persist the cluster map JSON
//
// If any phase fails, every VM the run allocated is stopped and destroyed
// before the error is returned. A failure to persist the cluster map does
// NOT trigger rollback: at that point the cluster is up, and tearing it
// down over a disk write would destroy a working deployment.
func Deploy(ctx context.Context, opts DeployOptions) error {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = defaultConfigFile
	}
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Printf("Deploying cluster %s (%d control plane(s), %d worker(s))",
		cfg.ClusterName, cfg.ControlPlanes.Count, cfg.Workers.Count)

	vms, closeConn, err := newVMController(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	talosGen, err := initializeTalosGenerator(cfg)
	if err != nil {
		return err
	}

	pctx := newProvisioningContext(ctx, cfg, vms, talosGen, newMachineAPI(), newVerifier())

	if err := provisioning.RunPhases(pctx, []provisioning.Phase{
		compute.NewProvisioner(),
		cluster.NewProvisioner(),
	}); err != nil {
		provisioning.Rollback(pctx)
		return err
	}

	if err := persistClusterMap(pctx); err != nil {
		return err
	}

	printDeploySummary(cfg, pctx.State)
	return nil
}

// connectProxmox builds the SSH executor from the config and environment
// and establishes the connection. The caller's context bounds the dial and
// its retries, so an interrupted run stops reconnecting.
func connectProxmox(ctx context.Context, cfg *config.Config) (provisioning.VMController, func(), error) {
	sshCfg := &proxmox.SSHConfig{
		Host:     cfg.ProxmoxHost,
		User:     cfg.ProxmoxUser,
		Password: os.Getenv(sshPasswordEnv),
	}
	if cfg.SSHKeyPath != "" {
		key, err := os.ReadFile(cfg.SSHKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read SSH key %s: %w", cfg.SSHKeyPath, err)
		}
		sshCfg.PrivateKey = key
	}

	exec, err := proxmox.NewSSHExecutor(sshCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := exec.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to Proxmox host %s: %w", cfg.ProxmoxHost, err)
	}

	closeConn := func() {
		if err := exec.Close(); err != nil {
			log.Printf("close SSH connection: %v", err)
		}
	}
	return proxmox.NewClient(exec), closeConn, nil
}

// initializeTalosGenerator prepares the secrets bundle and config generator.
// Secrets are persisted before provisioning starts so a failed run can be
// retried with the same cluster CA.
func initializeTalosGenerator(cfg *config.Config) (provisioning.ConfigProducer, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory %s: %w", cfg.OutputDir, err)
	}

	secretsPath := filepath.Join(cfg.OutputDir, naming.SecretsFile)
	sb, err := getOrGenerateSecrets(secretsPath, cfg.TalosVersion)
	if err != nil {
		return nil, fmt.Errorf("prepare Talos secrets: %w", err)
	}

	// The endpoint is set by the cluster phase once the first control
	// plane's address is known.
	return newTalosGenerator(cfg.ClusterName, cfg.KubernetesVersion, cfg.TalosVersion, "", sb), nil
}

// persistClusterMap writes the cluster map, the commit point of a deploy.
func persistClusterMap(pctx *provisioning.Context) error {
	m := pctx.State.ClusterMap(pctx.Config.ClusterName)
	path := filepath.Join(pctx.Config.OutputDir, naming.ClusterMapFile(pctx.Config.ClusterName))

	if err := saveClusterMap(m, path); err != nil {
		// The cluster itself is healthy. Surface the record of what was
		// created so the operator can reconstruct the map by hand.
		log.Printf("WARNING: cluster deployed but the cluster map could not be written: %v", err)
		for _, node := range m.Nodes() {
			log.Printf("  %s: %s VMID=%d IP=%s", node.Role, node.Name, node.VMID, node.IP)
		}
		return fmt.Errorf("write cluster map %s: %w", path, err)
	}

	log.Printf("Cluster map written to %s", path)
	return nil
}

func printDeploySummary(cfg *config.Config, state *provisioning.State) {
	fmt.Println()
	fmt.Printf("Cluster %s is ready.\n", cfg.ClusterName)
	fmt.Println()
	for _, node := range state.ClusterMap(cfg.ClusterName).Nodes() {
		fmt.Printf("  %-13s %-24s VMID=%-5d %s\n", node.Role, node.Name, node.VMID, node.IP)
	}
	fmt.Println()
	fmt.Printf("  kubeconfig:  %s\n", filepath.Join(cfg.OutputDir, naming.KubeconfigFile))
	fmt.Printf("  talosconfig: %s\n", filepath.Join(cfg.OutputDir, naming.TalosconfigFile))
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  export KUBECONFIG=%s\n", filepath.Join(cfg.OutputDir, naming.KubeconfigFile))
	fmt.Println("  kubectl get nodes")
}
