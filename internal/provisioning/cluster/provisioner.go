package cluster

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sidstack/proxtalos/internal/clustermap"
	"github.com/sidstack/proxtalos/internal/provisioning"
	"github.com/sidstack/proxtalos/internal/util/naming"
)

const (
	phase = "cluster"

	kubeconfigPollInterval = 10 * time.Second
)

// Provisioner drives the Talos bootstrap sequence against the machines the
// compute phase created.
type Provisioner struct{}

// NewProvisioner creates a new cluster bootstrapper.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
// The sequence is fixed: point the generator at the first control plane,
// persist the client config, apply machine configs to control planes then
// workers, let the machines settle after their reboot, bootstrap etcd once,
// retrieve the kubeconfig, and verify that every node registered.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	if len(ctx.State.ControlPlanes) == 0 {
		return fmt.Errorf("no control plane nodes in state; compute phase must run first")
	}

	if err := p.prepareEndpoint(ctx); err != nil {
		return err
	}
	if err := p.applyConfigs(ctx, clustermap.RoleControlPlane, ctx.State.ControlPlanes); err != nil {
		return err
	}
	if err := p.applyConfigs(ctx, clustermap.RoleWorker, ctx.State.Workers); err != nil {
		return err
	}
	if err := p.settle(ctx); err != nil {
		return err
	}
	if err := p.bootstrapEtcd(ctx); err != nil {
		return err
	}
	if err := p.retrieveKubeconfig(ctx); err != nil {
		return err
	}
	return p.verifyMembership(ctx)
}

// prepareEndpoint points the config generator at the first control plane and
// writes the Talos client config into the artifact directory.
func (p *Provisioner) prepareEndpoint(ctx *provisioning.Context) error {
	endpoint := fmt.Sprintf("https://%s:6443", ctx.State.FirstControlPlaneIP())
	ctx.Observer.Printf("[%s] Cluster endpoint: %s", phase, endpoint)
	ctx.Talos.SetEndpoint(endpoint)

	clientCfg, err := ctx.Talos.GetClientConfig()
	if err != nil {
		return fmt.Errorf("generate client config: %w", err)
	}
	ctx.State.TalosConfig = clientCfg

	return p.writeArtifact(ctx, naming.TalosconfigFile, clientCfg, 0o600)
}

// applyConfigs generates and applies the machine config for each node of a
// role, in order. Each config is written to the artifact directory before it
// is applied, so a failed run leaves the documents behind for inspection.
func (p *Provisioner) applyConfigs(ctx *provisioning.Context, role string, nodes []clustermap.NodeRecord) error {
	for i, node := range nodes {
		ctx.Observer.Printf("[%s] Applying %s config to %s (%s)...", phase, role, node.Name, node.IP)

		var (
			machineCfg []byte
			err        error
			fileName   string
		)
		if role == clustermap.RoleControlPlane {
			machineCfg, err = ctx.Talos.GenerateControlPlaneConfig(node.Name)
			fileName = naming.ControlPlaneConfigFile(node.IP)
		} else {
			machineCfg, err = ctx.Talos.GenerateWorkerConfig(node.Name)
			fileName = naming.WorkerConfigFile(node.IP)
		}
		if err != nil {
			return fmt.Errorf("generate %s config for %s: %w", role, node.Name, err)
		}

		if err := p.writeArtifact(ctx, fileName, machineCfg, 0o600); err != nil {
			return err
		}

		if err := ctx.Machine.ApplyConfig(ctx, node.IP, machineCfg, ctx.Timeouts.TalosAPI); err != nil {
			return fmt.Errorf("apply config to %s (%s): %w", node.Name, node.IP, err)
		}

		ctx.Observer.Progress(phase, i+1, len(nodes))
	}
	return nil
}

// settle waits out the reboot window after configs were applied. The wait is
// cancellable through the run context.
func (p *Provisioner) settle(ctx *provisioning.Context) error {
	ctx.Observer.Printf("[%s] Waiting %v for nodes to install and reboot...", phase, ctx.Timeouts.Settle)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(ctx.Timeouts.Settle):
		return nil
	}
}

// bootstrapEtcd initializes etcd on the first control plane. Bootstrap must
// run exactly once per cluster.
func (p *Provisioner) bootstrapEtcd(ctx *provisioning.Context) error {
	first := ctx.State.FirstControlPlaneIP()
	ctx.Observer.Printf("[%s] Bootstrapping etcd via %s...", phase, first)

	if err := ctx.Machine.Bootstrap(ctx, first, ctx.State.TalosConfig); err != nil {
		return fmt.Errorf("bootstrap etcd on %s: %w", first, err)
	}
	return nil
}

// retrieveKubeconfig polls the first control plane until the Kubernetes API
// hands out a kubeconfig, then persists it.
func (p *Provisioner) retrieveKubeconfig(ctx *provisioning.Context) error {
	first := ctx.State.FirstControlPlaneIP()
	ctx.Observer.Printf("[%s] Retrieving kubeconfig from %s...", phase, first)

	kubeconfig, err := ctx.Machine.Kubeconfig(ctx, first, ctx.State.TalosConfig,
		kubeconfigPollInterval, ctx.Timeouts.KubeconfigFetch)
	if err != nil {
		return fmt.Errorf("retrieve kubeconfig: %w", err)
	}
	ctx.State.Kubeconfig = kubeconfig

	return p.writeArtifact(ctx, naming.KubeconfigFile, kubeconfig, 0o600)
}

// verifyMembership waits until the cluster reports every provisioned node.
func (p *Provisioner) verifyMembership(ctx *provisioning.Context) error {
	expected := len(ctx.State.ControlPlanes) + len(ctx.State.Workers)
	ctx.Observer.Printf("[%s] Waiting for %d node(s) to register...", phase, expected)

	if err := ctx.Verifier.WaitForNodeCount(ctx, ctx.State.Kubeconfig, expected,
		ctx.Timeouts.MembershipPoll, ctx.Timeouts.Membership); err != nil {
		return fmt.Errorf("verify cluster membership: %w", err)
	}

	ctx.Observer.Printf("[%s] All %d node(s) registered", phase, expected)
	return nil
}

func (p *Provisioner) writeArtifact(ctx *provisioning.Context, name string, data []byte, perm os.FileMode) error {
	dir := ctx.Config.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
