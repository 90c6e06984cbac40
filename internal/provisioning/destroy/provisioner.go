// Package destroy handles cluster teardown from a persisted cluster map.
package destroy

import (
	"context"
	"fmt"

	"github.com/sidstack/proxtalos/internal/clustermap"
	"github.com/sidstack/proxtalos/internal/provisioning"
)

const phase = "destroy"

// Provisioner tears down every VM recorded in a cluster map.
type Provisioner struct {
	Map *clustermap.Map
}

// NewProvisioner creates a destroy provisioner for the given cluster map.
func NewProvisioner(m *clustermap.Map) *Provisioner {
	return &Provisioner{Map: m}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision stops and destroys each recorded VM, control planes first.
// Failures are logged and counted but never stop processing: an already
// deleted VM must not leave the rest of the cluster orphaned, and running
// teardown twice is safe. A non-nil error is returned when any node could
// not be destroyed, after all nodes were attempted.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	nodes := p.Map.Nodes()
	ctx.Observer.Printf("[%s] Destroying cluster %s (%d node(s))...", phase, p.Map.ClusterName, len(nodes))

	var failed int
	for _, node := range nodes {
		if err := p.destroyNode(ctx, node); err != nil {
			ctx.Observer.Printf("[%s] %s (VM %d): %v", phase, node.Name, node.VMID, err)
			failed++
			continue
		}
		provisioning.LogVMDestroyed(ctx.Observer, phase, node.Name, node.VMID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d node(s) could not be destroyed", failed, len(nodes))
	}

	ctx.Observer.Printf("[%s] Cluster %s destroyed", phase, p.Map.ClusterName)
	return nil
}

func (p *Provisioner) destroyNode(ctx *provisioning.Context, node clustermap.NodeRecord) error {
	opCtx, cancel := context.WithTimeout(ctx, ctx.Timeouts.StopDestroy)
	defer cancel()

	// Stop failures are expected for VMs that are already halted or gone,
	// the destroy result is what counts.
	if err := ctx.VMs.Stop(opCtx, node.VMID); err != nil {
		ctx.Observer.Printf("[%s] stop %s (VM %d): %v", phase, node.Name, node.VMID, err)
	}

	if err := ctx.VMs.Destroy(opCtx, node.VMID); err != nil {
		return fmt.Errorf("destroy: %w", err)
	}
	return nil
}
