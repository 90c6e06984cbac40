package compute

import (
	"fmt"

	"github.com/sidstack/proxtalos/internal/clustermap"
	"github.com/sidstack/proxtalos/internal/config"
	"github.com/sidstack/proxtalos/internal/provisioning"
	"github.com/sidstack/proxtalos/internal/util/naming"
)

const phase = "compute"

// Provisioner creates the cluster's virtual machines.
type Provisioner struct{}

// NewProvisioner creates a new compute provisioner.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// Name implements the provisioning.Phase interface.
func (p *Provisioner) Name() string {
	return phase
}

// Provision implements the provisioning.Phase interface.
// Control plane nodes are created first, then workers, strictly in order.
// Every node goes through the same lifecycle: allocate a VMID, clone the
// template, size the VM, start it, wait for it to report running, discover
// its address, and probe the Talos API port.
func (p *Provisioner) Provision(ctx *provisioning.Context) error {
	cps, err := p.provisionPool(ctx, clustermap.RoleControlPlane, ctx.Config.ControlPlanes)
	if err != nil {
		return err
	}
	ctx.State.ControlPlanes = cps

	workers, err := p.provisionPool(ctx, clustermap.RoleWorker, ctx.Config.Workers)
	if err != nil {
		return err
	}
	ctx.State.Workers = workers

	total := len(cps) + len(workers)
	ctx.Observer.Printf("[%s] %d node(s) provisioned (%d control plane, %d worker)",
		phase, total, len(cps), len(workers))
	return nil
}

func (p *Provisioner) provisionPool(ctx *provisioning.Context, role string, pool config.NodePool) ([]clustermap.NodeRecord, error) {
	records := make([]clustermap.NodeRecord, 0, pool.Count)

	for i := 0; i < pool.Count; i++ {
		ctx.Observer.Progress(phase, i, pool.Count)

		record, err := p.provisionNode(ctx, role, pool)
		if err != nil {
			return nil, fmt.Errorf("provision %s node %d/%d: %w", role, i+1, pool.Count, err)
		}
		records = append(records, record)

		// Later phases and the cluster map need compute results even when a
		// subsequent node fails, so results are published incrementally.
		if role == clustermap.RoleControlPlane {
			ctx.State.ControlPlanes = records
		} else {
			ctx.State.Workers = records
		}
	}

	ctx.Observer.Progress(phase, pool.Count, pool.Count)
	return records, nil
}

func (p *Provisioner) provisionNode(ctx *provisioning.Context, role string, pool config.NodePool) (clustermap.NodeRecord, error) {
	var record clustermap.NodeRecord

	vmid, err := ctx.VMs.NextID(ctx)
	if err != nil {
		return record, fmt.Errorf("allocate VMID: %w", err)
	}

	// The VMID is tracked before anything is built on it: if any later step
	// fails, rollback still covers this node.
	ctx.State.TrackVMID(vmid)

	name := naming.Node(ctx.Config.ClusterName, role, vmid)
	provisioning.LogVMCreating(ctx.Observer, phase, name, vmid)

	if err := ctx.VMs.Clone(ctx, ctx.Config.TemplateVMID, vmid, name); err != nil {
		return record, fmt.Errorf("clone template %d to VM %d: %w", ctx.Config.TemplateVMID, vmid, err)
	}
	if err := ctx.VMs.Resize(ctx, vmid, pool.MemoryMB, pool.Cores); err != nil {
		return record, fmt.Errorf("set resources for VM %d: %w", vmid, err)
	}
	if err := ctx.VMs.Start(ctx, vmid); err != nil {
		return record, fmt.Errorf("start VM %d: %w", vmid, err)
	}
	if err := ctx.VMs.AwaitRunning(ctx, vmid, ctx.Timeouts.BootPoll, ctx.Timeouts.BootRetries); err != nil {
		return record, fmt.Errorf("wait for VM %d to boot: %w", vmid, err)
	}

	ip, err := ctx.VMs.DiscoverAddress(ctx, vmid, ctx.Timeouts.Discover, ctx.Timeouts.DiscoverPoll)
	if err != nil {
		return record, fmt.Errorf("discover address of VM %d: %w", vmid, err)
	}

	if err := ctx.Probe(ctx, ip, ctx.Timeouts.Reachability); err != nil {
		return record, fmt.Errorf("node %s (%s) is not reachable: %w", name, ip, err)
	}

	provisioning.LogVMCreated(ctx.Observer, phase, name, vmid, ip)

	record = clustermap.NodeRecord{Role: role, Name: name, VMID: vmid, IP: ip}
	return record, nil
}
