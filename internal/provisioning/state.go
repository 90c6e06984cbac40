package provisioning

import "github.com/sidstack/proxtalos/internal/clustermap"

// State holds the shared results of provisioning phases.
// It is progressively populated as each phase completes and is passed
// to subsequent phases that need earlier results.
type State struct {
	// AllocatedVMIDs records every VMID the run obtained from the
	// hypervisor, in allocation order. A VMID is appended as soon as it is
	// allocated, before any clone or start is attempted, so a failed run
	// can always roll back everything it touched.
	AllocatedVMIDs []int

	// Compute results (populated by the compute provisioner)
	ControlPlanes []clustermap.NodeRecord
	Workers       []clustermap.NodeRecord

	// Cluster results (populated by the cluster bootstrapper)
	TalosConfig []byte
	Kubeconfig  []byte
}

// NewState creates an empty provisioning state.
func NewState() *State {
	return &State{}
}

// TrackVMID records an allocated VMID for rollback.
func (s *State) TrackVMID(vmid int) {
	s.AllocatedVMIDs = append(s.AllocatedVMIDs, vmid)
}

// FirstControlPlaneIP returns the address of the first control plane node,
// or "" when compute has not run yet.
func (s *State) FirstControlPlaneIP() string {
	if len(s.ControlPlanes) == 0 {
		return ""
	}
	return s.ControlPlanes[0].IP
}

// ClusterMap assembles the durable cluster map from the compute results.
func (s *State) ClusterMap(clusterName string) *clustermap.Map {
	return &clustermap.Map{
		ClusterName:   clusterName,
		ControlPlanes: append([]clustermap.NodeRecord(nil), s.ControlPlanes...),
		Workers:       append([]clustermap.NodeRecord(nil), s.Workers...),
	}
}
