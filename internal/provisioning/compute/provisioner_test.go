package compute

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidstack/proxtalos/internal/clustermap"
	"github.com/sidstack/proxtalos/internal/config"
	"github.com/sidstack/proxtalos/internal/provisioning"
)

// scriptedVMs hands out sequential VMIDs and records the lifecycle calls it
// receives. Individual steps can be made to fail for a specific VMID.
type scriptedVMs struct {
	nextID int
	calls  []string

	cloneErr    map[int]error
	startErr    map[int]error
	discoverErr map[int]error
	addresses   map[int]string
}

func newScriptedVMs(firstID int) *scriptedVMs {
	return &scriptedVMs{
		nextID:      firstID,
		cloneErr:    map[int]error{},
		startErr:    map[int]error{},
		discoverErr: map[int]error{},
		addresses:   map[int]string{},
	}
}

func (s *scriptedVMs) record(format string, v ...interface{}) {
	s.calls = append(s.calls, fmt.Sprintf(format, v...))
}

func (s *scriptedVMs) NextID(context.Context) (int, error) {
	id := s.nextID
	s.nextID++
	s.record("nextid %d", id)
	return id, nil
}

func (s *scriptedVMs) Clone(_ context.Context, template, vmid int, name string) error {
	s.record("clone %d->%d %s", template, vmid, name)
	return s.cloneErr[vmid]
}

func (s *scriptedVMs) Resize(_ context.Context, vmid, memoryMB, cores int) error {
	s.record("resize %d %d %d", vmid, memoryMB, cores)
	return nil
}

func (s *scriptedVMs) Start(_ context.Context, vmid int) error {
	s.record("start %d", vmid)
	return s.startErr[vmid]
}

func (s *scriptedVMs) Stop(_ context.Context, vmid int) error {
	s.record("stop %d", vmid)
	return nil
}

func (s *scriptedVMs) Destroy(_ context.Context, vmid int) error {
	s.record("destroy %d", vmid)
	return nil
}

func (s *scriptedVMs) AwaitRunning(_ context.Context, vmid int, _ time.Duration, _ int) error {
	s.record("await %d", vmid)
	return nil
}

func (s *scriptedVMs) DiscoverAddress(_ context.Context, vmid int, _, _ time.Duration) (string, error) {
	s.record("discover %d", vmid)
	if err := s.discoverErr[vmid]; err != nil {
		return "", err
	}
	if ip, ok := s.addresses[vmid]; ok {
		return ip, nil
	}
	return fmt.Sprintf("10.0.0.%d", vmid-90), nil
}

func testContext(t *testing.T, vms provisioning.VMController, cps, workers int) *provisioning.Context {
	t.Helper()
	cfg := &config.Config{
		ClusterName:   "demo",
		TemplateVMID:  9000,
		ControlPlanes: config.NodePool{Count: cps, MemoryMB: 4096, Cores: 2},
		Workers:       config.NodePool{Count: workers, MemoryMB: 2048, Cores: 1},
	}
	ctx := provisioning.NewContext(context.Background(), cfg, vms, nil, nil, nil)
	ctx.Probe = func(context.Context, string, time.Duration) error { return nil }
	return ctx
}

func TestProvision_ControlPlanesBeforeWorkers(t *testing.T) {
	t.Parallel()
	vms := newScriptedVMs(100)
	ctx := testContext(t, vms, 1, 2)

	require.NoError(t, NewProvisioner().Provision(ctx))

	require.Len(t, ctx.State.ControlPlanes, 1)
	require.Len(t, ctx.State.Workers, 2)

	cp := ctx.State.ControlPlanes[0]
	assert.Equal(t, clustermap.RoleControlPlane, cp.Role)
	assert.Equal(t, "demo-controlplane-100", cp.Name)
	assert.Equal(t, 100, cp.VMID)
	assert.Equal(t, "10.0.0.10", cp.IP)

	assert.Equal(t, "demo-worker-101", ctx.State.Workers[0].Name)
	assert.Equal(t, "demo-worker-102", ctx.State.Workers[1].Name)

	// The control plane node is fully provisioned before any worker work
	// starts.
	assert.Equal(t, []string{
		"nextid 100",
		"clone 9000->100 demo-controlplane-100",
		"resize 100 4096 2",
		"start 100",
		"await 100",
		"discover 100",
		"nextid 101",
		"clone 9000->101 demo-worker-101",
		"resize 101 2048 1",
		"start 101",
		"await 101",
		"discover 101",
		"nextid 102",
		"clone 9000->102 demo-worker-102",
		"resize 102 2048 1",
		"start 102",
		"await 102",
		"discover 102",
	}, vms.calls)
}

func TestProvision_TracksVMIDsForRollback(t *testing.T) {
	t.Parallel()
	vms := newScriptedVMs(100)
	vms.startErr[102] = fmt.Errorf("start failed: no space left on device")
	ctx := testContext(t, vms, 1, 2)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start VM 102")

	// All three VMIDs were allocated, so all three must be in the rollback
	// list, including the one whose start failed.
	assert.Equal(t, []int{100, 101, 102}, ctx.State.AllocatedVMIDs)
}

func TestProvision_CloneFailureStillTracked(t *testing.T) {
	t.Parallel()
	vms := newScriptedVMs(100)
	vms.cloneErr[100] = fmt.Errorf("clone failed")
	ctx := testContext(t, vms, 1, 1)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provision controlplane node 1/1")

	assert.Equal(t, []int{100}, ctx.State.AllocatedVMIDs)
	assert.Empty(t, ctx.State.ControlPlanes)
}

func TestProvision_PartialResultsVisibleAfterFailure(t *testing.T) {
	t.Parallel()
	vms := newScriptedVMs(100)
	vms.discoverErr[102] = fmt.Errorf("no address within deadline")
	ctx := testContext(t, vms, 2, 1)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)

	// The two control planes that completed are still in the state.
	require.Len(t, ctx.State.ControlPlanes, 2)
	assert.Empty(t, ctx.State.Workers)
	assert.Equal(t, []int{100, 101, 102}, ctx.State.AllocatedVMIDs)
}

func TestProvision_ProbeFailure(t *testing.T) {
	t.Parallel()
	vms := newScriptedVMs(200)
	ctx := testContext(t, vms, 1, 0)
	ctx.Probe = func(context.Context, string, time.Duration) error {
		return fmt.Errorf("connection refused")
	}

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demo-controlplane-200")
	assert.Contains(t, err.Error(), "not reachable")
}
