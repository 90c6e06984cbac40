package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidstack/proxtalos/internal/clustermap"
	"github.com/sidstack/proxtalos/internal/config"
	"github.com/sidstack/proxtalos/internal/provisioning"
)

// fakeProducer fabricates deterministic config documents and records the
// endpoint it was pointed at.
type fakeProducer struct {
	endpoint  string
	clientErr error
}

func (f *fakeProducer) SetEndpoint(endpoint string) { f.endpoint = endpoint }

func (f *fakeProducer) GenerateControlPlaneConfig(hostname string) ([]byte, error) {
	return []byte("machine:\n  type: controlplane\n  hostname: " + hostname + "\n"), nil
}

func (f *fakeProducer) GenerateWorkerConfig(hostname string) ([]byte, error) {
	return []byte("machine:\n  type: worker\n  hostname: " + hostname + "\n"), nil
}

func (f *fakeProducer) GetClientConfig() ([]byte, error) {
	if f.clientErr != nil {
		return nil, f.clientErr
	}
	return []byte("context: test\n"), nil
}

// fakeMachine records the order of Talos API calls.
type fakeMachine struct {
	calls        []string
	applyErr     map[string]error
	bootstrapErr error
	kubeconfig   []byte
}

func (f *fakeMachine) ApplyConfig(_ context.Context, nodeIP string, _ []byte, _ time.Duration) error {
	f.calls = append(f.calls, "apply "+nodeIP)
	return f.applyErr[nodeIP]
}

func (f *fakeMachine) Bootstrap(_ context.Context, endpoint string, _ []byte) error {
	f.calls = append(f.calls, "bootstrap "+endpoint)
	return f.bootstrapErr
}

func (f *fakeMachine) Kubeconfig(_ context.Context, endpoint string, _ []byte, _, _ time.Duration) ([]byte, error) {
	f.calls = append(f.calls, "kubeconfig "+endpoint)
	if f.kubeconfig == nil {
		return []byte("apiVersion: v1\nkind: Config\n"), nil
	}
	return f.kubeconfig, nil
}

// fakeVerifier records the membership check.
type fakeVerifier struct {
	expected int
	err      error
	called   bool
}

func (f *fakeVerifier) WaitForNodeCount(_ context.Context, _ []byte, expected int, _, _ time.Duration) error {
	f.called = true
	f.expected = expected
	return f.err
}

func bootstrapContext(t *testing.T, producer *fakeProducer, machine *fakeMachine, verifier *fakeVerifier) *provisioning.Context {
	t.Helper()
	cfg := &config.Config{
		ClusterName: "demo",
		OutputDir:   t.TempDir(),
	}
	ctx := provisioning.NewContext(context.Background(), cfg, nil, producer, machine, verifier)
	ctx.Timeouts.Settle = 10 * time.Millisecond

	ctx.State.ControlPlanes = []clustermap.NodeRecord{
		{Role: clustermap.RoleControlPlane, Name: "demo-controlplane-100", VMID: 100, IP: "10.0.0.10"},
		{Role: clustermap.RoleControlPlane, Name: "demo-controlplane-101", VMID: 101, IP: "10.0.0.11"},
	}
	ctx.State.Workers = []clustermap.NodeRecord{
		{Role: clustermap.RoleWorker, Name: "demo-worker-102", VMID: 102, IP: "10.0.0.12"},
	}
	return ctx
}

func TestProvision_BootstrapSequence(t *testing.T) {
	t.Parallel()
	producer := &fakeProducer{}
	machine := &fakeMachine{}
	verifier := &fakeVerifier{}
	ctx := bootstrapContext(t, producer, machine, verifier)

	require.NoError(t, NewProvisioner().Provision(ctx))

	// Endpoint targets the first control plane.
	assert.Equal(t, "https://10.0.0.10:6443", producer.endpoint)

	// Configs are applied to control planes in order, then workers; etcd is
	// bootstrapped exactly once, against the first control plane, and only
	// after every config was applied.
	assert.Equal(t, []string{
		"apply 10.0.0.10",
		"apply 10.0.0.11",
		"apply 10.0.0.12",
		"bootstrap 10.0.0.10",
		"kubeconfig 10.0.0.10",
	}, machine.calls)

	assert.True(t, verifier.called)
	assert.Equal(t, 3, verifier.expected)

	assert.NotEmpty(t, ctx.State.TalosConfig)
	assert.NotEmpty(t, ctx.State.Kubeconfig)
}

func TestProvision_WritesArtifacts(t *testing.T) {
	t.Parallel()
	producer := &fakeProducer{}
	machine := &fakeMachine{}
	verifier := &fakeVerifier{}
	ctx := bootstrapContext(t, producer, machine, verifier)

	require.NoError(t, NewProvisioner().Provision(ctx))

	dir := ctx.Config.OutputDir
	for _, name := range []string{
		"talosconfig",
		"kubeconfig",
		"controlplane-10.0.0.10.yaml",
		"controlplane-10.0.0.11.yaml",
		"worker-10.0.0.12.yaml",
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, "artifact %s", name)
		assert.NotEmpty(t, data, "artifact %s", name)
	}

	cp, err := os.ReadFile(filepath.Join(dir, "controlplane-10.0.0.10.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(cp), "hostname: demo-controlplane-100")
}

func TestProvision_NoControlPlanes(t *testing.T) {
	t.Parallel()
	ctx := bootstrapContext(t, &fakeProducer{}, &fakeMachine{}, &fakeVerifier{})
	ctx.State.ControlPlanes = nil

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no control plane nodes")
}

func TestProvision_ApplyFailureStopsSequence(t *testing.T) {
	t.Parallel()
	machine := &fakeMachine{applyErr: map[string]error{
		"10.0.0.11": fmt.Errorf("connection reset"),
	}}
	verifier := &fakeVerifier{}
	ctx := bootstrapContext(t, &fakeProducer{}, machine, verifier)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demo-controlplane-101")

	// No bootstrap, no kubeconfig, no verification after a failed apply.
	assert.Equal(t, []string{"apply 10.0.0.10", "apply 10.0.0.11"}, machine.calls)
	assert.False(t, verifier.called)
}

func TestProvision_SettleIsCancellable(t *testing.T) {
	t.Parallel()
	machine := &fakeMachine{}
	runCtx, cancel := context.WithCancel(context.Background())

	cfg := &config.Config{ClusterName: "demo", OutputDir: t.TempDir()}
	ctx := provisioning.NewContext(runCtx, cfg, nil, &fakeProducer{}, machine, &fakeVerifier{})
	ctx.Timeouts.Settle = time.Hour
	ctx.State.ControlPlanes = []clustermap.NodeRecord{
		{Role: clustermap.RoleControlPlane, Name: "demo-controlplane-100", VMID: 100, IP: "10.0.0.10"},
	}

	done := make(chan error, 1)
	go func() { done <- NewProvisioner().Provision(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("settle wait did not honor cancellation")
	}

	// Cancellation during settle means etcd was never bootstrapped.
	assert.Equal(t, []string{"apply 10.0.0.10"}, machine.calls)
}

func TestProvision_MembershipFailure(t *testing.T) {
	t.Parallel()
	verifier := &fakeVerifier{err: fmt.Errorf("cluster reported 2 of 3 expected nodes before the deadline")}
	ctx := bootstrapContext(t, &fakeProducer{}, &fakeMachine{}, verifier)

	err := NewProvisioner().Provision(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify cluster membership")
}
