package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/talos/pkg/machinery/config/generate/secrets"

	"github.com/sidstack/proxtalos/internal/clustermap"
	"github.com/sidstack/proxtalos/internal/config"
	"github.com/sidstack/proxtalos/internal/provisioning"
)

// handlerVMs is a scripted hypervisor for handler tests.
type handlerVMs struct {
	nextID    int
	destroyed []int
	applyFail bool
}

func (f *handlerVMs) NextID(context.Context) (int, error) {
	id := f.nextID
	f.nextID++
	return id, nil
}

func (f *handlerVMs) Clone(context.Context, int, int, string) error { return nil }
func (f *handlerVMs) Resize(context.Context, int, int, int) error   { return nil }
func (f *handlerVMs) Start(context.Context, int) error              { return nil }
func (f *handlerVMs) Stop(context.Context, int) error               { return nil }

func (f *handlerVMs) Destroy(_ context.Context, vmid int) error {
	f.destroyed = append(f.destroyed, vmid)
	return nil
}

func (f *handlerVMs) AwaitRunning(context.Context, int, time.Duration, int) error { return nil }

func (f *handlerVMs) DiscoverAddress(_ context.Context, vmid int, _, _ time.Duration) (string, error) {
	return fmt.Sprintf("10.0.0.%d", vmid-90), nil
}

// handlerProducer fabricates config documents.
type handlerProducer struct{}

func (handlerProducer) SetEndpoint(string) {}
func (handlerProducer) GenerateControlPlaneConfig(hostname string) ([]byte, error) {
	return []byte("cp: " + hostname), nil
}
func (handlerProducer) GenerateWorkerConfig(hostname string) ([]byte, error) {
	return []byte("worker: " + hostname), nil
}
func (handlerProducer) GetClientConfig() ([]byte, error) { return []byte("talosconfig"), nil }

// handlerMachine is a Talos API fake whose apply step can fail.
type handlerMachine struct {
	vms *handlerVMs
}

func (m handlerMachine) ApplyConfig(context.Context, string, []byte, time.Duration) error {
	if m.vms.applyFail {
		return fmt.Errorf("apply rejected")
	}
	return nil
}
func (m handlerMachine) Bootstrap(context.Context, string, []byte) error { return nil }
func (m handlerMachine) Kubeconfig(context.Context, string, []byte, time.Duration, time.Duration) ([]byte, error) {
	return []byte("kubeconfig"), nil
}

type handlerVerifier struct{}

func (handlerVerifier) WaitForNodeCount(context.Context, []byte, int, time.Duration, time.Duration) error {
	return nil
}

// stubDeployFactories swaps every deploy factory for fakes and restores them
// when the test finishes. Tests that share these vars must not run in
// parallel.
func stubDeployFactories(t *testing.T, vms *handlerVMs, outputDir string) {
	t.Helper()

	origLoad := loadConfigFile
	origVMs := newVMController
	origSecrets := getOrGenerateSecrets
	origGen := newTalosGenerator
	origMachine := newMachineAPI
	origVerifier := newVerifier
	origSave := saveClusterMap
	origCtx := newProvisioningContext
	t.Cleanup(func() {
		loadConfigFile = origLoad
		newVMController = origVMs
		getOrGenerateSecrets = origSecrets
		newTalosGenerator = origGen
		newMachineAPI = origMachine
		newVerifier = origVerifier
		saveClusterMap = origSave
		newProvisioningContext = origCtx
	})

	loadConfigFile = func(_ string) (*config.Config, error) {
		cfg := &config.Config{
			ClusterName:   "demo",
			ProxmoxHost:   "pve.local",
			TemplateVMID:  9000,
			OutputDir:     outputDir,
			ControlPlanes: config.NodePool{Count: 1},
			Workers:       config.NodePool{Count: 2},
		}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	newVMController = func(_ context.Context, _ *config.Config) (provisioning.VMController, func(), error) {
		return vms, func() {}, nil
	}
	getOrGenerateSecrets = func(_, _ string) (*secrets.Bundle, error) { return nil, nil }
	newTalosGenerator = func(_, _, _, _ string, _ *secrets.Bundle) provisioning.ConfigProducer {
		return handlerProducer{}
	}
	newMachineAPI = func() provisioning.MachineAPI { return handlerMachine{vms: vms} }
	newVerifier = func() provisioning.MembershipVerifier { return handlerVerifier{} }
	newProvisioningContext = func(ctx context.Context, cfg *config.Config, vms provisioning.VMController,
		talos provisioning.ConfigProducer, machine provisioning.MachineAPI, verifier provisioning.MembershipVerifier) *provisioning.Context {
		pctx := provisioning.NewContext(ctx, cfg, vms, talos, machine, verifier)
		pctx.Probe = func(context.Context, string, time.Duration) error { return nil }
		return pctx
	}

	// Shrink the settle window so tests do not sleep for minutes.
	t.Setenv("PROXTALOS_TIMEOUT_SETTLE", "1ms")
}

func TestDeploy_WritesClusterMap(t *testing.T) {
	dir := t.TempDir()
	vms := &handlerVMs{nextID: 100}
	stubDeployFactories(t, vms, dir)

	require.NoError(t, Deploy(context.Background(), DeployOptions{ConfigPath: "proxtalos.yaml"}))

	data, err := os.ReadFile(filepath.Join(dir, "demo-cluster-map.json"))
	require.NoError(t, err)

	var raw struct {
		ClusterName   string                     `json:"cluster_name"`
		ControlPlanes map[string]json.RawMessage `json:"controlplanes"`
		Workers       map[string]json.RawMessage `json:"workers"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "demo", raw.ClusterName)
	assert.Len(t, raw.ControlPlanes, 1)
	assert.Len(t, raw.Workers, 2)
	assert.Contains(t, raw.ControlPlanes, "demo-controlplane-100")
	assert.Contains(t, raw.Workers, "demo-worker-101")
	assert.Contains(t, raw.Workers, "demo-worker-102")

	// The map round-trips through the loader used by destroy.
	m, err := clustermap.Load(filepath.Join(dir, "demo-cluster-map.json"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", m.ControlPlanes[0].IP)

	// Nothing was rolled back.
	assert.Empty(t, vms.destroyed)
}

func TestDeploy_RollsBackOnPhaseFailure(t *testing.T) {
	dir := t.TempDir()
	vms := &handlerVMs{nextID: 100, applyFail: true}
	stubDeployFactories(t, vms, dir)

	err := Deploy(context.Background(), DeployOptions{ConfigPath: "proxtalos.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster phase failed")

	// All three allocated VMs were destroyed again.
	assert.Equal(t, []int{100, 101, 102}, vms.destroyed)

	// No cluster map exists for a failed deployment.
	_, statErr := os.Stat(filepath.Join(dir, "demo-cluster-map.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDeploy_PersistFailureDoesNotRollBack(t *testing.T) {
	dir := t.TempDir()
	vms := &handlerVMs{nextID: 100}
	stubDeployFactories(t, vms, dir)

	saveClusterMap = func(_ *clustermap.Map, _ string) error {
		return fmt.Errorf("disk full")
	}

	err := Deploy(context.Background(), DeployOptions{ConfigPath: "proxtalos.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write cluster map")

	// The cluster stays up: a failed map write must never destroy a
	// working deployment.
	assert.Empty(t, vms.destroyed)
}

func TestDeploy_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	vms := &handlerVMs{nextID: 100}
	stubDeployFactories(t, vms, dir)

	err := Deploy(context.Background(), DeployOptions{
		ConfigPath:  "proxtalos.yaml",
		ClusterName: "override",
		Workers:     1,
	})
	require.NoError(t, err)

	m, err := clustermap.Load(filepath.Join(dir, "override-cluster-map.json"))
	require.NoError(t, err)
	assert.Equal(t, "override", m.ClusterName)
	assert.Len(t, m.Workers, 1)
	assert.Equal(t, "override-controlplane-100", m.ControlPlanes[0].Name)
}

func TestDeploy_FlagFillsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	vms := &handlerVMs{nextID: 100}
	stubDeployFactories(t, vms, dir)

	// The file has no cluster_name; the flag supplies it and the deploy
	// must go through instead of failing validation on the bare file.
	loadConfigFile = func(_ string) (*config.Config, error) {
		cfg := &config.Config{
			ProxmoxHost:   "pve.local",
			TemplateVMID:  9000,
			OutputDir:     dir,
			ControlPlanes: config.NodePool{Count: 1},
		}
		cfg.ApplyDefaults()
		return cfg, nil
	}

	err := Deploy(context.Background(), DeployOptions{ClusterName: "flagged"})
	require.NoError(t, err)

	m, err := clustermap.Load(filepath.Join(dir, "flagged-cluster-map.json"))
	require.NoError(t, err)
	assert.Equal(t, "flagged", m.ClusterName)
}

func TestDeploy_ValidatesAfterOverrides(t *testing.T) {
	dir := t.TempDir()
	vms := &handlerVMs{nextID: 100}
	stubDeployFactories(t, vms, dir)

	loadConfigFile = func(_ string) (*config.Config, error) {
		cfg := &config.Config{
			ProxmoxHost:   "pve.local",
			TemplateVMID:  9000,
			OutputDir:     dir,
			ControlPlanes: config.NodePool{Count: 1},
		}
		cfg.ApplyDefaults()
		return cfg, nil
	}

	err := Deploy(context.Background(), DeployOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster_name is required")
}

func TestDeploy_ConnectionUsesRunContext(t *testing.T) {
	dir := t.TempDir()
	vms := &handlerVMs{nextID: 100}
	stubDeployFactories(t, vms, dir)

	type ctxKey struct{}
	var seen context.Context
	newVMController = func(ctx context.Context, _ *config.Config) (provisioning.VMController, func(), error) {
		seen = ctx
		return vms, func() {}, nil
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "run")
	require.NoError(t, Deploy(ctx, DeployOptions{ConfigPath: "proxtalos.yaml"}))
	require.NotNil(t, seen)
	assert.Equal(t, "run", seen.Value(ctxKey{}))
}

func TestDeploy_ConfigLoadError(t *testing.T) {
	dir := t.TempDir()
	vms := &handlerVMs{nextID: 100}
	stubDeployFactories(t, vms, dir)

	loadConfigFile = func(_ string) (*config.Config, error) {
		return nil, fmt.Errorf("no such file")
	}

	err := Deploy(context.Background(), DeployOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
}
