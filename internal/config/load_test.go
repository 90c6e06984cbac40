package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `cluster_name: demo
proxmox_host: 192.168.1.10
template_vmid: 9000
control_planes:
  count: 1
  memory_mb: 8192
  cores: 4
workers:
  count: 2
`

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.ClusterName)
	assert.Equal(t, 9000, cfg.TemplateVMID)
	assert.Equal(t, 8192, cfg.ControlPlanes.MemoryMB)
	// Defaults fill what the file left out.
	assert.Equal(t, DefaultMemoryMB, cfg.Workers.MemoryMB)
	assert.Equal(t, "root", cfg.ProxmoxUser)
}

func TestLoadFile_MalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cluster_name: [\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestLoadFile_IncompleteFileStillLoads(t *testing.T) {
	t.Parallel()

	// A file missing required fields must load; flags may supply the rest
	// and validation happens per command after that.
	path := filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("proxmox_host: 192.168.1.10\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.ClusterName)
	assert.Error(t, cfg.Validate())
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWriteFileRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, WriteFile(cfg, path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
