package talos

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/siderolabs/talos/pkg/machinery/config"
	"github.com/siderolabs/talos/pkg/machinery/config/generate"
	"github.com/siderolabs/talos/pkg/machinery/config/generate/secrets"
	"github.com/siderolabs/talos/pkg/machinery/config/machine"
	"gopkg.in/yaml.v3"
)

// SecretsBundle is a type alias for the Talos secrets bundle.
type SecretsBundle = secrets.Bundle

// Generator produces Talos machine configurations for one cluster. The
// endpoint is the first control plane's API URL and anchors every config
// the generator emits.
type Generator struct {
	clusterName       string
	kubernetesVersion string
	talosVersion      string
	endpoint          string
	secretsBundle     *secrets.Bundle
}

// NewGenerator creates a new Generator.
func NewGenerator(clusterName, kubernetesVersion, talosVersion, endpoint string, sb *secrets.Bundle) *Generator {
	// Talos machinery adds the 'v' prefix itself, so strip it if present.
	kubernetesVersion = strings.TrimPrefix(kubernetesVersion, "v")

	return &Generator{
		clusterName:       clusterName,
		kubernetesVersion: kubernetesVersion,
		talosVersion:      talosVersion,
		endpoint:          endpoint,
		secretsBundle:     sb,
	}
}

// NewSecrets creates a new Talos secrets bundle.
func NewSecrets(talosVersion string) (*secrets.Bundle, error) {
	vc, err := config.ParseContractFromVersion(talosVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version contract: %w", err)
	}

	sb, err := secrets.NewBundle(secrets.NewFixedClock(time.Now()), vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets bundle: %w", err)
	}

	return sb, nil
}

// LoadSecrets loads Talos secrets from a file.
func LoadSecrets(path string) (*secrets.Bundle, error) {
	sb, err := secrets.LoadBundle(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets bundle: %w", err)
	}
	if sb == nil {
		return nil, fmt.Errorf("loaded secrets bundle is nil")
	}

	// Re-inject clock
	sb.Clock = secrets.NewFixedClock(time.Now())
	return sb, nil
}

// SaveSecrets saves Talos secrets to a file in the YAML format LoadBundle expects.
func SaveSecrets(path string, sb *secrets.Bundle) error {
	data, err := yaml.Marshal(sb)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets bundle: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// GetOrGenerateSecrets loads secrets from path, or generates and saves a
// fresh bundle if the file does not exist. Reusing the bundle keeps every
// node of one deployment on the same cluster CA.
func GetOrGenerateSecrets(path, talosVersion string) (*SecretsBundle, error) {
	if _, err := os.Stat(path); err == nil {
		return LoadSecrets(path)
	}

	sb, err := NewSecrets(talosVersion)
	if err != nil {
		return nil, err
	}
	if err := SaveSecrets(path, sb); err != nil {
		return nil, err
	}
	return sb, nil
}

// SetEndpoint updates the cluster endpoint once the first control plane's
// address is known.
func (g *Generator) SetEndpoint(endpoint string) {
	g.endpoint = endpoint
}

// GenerateControlPlaneConfig generates the machine configuration for a
// control plane node with the given hostname.
func (g *Generator) GenerateControlPlaneConfig(hostname string) ([]byte, error) {
	return g.generateConfig(machine.TypeControlPlane, hostname)
}

// GenerateWorkerConfig generates the machine configuration for a worker
// node with the given hostname.
func (g *Generator) GenerateWorkerConfig(hostname string) ([]byte, error) {
	return g.generateConfig(machine.TypeWorker, hostname)
}

func (g *Generator) generateConfig(machineType machine.Type, hostname string) ([]byte, error) {
	baseConfig, err := g.generateBaseConfig(machineType)
	if err != nil {
		return nil, err
	}

	patch := map[string]any{
		"machine": map[string]any{
			"network": map[string]any{
				"hostname": hostname,
			},
		},
	}
	return applyConfigPatch(baseConfig, patch)
}

// generateBaseConfig generates the base Talos config that patches are applied to.
func (g *Generator) generateBaseConfig(machineType machine.Type) ([]byte, error) {
	vc, err := config.ParseContractFromVersion(g.talosVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version contract: %w", err)
	}

	opts := []generate.Option{
		generate.WithVersionContract(vc),
		generate.WithSecretsBundle(g.secretsBundle),
		generate.WithInstallDisk("/dev/sda"), // Cloned qemu templates present the boot disk as /dev/sda
	}

	input, err := generate.NewInput(
		g.clusterName,
		g.endpoint,
		g.kubernetesVersion,
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input: %w", err)
	}

	cfg, err := input.Config(machineType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s config: %w", machineType, err)
	}

	bytes, err := cfg.Bytes()
	if err != nil {
		return nil, err
	}

	return stripComments(bytes), nil
}

// GetClientConfig returns the talosconfig for the cluster.
func (g *Generator) GetClientConfig() ([]byte, error) {
	vc, err := config.ParseContractFromVersion(g.talosVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version contract: %w", err)
	}

	opts := []generate.Option{
		generate.WithVersionContract(vc),
		generate.WithSecretsBundle(g.secretsBundle),
	}

	input, err := generate.NewInput(g.clusterName, g.endpoint, g.kubernetesVersion, opts...)
	if err != nil {
		return nil, err
	}

	clientCfg, err := input.Talosconfig()
	if err != nil {
		return nil, err
	}

	return clientCfg.Bytes()
}

// applyConfigPatch applies a patch map to the base config using deep merge.
func applyConfigPatch(baseConfig []byte, patch map[string]any) ([]byte, error) {
	var configMap map[string]any
	if err := yaml.Unmarshal(baseConfig, &configMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal base config: %w", err)
	}

	deepMerge(configMap, patch)

	return yaml.Marshal(configMap)
}

// deepMerge recursively merges src into dst.
// For maps, it merges recursively. For other types, src overwrites dst.
func deepMerge(dst, src map[string]any) {
	for key, srcVal := range src {
		if dstVal, exists := dst[key]; exists {
			srcMap, srcIsMap := srcVal.(map[string]any)
			dstMap, dstIsMap := dstVal.(map[string]any)
			if srcIsMap && dstIsMap {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

func stripComments(data []byte) []byte {
	lines := strings.Split(string(data), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || trimmed == "" {
			continue
		}
		result = append(result, line)
	}
	return []byte(strings.Join(result, "\n"))
}
