// Package config defines the deployment configuration and its validation.
package config

import (
	"fmt"
	"regexp"
)

// Defaults applied by LoadFile / ApplyDefaults.
const (
	DefaultProxmoxUser       = "root"
	DefaultOutputDir         = "./talos_cluster"
	DefaultTalosVersion      = "v1.12.4"
	DefaultKubernetesVersion = "1.34.1"
	DefaultMemoryMB          = 4096
	DefaultCores             = 2
)

var clusterNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// NodePool sizes one role of the cluster.
type NodePool struct {
	Count    int `yaml:"count"`
	MemoryMB int `yaml:"memory_mb"`
	Cores    int `yaml:"cores"`
}

// Config holds everything a deployment needs: where the Proxmox host is,
// which template to clone, and how many nodes of each role to create.
type Config struct {
	ClusterName  string `yaml:"cluster_name"`
	ProxmoxHost  string `yaml:"proxmox_host"`
	ProxmoxUser  string `yaml:"proxmox_user"`
	SSHKeyPath   string `yaml:"ssh_key_path"`
	TemplateVMID int    `yaml:"template_vmid"`
	OutputDir    string `yaml:"output_dir"`

	TalosVersion      string `yaml:"talos_version"`
	KubernetesVersion string `yaml:"kubernetes_version"`

	ControlPlanes NodePool `yaml:"control_planes"`
	Workers       NodePool `yaml:"workers"`
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.ProxmoxUser == "" {
		c.ProxmoxUser = DefaultProxmoxUser
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.TalosVersion == "" {
		c.TalosVersion = DefaultTalosVersion
	}
	if c.KubernetesVersion == "" {
		c.KubernetesVersion = DefaultKubernetesVersion
	}
	applyPoolDefaults(&c.ControlPlanes)
	applyPoolDefaults(&c.Workers)
}

func applyPoolDefaults(p *NodePool) {
	if p.MemoryMB == 0 {
		p.MemoryMB = DefaultMemoryMB
	}
	if p.Cores == 0 {
		p.Cores = DefaultCores
	}
}

// Validate checks the configuration for a deployment run.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster_name is required")
	}
	if !clusterNameRe.MatchString(c.ClusterName) {
		return fmt.Errorf("cluster_name %q must be lowercase alphanumeric with dashes", c.ClusterName)
	}
	if c.ProxmoxHost == "" {
		return fmt.Errorf("proxmox_host is required")
	}
	if c.TemplateVMID <= 0 {
		return fmt.Errorf("template_vmid is required")
	}
	if c.ControlPlanes.Count < 1 {
		return fmt.Errorf("control_planes.count must be at least 1")
	}
	if c.Workers.Count < 0 {
		return fmt.Errorf("workers.count cannot be negative")
	}
	for role, pool := range map[string]NodePool{"control_planes": c.ControlPlanes, "workers": c.Workers} {
		if pool.MemoryMB < 512 {
			return fmt.Errorf("%s.memory_mb must be at least 512", role)
		}
		if pool.Cores < 1 {
			return fmt.Errorf("%s.cores must be at least 1", role)
		}
	}
	return nil
}

// ValidateConnection checks only the fields needed to reach the Proxmox
// host. Teardown works from a persisted cluster map and does not care about
// template or pool settings.
func (c *Config) ValidateConnection() error {
	if c.ProxmoxHost == "" {
		return fmt.Errorf("proxmox_host is required")
	}
	return nil
}

// ExpectedNodes returns the node count a finished cluster must report.
func (c *Config) ExpectedNodes() int {
	return c.ControlPlanes.Count + c.Workers.Count
}
