package config

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
)

// WizardResult holds the user's choices from the wizard.
type WizardResult struct {
	ClusterName       string
	ProxmoxHost       string
	ProxmoxUser       string
	SSHKeyPath        string
	TemplateVMID      string
	ControlPlaneCount int
	WorkerCount       int
}

// RunWizard runs the interactive configuration wizard.
func RunWizard(ctx context.Context) (*WizardResult, error) {
	result := &WizardResult{
		ProxmoxUser:       DefaultProxmoxUser,
		ControlPlaneCount: 1,
		WorkerCount:       2,
	}

	form := huh.NewForm(
		// Cluster identity
		huh.NewGroup(
			huh.NewInput().
				Title("Cluster name").
				Description("A unique name for your cluster (DNS-safe, lowercase)").
				Placeholder("my-cluster").
				Value(&result.ClusterName).
				Validate(validateWizardClusterName),
		),

		// Proxmox connection
		huh.NewGroup(
			huh.NewInput().
				Title("Proxmox host").
				Description("Hostname or IP of the Proxmox VE node").
				Placeholder("192.168.1.10").
				Value(&result.ProxmoxHost).
				Validate(requireValue("Proxmox host")),

			huh.NewInput().
				Title("Proxmox user").
				Description("SSH user on the Proxmox host").
				Value(&result.ProxmoxUser).
				Validate(requireValue("Proxmox user")),

			huh.NewInput().
				Title("SSH key path (optional)").
				Description("Private key for the Proxmox host. Leave empty to use PROXTALOS_SSH_PASSWORD.").
				Placeholder("~/.ssh/id_ed25519").
				Value(&result.SSHKeyPath),
		),

		// Template
		huh.NewGroup(
			huh.NewInput().
				Title("Template VMID").
				Description("VMID of the prepared Talos template on the Proxmox host").
				Placeholder("9000").
				Value(&result.TemplateVMID).
				Validate(validateVMID),
		),

		// Topology
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Control plane nodes").
				Description("1 for a lab cluster, 3 for an HA control plane").
				Options(
					huh.NewOption("1 control plane", 1),
					huh.NewOption("3 control planes (HA)", 3),
				).
				Value(&result.ControlPlaneCount),

			huh.NewSelect[int]().
				Title("Number of workers").
				Description("Worker nodes run your application workloads").
				Options(
					huh.NewOption("no workers", 0),
					huh.NewOption("1 worker", 1),
					huh.NewOption("2 workers", 2),
					huh.NewOption("3 workers", 3),
					huh.NewOption("5 workers", 5),
				).
				Value(&result.WorkerCount),
		),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("wizard canceled: %w", err)
	}

	return result, nil
}

// ToConfig converts the wizard result into a Config with defaults filled in.
func (r *WizardResult) ToConfig() *Config {
	vmid, _ := strconv.Atoi(r.TemplateVMID)
	cfg := &Config{
		ClusterName:   r.ClusterName,
		ProxmoxHost:   r.ProxmoxHost,
		ProxmoxUser:   r.ProxmoxUser,
		SSHKeyPath:    r.SSHKeyPath,
		TemplateVMID:  vmid,
		ControlPlanes: NodePool{Count: r.ControlPlaneCount},
		Workers:       NodePool{Count: r.WorkerCount},
	}
	cfg.ApplyDefaults()
	return cfg
}

func validateWizardClusterName(s string) error {
	if s == "" {
		return fmt.Errorf("cluster name is required")
	}
	if len(s) > 63 {
		return fmt.Errorf("cluster name must be 63 characters or less")
	}
	if !clusterNameRe.MatchString(s) {
		return fmt.Errorf("cluster name can only contain lowercase letters, numbers, and hyphens")
	}
	return nil
}

func validateVMID(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("template VMID must be a positive number")
	}
	return nil
}

func requireValue(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
