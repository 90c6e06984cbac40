package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/sidstack/proxtalos/internal/config"
)

// Factory function variables for init - can be replaced in tests.
var (
	// fileExists checks if a file exists.
	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	// runWizard runs the interactive wizard.
	runWizard = config.RunWizard

	// writeConfigFile writes the config to a file.
	writeConfigFile = config.WriteFile
)

// Init runs the configuration wizard and writes the result to a file.
func Init(ctx context.Context, outputPath string) error {
	if outputPath == "" {
		outputPath = defaultConfigFile
	}
	if fileExists(outputPath) {
		fmt.Printf("Warning: %s already exists and will be overwritten.\n\n", outputPath)
	}

	printWelcome()

	result, err := runWizard(ctx)
	if err != nil {
		return err
	}

	cfg := result.ToConfig()
	if err := writeConfigFile(cfg, outputPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printInitSuccess(outputPath, cfg)
	return nil
}

func printWelcome() {
	fmt.Println()
	fmt.Println("proxtalos - Kubernetes on Proxmox VE")
	fmt.Println("====================================")
	fmt.Println()
	fmt.Println("This wizard creates a cluster configuration with sensible defaults.")
	fmt.Println("You need a Talos template VM on your Proxmox host; its VMID is asked below.")
	fmt.Println()
}

func printInitSuccess(outputPath string, cfg *config.Config) {
	fmt.Println()
	fmt.Println("Configuration saved!")
	fmt.Println()
	fmt.Printf("  File: %s\n", outputPath)
	fmt.Println()

	fmt.Println("Cluster Summary")
	fmt.Println("---------------")
	fmt.Printf("  Name:           %s\n", cfg.ClusterName)
	fmt.Printf("  Proxmox host:   %s\n", cfg.ProxmoxHost)
	fmt.Printf("  Template VMID:  %d\n", cfg.TemplateVMID)
	fmt.Printf("  Control planes: %d x %dMB/%d cores\n", cfg.ControlPlanes.Count, cfg.ControlPlanes.MemoryMB, cfg.ControlPlanes.Cores)
	fmt.Printf("  Workers:        %d x %dMB/%d cores\n", cfg.Workers.Count, cfg.Workers.MemoryMB, cfg.Workers.Cores)
	fmt.Println()

	fmt.Println("Next Steps")
	fmt.Println("----------")
	fmt.Printf("  1. Review %s if needed\n", outputPath)
	fmt.Println()
	if cfg.SSHKeyPath == "" {
		fmt.Println("  2. Set the Proxmox host password:")
		fmt.Println("     export PROXTALOS_SSH_PASSWORD=<password>")
		fmt.Println()
	}
	fmt.Println("  3. Deploy your cluster:")
	fmt.Println("     proxtalos deploy")
	fmt.Println()
}
