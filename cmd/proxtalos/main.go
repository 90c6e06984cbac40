// Package main is the entry point for the proxtalos CLI.
//
// proxtalos provisions Kubernetes clusters on a Proxmox VE host using
// Talos Linux. It clones VMs from a prepared template, bootstraps Talos
// on them, and leaves behind a cluster map that the destroy command
// consumes for teardown.
//
// Commands: init, deploy, destroy, version.
//
// For detailed usage information, run:
//
//	proxtalos --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sidstack/proxtalos/cmd/proxtalos/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// An interrupt cancels the command context rather than killing the
	// process, so in-flight waits stop cleanly, rollback still runs, and
	// the SSH connection is closed. A second interrupt kills immediately.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
