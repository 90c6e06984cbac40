package proxmox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sidstack/proxtalos/internal/util/retry"
)

// Client exposes VM lifecycle operations on a Proxmox VE host. Every
// operation is one Executor call plus output inspection.
type Client struct {
	exec Executor
}

// NewClient creates a Client on top of an Executor.
func NewClient(exec Executor) *Client {
	return &Client{exec: exec}
}

// NextID queries the host for the next available VMID.
func (c *Client) NextID(ctx context.Context) (int, error) {
	output, err := c.exec.Execute(ctx, "pvesh get /cluster/nextid")
	if err != nil {
		return 0, fmt.Errorf("failed to get next available VMID: %w", err)
	}
	id, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("unexpected nextid output %q: %w", strings.TrimSpace(output), err)
	}
	return id, nil
}

// Clone performs a full clone of the template VM into a new VMID.
func (c *Client) Clone(ctx context.Context, templateVMID, newVMID int, name string) error {
	cmd := fmt.Sprintf("qm clone %d %d --full --name '%s'", templateVMID, newVMID, name)
	return c.run(ctx, cmd, fmt.Sprintf("clone VM %d to %d", templateVMID, newVMID))
}

// Resize sets the memory and core count of a VM.
func (c *Client) Resize(ctx context.Context, vmid, memoryMB, cores int) error {
	cmd := fmt.Sprintf("qm set %d --memory %d --cores %d", vmid, memoryMB, cores)
	return c.run(ctx, cmd, fmt.Sprintf("set resources for VM %d", vmid))
}

// Start starts a VM.
func (c *Client) Start(ctx context.Context, vmid int) error {
	return c.run(ctx, fmt.Sprintf("qm start %d", vmid), fmt.Sprintf("start VM %d", vmid))
}

// Stop stops a VM.
func (c *Client) Stop(ctx context.Context, vmid int) error {
	return c.run(ctx, fmt.Sprintf("qm stop %d", vmid), fmt.Sprintf("stop VM %d", vmid))
}

// Destroy removes a VM and purges all of its disks and references. There is
// no recoverable trash state after this call.
func (c *Client) Destroy(ctx context.Context, vmid int) error {
	return c.run(ctx, fmt.Sprintf("qm destroy %d --purge", vmid), fmt.Sprintf("destroy VM %d", vmid))
}

// Status returns the raw status output for a VM.
func (c *Client) Status(ctx context.Context, vmid int) (string, error) {
	return c.exec.Execute(ctx, fmt.Sprintf("qm status %d", vmid))
}

// AwaitRunning polls the VM status until the host reports it running.
// The wait is bounded: polling starts at the configured interval, backs off
// to 30s, and gives up after maxRetries attempts with a timeout error —
// booting a freshly cloned disk image has no hard SLA, but an unbounded
// wait would leave a stuck deployment hanging forever. A status query that
// fails outright means the connection to the host is gone, not that the VM
// is still booting, so that ends the wait at once.
func (c *Client) AwaitRunning(ctx context.Context, vmid int, interval time.Duration, maxRetries int) error {
	err := retry.Do(ctx, func() error {
		status, statusErr := c.Status(ctx, vmid)
		if statusErr != nil {
			return retry.Permanent(fmt.Errorf("failed to get status for VM %d: %w", vmid, statusErr))
		}
		if strings.Contains(status, "status: running") {
			return nil
		}
		return fmt.Errorf("VM %d is not running yet (%s)", vmid, strings.TrimSpace(status))
	},
		retry.Attempts(maxRetries),
		retry.BaseDelay(interval),
		retry.MaxDelay(30*time.Second),
	)
	if err != nil {
		if retry.IsPermanent(err) {
			return fmt.Errorf("waiting for VM %d to start: %w", vmid, err)
		}
		return fmt.Errorf("timed out waiting for VM %d to start: %w", vmid, err)
	}
	return nil
}

// run executes a lifecycle command and converts textual error markers in
// the output into failures. Proxmox CLI tools report many errors on stdout
// with a zero exit status, so the marker check stays necessary here.
func (c *Client) run(ctx context.Context, cmd, action string) error {
	output, err := c.exec.Execute(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if strings.Contains(strings.ToLower(output), "error") {
		return fmt.Errorf("failed to %s: %s", action, strings.TrimSpace(output))
	}
	return nil
}
