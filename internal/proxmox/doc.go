// Package proxmox controls virtual machines on a Proxmox VE host.
//
// All operations are built on a single primitive: executing a qm/pvesh
// command over SSH on the host and inspecting its output. The [Executor]
// interface isolates that primitive so the VM lifecycle logic can be
// tested against a fake, and so the free-text error detection stays an
// adapter concern at this boundary.
package proxmox
