// Package naming provides consistent naming functions for cluster resources.
//
// Node names follow the pattern {cluster}-{role}-{vmid}. Embedding the
// Proxmox VMID keeps names unique across deployments and lets teardown
// report which VM a name belongs to without extra lookups.
package naming
