// Package provisioning provides the shared types and phase pipeline for
// cluster deployment.
//
// The deployment domain is organized into focused subpackages:
//   - compute/ — VM allocation, boot, and address discovery
//   - cluster/ — Talos configuration and the bootstrap sequence
//   - destroy/ — teardown of a persisted cluster map
//
// This root package contains the shared interfaces, the per-run state, and
// the rollback logic used across subpackages.
package provisioning
