// Package cluster turns a set of booted Talos machines into a Kubernetes
// cluster: it generates machine configurations, applies them per role,
// bootstraps etcd on the first control plane, retrieves the kubeconfig, and
// verifies that all nodes registered.
package cluster
