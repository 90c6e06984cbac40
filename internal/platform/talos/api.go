package talos

import (
	"context"
	"time"
)

// API exposes the Talos machine API operations behind a value type, so
// callers can depend on an interface and tests can substitute a fake.
type API struct{}

// ApplyConfig applies a machine configuration to a node in maintenance mode.
func (API) ApplyConfig(ctx context.Context, nodeIP string, machineConfig []byte, portWait time.Duration) error {
	return ApplyConfig(ctx, nodeIP, machineConfig, portWait)
}

// Bootstrap initializes etcd on the given control plane endpoint.
func (API) Bootstrap(ctx context.Context, endpoint string, clientConfig []byte) error {
	return Bootstrap(ctx, endpoint, clientConfig)
}

// Kubeconfig retrieves the cluster kubeconfig from a control plane endpoint.
func (API) Kubeconfig(ctx context.Context, endpoint string, clientConfig []byte, interval, timeout time.Duration) ([]byte, error) {
	return Kubeconfig(ctx, endpoint, clientConfig, interval, timeout)
}
