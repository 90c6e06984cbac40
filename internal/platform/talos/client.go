package talos

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/siderolabs/talos/pkg/machinery/api/machine"
	"github.com/siderolabs/talos/pkg/machinery/client"
	clientconfig "github.com/siderolabs/talos/pkg/machinery/client/config"

	"github.com/sidstack/proxtalos/internal/netutil"
)

// ApplyConfig applies a machine configuration to a node that is still in
// maintenance mode. Fresh Talos nodes boot without credentials, so the
// initial apply must use an insecure connection.
func ApplyConfig(ctx context.Context, nodeIP string, machineConfig []byte, portWait time.Duration) error {
	if err := netutil.WaitForPort(ctx, nodeIP, netutil.TalosAPIPort, portWait); err != nil {
		return fmt.Errorf("failed to wait for Talos API on %s: %w", nodeIP, err)
	}

	clientCtx, err := client.New(ctx,
		client.WithEndpoints(nodeIP),
		//nolint:gosec // InsecureSkipVerify is required for Talos maintenance mode
		client.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
	)
	if err != nil {
		return fmt.Errorf("failed to create talos client: %w", err)
	}
	defer func() { _ = clientCtx.Close() }()

	applyReq := &machine.ApplyConfigurationRequest{
		Data: machineConfig,
		Mode: machine.ApplyConfigurationRequest_REBOOT,
	}

	if _, err := clientCtx.ApplyConfiguration(ctx, applyReq); err != nil {
		return fmt.Errorf("failed to apply configuration to %s: %w", nodeIP, err)
	}

	return nil
}

// Bootstrap issues the one-time etcd bootstrap call against the first
// control plane node. The client config is passed explicitly so the call
// carries no ambient state.
func Bootstrap(ctx context.Context, endpoint string, clientConfig []byte) error {
	cfg, err := clientconfig.FromString(string(clientConfig))
	if err != nil {
		return fmt.Errorf("failed to parse client config: %w", err)
	}

	clientCtx, err := client.New(ctx, client.WithConfig(cfg), client.WithEndpoints(endpoint))
	if err != nil {
		return fmt.Errorf("failed to create talos client: %w", err)
	}
	defer func() { _ = clientCtx.Close() }()

	if err := clientCtx.Bootstrap(ctx, &machine.BootstrapRequest{}); err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}

	return nil
}

// Kubeconfig retrieves the cluster kubeconfig through the given control
// plane node, polling until the Kubernetes API has issued one or the
// timeout elapses.
func Kubeconfig(ctx context.Context, endpoint string, clientConfig []byte, interval, timeout time.Duration) ([]byte, error) {
	cfg, err := clientconfig.FromString(string(clientConfig))
	if err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}

	clientCtx, err := client.New(ctx, client.WithConfig(cfg), client.WithEndpoints(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create talos client: %w", err)
	}
	defer func() { _ = clientCtx.Close() }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for kubeconfig from %s", endpoint)
		case <-ticker.C:
			kubeconfigBytes, err := clientCtx.Kubeconfig(ctx)
			if err == nil && len(kubeconfigBytes) > 0 {
				return kubeconfigBytes, nil
			}
		}
	}
}
