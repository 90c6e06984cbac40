package k8s

import (
	"context"
	"fmt"
	"time"
)

// Verifier checks cluster membership using a kubeconfig produced during
// bootstrap.
type Verifier struct{}

// WaitForNodeCount builds a client from the given kubeconfig and waits until
// the cluster reports the expected number of nodes.
func (Verifier) WaitForNodeCount(ctx context.Context, kubeconfig []byte, expected int, interval, timeout time.Duration) error {
	client, err := NewClientFromBytes(kubeconfig)
	if err != nil {
		return fmt.Errorf("build Kubernetes client: %w", err)
	}
	return client.WaitForNodeCount(ctx, expected, interval, timeout)
}
