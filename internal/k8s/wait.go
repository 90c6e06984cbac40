package k8s

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

// WaitForNodeCount polls the cluster until it reports exactly expected
// nodes. The first check happens immediately so a cluster that is already
// complete succeeds without waiting an interval. API errors during polling
// are treated as transient; only the deadline ends the wait.
func (c *Client) WaitForNodeCount(ctx context.Context, expected int, interval, timeout time.Duration) error {
	var lastCount int
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		count, err := c.NodeCount(ctx)
		if err != nil {
			return false, nil
		}
		lastCount = count
		return count == expected, nil
	})
	if err != nil {
		return fmt.Errorf("cluster reported %d of %d expected nodes before the deadline: %w", lastCount, expected, err)
	}
	return nil
}
