package proxmox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// guestInterface mirrors one entry of the guest agent's
// network-get-interfaces payload.
type guestInterface struct {
	Name        string         `json:"name"`
	IPAddresses []guestAddress `json:"ip-addresses"`
}

type guestAddress struct {
	Type    string `json:"ip-address-type"`
	Address string `json:"ip-address"`
	Prefix  int    `json:"prefix"`
}

// DiscoverAddress polls the guest agent for the VM's network interfaces and
// returns the first IPv4 address that is not loopback. Agent-not-ready,
// connection hiccups, and malformed payloads are treated as transient and
// polling continues; an empty string plus an error is returned once the
// timeout elapses.
func (c *Client) DiscoverAddress(ctx context.Context, vmid int, timeout, interval time.Duration) (string, error) {
	cmd := fmt.Sprintf("qm guest cmd %d network-get-interfaces", vmid)

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		output, err := c.exec.Execute(ctx, cmd)
		switch {
		case errors.Is(err, ErrAgentNotReady):
			// Guest is still booting.
		case err != nil:
			// Transient executor failure, keep polling.
		default:
			if ip := firstUsableIPv4(output); ip != "" {
				return ip, nil
			}
		}

		if time.Now().Add(interval).After(deadline) {
			return "", fmt.Errorf("failed to discover an address for VM %d within %s", vmid, timeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

// firstUsableIPv4 parses the guest agent payload and picks the first IPv4
// address that is neither absent nor loopback. A parse failure returns ""
// so the caller keeps polling: partially started agents emit garbage.
func firstUsableIPv4(payload string) string {
	var interfaces []guestInterface
	if err := json.Unmarshal([]byte(payload), &interfaces); err != nil {
		return ""
	}
	for _, iface := range interfaces {
		for _, addr := range iface.IPAddresses {
			if addr.Type == "ipv4" && addr.Address != "" && addr.Address != "127.0.0.1" {
				return addr.Address
			}
		}
	}
	return ""
}
