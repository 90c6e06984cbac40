package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	BootPoll        time.Duration // Poll interval while waiting for a cloned VM to start
	BootRetries     int           // Maximum status polls before giving up on a booting VM
	Discover        time.Duration // Total budget for guest-agent address discovery
	DiscoverPoll    time.Duration // Poll interval for address discovery
	Reachability    time.Duration // Budget for the post-discovery reachability probe
	TalosAPI        time.Duration // Budget for waiting on the Talos API port
	Settle          time.Duration // Unconditional wait between config apply and bootstrap
	Membership      time.Duration // Total budget for cluster membership verification
	MembershipPoll  time.Duration // Poll interval for membership verification
	StopDestroy     time.Duration // Per-VM budget during rollback and teardown
	KubeconfigFetch time.Duration // Budget for retrieving the kubeconfig after bootstrap
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - PROXTALOS_TIMEOUT_BOOT_POLL (default: 5s)
//   - PROXTALOS_BOOT_MAX_RETRIES (default: 60)
//   - PROXTALOS_TIMEOUT_DISCOVER (default: 10m)
//   - PROXTALOS_TIMEOUT_DISCOVER_POLL (default: 10s)
//   - PROXTALOS_TIMEOUT_REACHABILITY (default: 1m)
//   - PROXTALOS_TIMEOUT_TALOS_API (default: 5m)
//   - PROXTALOS_TIMEOUT_SETTLE (default: 2m)
//   - PROXTALOS_TIMEOUT_MEMBERSHIP (default: 15m)
//   - PROXTALOS_TIMEOUT_MEMBERSHIP_POLL (default: 30s)
//   - PROXTALOS_TIMEOUT_STOP_DESTROY (default: 2m)
//   - PROXTALOS_TIMEOUT_KUBECONFIG (default: 5m)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		BootPoll:        parseDuration("PROXTALOS_TIMEOUT_BOOT_POLL", 5*time.Second),
		BootRetries:     parseInt("PROXTALOS_BOOT_MAX_RETRIES", 60),
		Discover:        parseDuration("PROXTALOS_TIMEOUT_DISCOVER", 10*time.Minute),
		DiscoverPoll:    parseDuration("PROXTALOS_TIMEOUT_DISCOVER_POLL", 10*time.Second),
		Reachability:    parseDuration("PROXTALOS_TIMEOUT_REACHABILITY", time.Minute),
		TalosAPI:        parseDuration("PROXTALOS_TIMEOUT_TALOS_API", 5*time.Minute),
		Settle:          parseDuration("PROXTALOS_TIMEOUT_SETTLE", 2*time.Minute),
		Membership:      parseDuration("PROXTALOS_TIMEOUT_MEMBERSHIP", 15*time.Minute),
		MembershipPoll:  parseDuration("PROXTALOS_TIMEOUT_MEMBERSHIP_POLL", 30*time.Second),
		StopDestroy:     parseDuration("PROXTALOS_TIMEOUT_STOP_DESTROY", 2*time.Minute),
		KubeconfigFetch: parseDuration("PROXTALOS_TIMEOUT_KUBECONFIG", 5*time.Minute),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return i
}
