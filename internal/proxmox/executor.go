package proxmox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sidstack/proxtalos/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultUser        = "root"
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 10
	defaultRetryDelay  = 5 * time.Second
	defaultMaxDelay    = 10 * time.Second

	// agentNotReadyMarker is the benign error qm emits while a freshly
	// booted guest has not started its agent yet.
	agentNotReadyMarker = "QEMU guest agent is not running"
)

// ErrAgentNotReady reports that the QEMU guest agent inside a VM has not
// come up yet. Polling callers treat it as "not yet" rather than a failure.
var ErrAgentNotReady = errors.New("qemu guest agent is not running")

// Executor runs a command on the Proxmox host and returns its output.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// SSHConfig holds the connection settings for the Proxmox host.
type SSHConfig struct {
	Host string
	Port int
	User string

	// PrivateKey is tried first when present. Password is the fallback,
	// mirroring how operators typically reach a PVE host.
	PrivateKey []byte
	Password   string

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, a default is used.
	DialTimeout time.Duration

	// MaxRetries is the total number of connection attempts before
	// giving up.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification. If nil,
	// ssh.InsecureIgnoreHostKey() is used, which matches the ephemeral
	// homelab environments this tool targets.
	HostKeyCallback ssh.HostKeyCallback
}

// SSHExecutor executes commands over one persistent SSH connection to the
// Proxmox host. The connection is established once per top-level operation
// with Connect and must be released with Close on every exit path.
type SSHExecutor struct {
	config *SSHConfig
	auth   []ssh.AuthMethod
	client *ssh.Client
}

// NewSSHExecutor validates the configuration and prepares the credential
// chain. No connection is made until Connect is called.
func NewSSHExecutor(cfg *SSHConfig) (*SSHExecutor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 && cfg.Password == "" {
		return nil, fmt.Errorf("config needs a private key or a password")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.User == "" {
		configCopy.User = defaultUser
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxRetries == 0 {
		configCopy.MaxRetries = defaultMaxRetries
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // Homelab hosts rarely have pinned keys
	}

	var auth []ssh.AuthMethod
	if len(configCopy.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if configCopy.Password != "" {
		auth = append(auth, ssh.Password(configCopy.Password))
	}

	return &SSHExecutor{config: &configCopy, auth: auth}, nil
}

// Connect establishes the persistent SSH connection with retry logic.
func (e *SSHExecutor) Connect(ctx context.Context) error {
	if e.client != nil {
		return nil
	}

	config := &ssh.ClientConfig{
		User:            e.config.User,
		Auth:            e.auth,
		HostKeyCallback: e.config.HostKeyCallback,
		Timeout:         e.config.DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	var client *ssh.Client

	err := retry.Do(ctx, func() error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		return dialErr
	},
		retry.Attempts(e.config.MaxRetries),
		retry.BaseDelay(e.config.RetryDelay),
		retry.MaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}

	e.client = client
	return nil
}

// Close releases the persistent connection. Safe to call multiple times.
func (e *SSHExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// Execute runs a command through the persistent connection. Stdout is the
// result; a non-empty stderr stream counts as a failure, with the guest
// agent's "not running" message mapped to ErrAgentNotReady so polling
// callers can keep waiting.
func (e *SSHExecutor) Execute(ctx context.Context, command string) (string, error) {
	if e.client == nil {
		return "", fmt.Errorf("not connected to %s (call Connect first)", e.config.Host)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	session, err := e.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", e.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(command)

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		if strings.Contains(msg, agentNotReadyMarker) {
			return "", fmt.Errorf("%w: %s", ErrAgentNotReady, msg)
		}
		return stdout.String(), fmt.Errorf("command failed on %s: %s\nCommand: %s", e.config.Host, msg, command)
	}
	if runErr != nil {
		return stdout.String(), fmt.Errorf("command failed on %s: %w\nCommand: %s\nOutput: %s",
			e.config.Host, runErr, command, stdout.String())
	}

	return stdout.String(), nil
}
