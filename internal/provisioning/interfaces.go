package provisioning

import (
	"context"
	"time"
)

// Phase is a single, named step of the deployment pipeline. A phase reads and
// mutates the run's State through the Context and reports the first error it
// cannot recover from.
type Phase interface {
	Name() string
	Provision(ctx *Context) error
}

// VMController drives the lifecycle of virtual machines on the hypervisor.
// Implemented by proxmox.Client.
type VMController interface {
	NextID(ctx context.Context) (int, error)
	Clone(ctx context.Context, templateVMID, newVMID int, name string) error
	Resize(ctx context.Context, vmid, memoryMB, cores int) error
	Start(ctx context.Context, vmid int) error
	Stop(ctx context.Context, vmid int) error
	Destroy(ctx context.Context, vmid int) error
	AwaitRunning(ctx context.Context, vmid int, interval time.Duration, maxRetries int) error
	DiscoverAddress(ctx context.Context, vmid int, timeout, interval time.Duration) (string, error)
}

// ConfigProducer generates Talos machine and client configuration documents.
// Implemented by talos.Generator.
type ConfigProducer interface {
	SetEndpoint(endpoint string)
	GenerateControlPlaneConfig(hostname string) ([]byte, error)
	GenerateWorkerConfig(hostname string) ([]byte, error)
	GetClientConfig() ([]byte, error)
}

// MachineAPI talks to the Talos API on provisioned nodes.
type MachineAPI interface {
	ApplyConfig(ctx context.Context, nodeIP string, machineConfig []byte, portWait time.Duration) error
	Bootstrap(ctx context.Context, endpoint string, clientConfig []byte) error
	Kubeconfig(ctx context.Context, endpoint string, clientConfig []byte, interval, timeout time.Duration) ([]byte, error)
}

// MembershipVerifier confirms that the expected number of nodes registered
// with the Kubernetes API.
type MembershipVerifier interface {
	WaitForNodeCount(ctx context.Context, kubeconfig []byte, expected int, interval, timeout time.Duration) error
}

// ReachabilityProbe checks that a node's Talos API endpoint accepts TCP
// connections before configuration is attempted.
type ReachabilityProbe func(ctx context.Context, ip string, timeout time.Duration) error
