package provisioning

import (
	"context"
	"time"

	"github.com/sidstack/proxtalos/internal/config"
	"github.com/sidstack/proxtalos/internal/netutil"
)

// Context wraps all dependencies and state needed for a provisioning phase.
type Context struct {
	context.Context
	Config   *config.Config
	State    *State
	VMs      VMController
	Talos    ConfigProducer
	Machine  MachineAPI
	Verifier MembershipVerifier
	Probe    ReachabilityProbe
	Observer Observer
	Timeouts *config.Timeouts
}

// NewContext creates a new provisioning context.
func NewContext(
	ctx context.Context,
	cfg *config.Config,
	vms VMController,
	talos ConfigProducer,
	machine MachineAPI,
	verifier MembershipVerifier,
) *Context {
	return &Context{
		Context:  ctx,
		Config:   cfg,
		State:    NewState(),
		VMs:      vms,
		Talos:    talos,
		Machine:  machine,
		Verifier: verifier,
		Probe:    probeTalosAPI,
		Observer: NewConsoleObserver(),
		Timeouts: config.LoadTimeouts(),
	}
}

func probeTalosAPI(ctx context.Context, ip string, timeout time.Duration) error {
	return netutil.WaitForPort(ctx, ip, netutil.TalosAPIPort, timeout)
}
