package provisioning

import "context"

// Rollback stops and destroys every VM the run allocated, in allocation
// order. It is best-effort: each failure is logged and processing continues,
// so a partial hypervisor outage leaves as few orphans as possible. Rollback
// deliberately ignores the (likely cancelled) run context and uses a fresh
// background context with a per-VM deadline.
func Rollback(ctx *Context) {
	if len(ctx.State.AllocatedVMIDs) == 0 {
		ctx.Observer.Printf("Rollback: no VMs were allocated, nothing to clean up")
		return
	}

	ctx.Observer.Printf("Rolling back %d allocated VM(s)...", len(ctx.State.AllocatedVMIDs))

	for _, vmid := range ctx.State.AllocatedVMIDs {
		opCtx, cancel := context.WithTimeout(context.Background(), ctx.Timeouts.StopDestroy)

		if err := ctx.VMs.Stop(opCtx, vmid); err != nil {
			ctx.Observer.Printf("Rollback: stop VM %d: %v", vmid, err)
		}
		if err := ctx.VMs.Destroy(opCtx, vmid); err != nil {
			ctx.Observer.Printf("Rollback: destroy VM %d: %v", vmid, err)
		} else {
			ctx.Observer.Printf("Rollback: destroyed VM %d", vmid)
		}

		cancel()
	}
}
