package provisioning

import (
	"fmt"
	"time"
)

// RunPhases drives the deployment phases in order, stopping at the first
// failure so the caller can decide whether to roll the allocated VMs back.
// Phase boundaries are reported as structured events; a log reader should be
// able to tell which phase a run died in and how long each one took.
func RunPhases(ctx *Context, phases []Phase) error {
	start := time.Now()

	for i, phase := range phases {
		phaseStart := time.Now()
		obs := ctx.Observer.WithFields(map[string]string{
			"step": fmt.Sprintf("%d/%d", i+1, len(phases)),
		})

		obs.Event(Event{
			Type:  EventPhaseStarted,
			Phase: phase.Name(),
		})

		if err := phase.Provision(ctx); err != nil {
			obs.Event(Event{
				Type:    EventPhaseFailed,
				Phase:   phase.Name(),
				Message: err.Error(),
			})
			return fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		}

		obs.Event(Event{
			Type:    EventPhaseCompleted,
			Phase:   phase.Name(),
			Message: fmt.Sprintf("took %v", time.Since(phaseStart).Round(time.Millisecond)),
		})
	}

	ctx.Observer.Printf("All %d phases completed in %v", len(phases), time.Since(start).Round(time.Millisecond))
	return nil
}
