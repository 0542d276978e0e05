package tuner

import (
	"context"
	"time"
)

// Runner drives a Tuner on a fixed interval from a single goroutine.
type Runner struct {
	Tuner    *Tuner
	Applier  Applier
	Observer Observer // optional

	// Tick overrides the ticker channel; tests use it to step rounds by hand.
	Tick <-chan time.Time
}

// Step runs one round, applies its changes and notifies the observer.
func (r *Runner) Step() Report {
	report := r.Tuner.Tune()
	var err error
	if len(report.Changes) > 0 && r.Applier != nil {
		err = r.Applier.ApplyChanges(report.Changes)
	}
	if r.Observer != nil {
		r.Observer.Observe(report, err)
	}
	return report
}

// Run steps the tuner once per interval until ctx is done. Applier errors are
// passed to the observer and do not stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	tick := r.Tick
	if tick == nil {
		ticker := time.NewTicker(r.Tuner.Interval())
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			r.Step()
		}
	}
}
