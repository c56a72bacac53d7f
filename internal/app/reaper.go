package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper periodically deletes empty rooms past a grace period. Normal
// teardown removes an emptied room immediately; the sweep is a backstop
// for rooms that were created but never joined, or whose teardown event
// was lost.
type Reaper struct {
	reg      *Registry
	interval time.Duration
	grace    time.Duration
}

func NewReaper(reg *Registry, interval, grace time.Duration) *Reaper {
	return &Reaper{reg: reg, interval: interval, grace: grace}
}

// Run sweeps until ctx is canceled. Started by the service at init,
// stopped with its shutdown context.
func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// Sweep runs one pass. Deletions are silent to clients: nobody subscribes
// to an already-empty room.
func (r *Reaper) Sweep() {
	removed := r.reg.SweepEmpty(time.Now().Add(-r.grace))
	for _, id := range removed {
		log.Info().Str("module", "app.reaper").Str("room", string(id)).Msg("cleaned up empty room")
	}
}
