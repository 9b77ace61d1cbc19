package callcontrol

import (
	"context"
	"time"

	"github.com/callforge/switchboard/internal/logging"
	"github.com/callforge/switchboard/internal/registry"
)

// Reaper force-removes sessions older than the maximum call lifetime.
// It is the safety net for clients that crash or lose connectivity
// without completing the hang-up transition. Reaped sessions produce no
// terminal broadcasts; deletion is idempotent against a racing hang-up.
type Reaper struct {
	reg         *registry.Registry
	interval    time.Duration
	maxLifetime time.Duration
	log         *logging.Logger
	now         func() time.Time
}

// NewReaper creates a reaper sweeping reg on the given interval.
func NewReaper(reg *registry.Registry, interval, maxLifetime time.Duration, log *logging.Logger) *Reaper {
	return &Reaper{
		reg:         reg,
		interval:    interval,
		maxLifetime: maxLifetime,
		log:         log.Sub("reaper"),
		now:         time.Now,
	}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().
		Dur("interval", r.interval).
		Dur("maxLifetime", r.maxLifetime).
		Msg("reaper started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep removes every session at or beyond the maximum lifetime and
// returns how many were reaped.
func (r *Reaper) Sweep() int {
	now := r.now()
	reaped := 0
	for _, s := range r.reg.Snapshot() {
		if s.Age(now) < r.maxLifetime {
			continue
		}
		if r.reg.Delete(s.CallID) {
			reaped++
			r.log.Warn().
				Str("callId", s.CallID).
				Str("agentId", s.AgentID).
				Str("state", string(s.State)).
				Dur("age", s.Age(now)).
				Msg("reaped stale session")
		}
	}
	return reaped
}
