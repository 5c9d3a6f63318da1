package engine

import (
	"github.com/astralkiln/magnetar/internal/journal"
	"github.com/astralkiln/magnetar/internal/protocol"
	"github.com/astralkiln/magnetar/internal/registry"
)

// Sweep scans every component for expired claims and stalled builds,
// releasing each offender back to the open pool with a TIMEOUT message.
//
// The engine never schedules sweeps itself; the caller invokes Sweep on a
// regular cadence. Sweeps are idempotent: running back-to-back sweeps with
// no intervening events releases nothing on the second pass, and a skipped
// sweep only delays detection.
func (e *Engine) Sweep() {
	// One snapshot of now for the whole pass, so every component is
	// judged against the same instant.
	now := e.now()

	for _, c := range e.build.Components() {
		switch c.Status {
		case registry.StatusClaimed:
			age := now.Sub(c.ClaimedAt)
			if age <= e.cfg.ClaimExpiry {
				continue
			}
			e.log.Info().Str("component", c.Name).Str("assignee", c.Assignee).
				Dur("age", age).Msg("claim expired, releasing")
			e.timeoutRelease(c)
		case registry.StatusBuilding:
			// A component that reached building through an audit failure
			// may have no progress report yet; it is exempt until the
			// first PROGRESS arrives.
			if c.LastProgressAt.IsZero() {
				continue
			}
			idle := now.Sub(c.LastProgressAt)
			if idle <= e.cfg.ProgressTimeout {
				continue
			}
			e.log.Info().Str("component", c.Name).Str("assignee", c.Assignee).
				Dur("idle", idle).Msg("build stalled, releasing")
			e.timeoutRelease(c)
		}
	}
}

func (e *Engine) timeoutRelease(c *registry.Component) {
	assignee := c.Assignee
	e.release(c)
	e.send(protocol.RenderTimeout(c.Name))
	e.record(journal.KindTimeout, c.Name, assignee, "")
}
