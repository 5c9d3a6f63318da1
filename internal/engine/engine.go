// Package engine implements the coordination protocol state machine. The
// engine consumes parsed protocol events against the component registry,
// performs lifecycle transitions, and emits outbound messages through an
// injected deliverer.
//
// The engine holds no locks: all calls (inbound lines and timeout sweeps)
// must be serialized by the caller, typically a single event loop selecting
// over a line channel and a sweep ticker. Every transition is synchronous
// and atomic from the caller's point of view.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/astralkiln/magnetar/internal/journal"
	"github.com/astralkiln/magnetar/internal/protocol"
	"github.com/astralkiln/magnetar/internal/registry"
)

// Default recovery thresholds.
const (
	DefaultClaimExpiry     = 2 * time.Minute
	DefaultProgressTimeout = 10 * time.Minute
	DefaultMaxRetries      = 3
)

// Config holds the engine's time-based recovery knobs. Zero values fall
// back to the defaults above.
type Config struct {
	ClaimExpiry     time.Duration // claimed with no progress report beyond this gets released
	ProgressTimeout time.Duration // building with no progress report beyond this gets released
	MaxRetries      int           // audit failures tolerated before a forced release
}

func (c Config) withDefaults() Config {
	if c.ClaimExpiry == 0 {
		c.ClaimExpiry = DefaultClaimExpiry
	}
	if c.ProgressTimeout == 0 {
		c.ProgressTimeout = DefaultProgressTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Deliverer is the outbound side of the transport: a fire-and-forget text
// sink. The engine never awaits acknowledgment and never retries delivery.
type Deliverer interface {
	Deliver(text string)
}

// DeliverFunc adapts a plain function to the Deliverer interface.
type DeliverFunc func(text string)

// Deliver calls f(text).
func (f DeliverFunc) Deliver(text string) { f(text) }

// Engine owns and exclusively mutates one Build.
type Engine struct {
	build   *registry.Build
	cfg     Config
	deliver Deliverer
	rec     journal.Recorder
	log     zerolog.Logger
	now     func() time.Time
}

// New creates an engine for the given build. The deliverer may be nil, in
// which case outbound messages are dropped (useful in tests that only
// inspect registry state).
func New(build *registry.Build, cfg Config, deliver Deliverer) *Engine {
	return &Engine{
		build:   build,
		cfg:     cfg.withDefaults(),
		deliver: deliver,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
}

// WithLogger sets the operational logger. Advisory events (BLOCKED reports,
// ignored messages) go here, never to the protocol channel.
func (e *Engine) WithLogger(l zerolog.Logger) *Engine {
	e.log = l
	return e
}

// WithRecorder sets the journal recorder for transition observability.
func (e *Engine) WithRecorder(r journal.Recorder) *Engine {
	e.rec = r
	return e
}

// WithClock overrides the engine's clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// HandleLine parses one raw inbound line and applies it. Non-protocol text
// is ignored without diagnostics.
func (e *Engine) HandleLine(text, senderID string) {
	ev, ok := protocol.Parse(text, senderID)
	if !ok {
		return
	}
	e.Handle(ev)
}

// Handle applies one parsed protocol event.
func (e *Engine) Handle(ev protocol.Event) {
	switch ev.Kind {
	case protocol.KindClaim:
		e.handleClaim(ev)
	case protocol.KindProgress:
		e.handleProgress(ev)
	case protocol.KindReady:
		e.handleReady(ev)
	case protocol.KindBlocked:
		e.handleBlocked(ev)
	case protocol.KindAudit:
		e.handleAudit(ev)
	case protocol.KindAbort:
		e.handleAbort(ev)
	}
}

func (e *Engine) handleClaim(ev protocol.Event) {
	c := e.build.Component(ev.Component)
	if c == nil {
		e.reject(ev, ev.Component, "component not found")
		return
	}
	if c.Status != registry.StatusPending {
		reason := fmt.Sprintf("already %s", c.Status)
		if c.Assignee != "" {
			reason = fmt.Sprintf("already %s by %s", c.Status, c.Assignee)
		}
		e.reject(ev, c.Name, reason)
		return
	}
	if unmet := e.build.UnmetDependencies(ev.Component); len(unmet) > 0 {
		e.reject(ev, c.Name, "dependencies not met: "+strings.Join(unmet, ", "))
		return
	}

	c.Status = registry.StatusClaimed
	c.Assignee = ev.Sender
	c.ClaimedAt = e.now()
	c.RetryCount = 0
	e.send(protocol.RenderAck(c.Name, ev.Sender))
	e.record(journal.KindClaimAcked, c.Name, ev.Sender, "")
}

func (e *Engine) handleProgress(ev protocol.Event) {
	c := e.build.Component(ev.Component)
	if c == nil || c.Assignee == "" || c.Assignee != ev.Sender {
		e.log.Debug().Str("component", ev.Component).Str("sender", ev.Sender).
			Msg("ignoring progress from non-assignee")
		return
	}
	c.Status = registry.StatusBuilding
	c.LastProgressAt = e.now()
	e.record(journal.KindProgress, c.Name, ev.Sender, fmt.Sprintf("%d%%", ev.Percent))
}

func (e *Engine) handleReady(ev protocol.Event) {
	c := e.build.Component(ev.Component)
	if c == nil || c.Assignee == "" || c.Assignee != ev.Sender {
		e.log.Debug().Str("component", ev.Component).Str("sender", ev.Sender).
			Msg("ignoring ready from non-assignee")
		return
	}
	c.Status = registry.StatusReady
	c.ArtifactRef = ev.Ref
	e.record(journal.KindReady, c.Name, ev.Sender, ev.Ref)
}

// handleBlocked is advisory only: no state changes, no outbound message.
func (e *Engine) handleBlocked(ev protocol.Event) {
	e.log.Info().Str("component", ev.Component).Str("blocker", ev.Blocker).
		Str("sender", ev.Sender).Msg("agent reports blocked")
	e.record(journal.KindBlocked, ev.Component, ev.Sender, "on "+ev.Blocker)
}

func (e *Engine) handleAudit(ev protocol.Event) {
	c := e.build.Component(ev.Component)
	if c == nil {
		e.log.Debug().Str("component", ev.Component).Str("sender", ev.Sender).
			Msg("ignoring audit for unknown component")
		return
	}
	if ev.Passed {
		e.mergeComponent(c, ev)
		return
	}

	// Audit failure: the assignee keeps the claim and reworks the
	// component until retries run out, at which point the claim is
	// force-released and the component returns to the open pool.
	c.RetryCount++
	if c.RetryCount >= e.cfg.MaxRetries {
		e.release(c)
		e.send(protocol.RenderRetry(c.Name))
		e.record(journal.KindRetryExhaust, c.Name, ev.Sender, ev.Note)
		return
	}
	c.Status = registry.StatusBuilding
	e.record(journal.KindAuditFail, c.Name, ev.Sender, ev.Note)
}

func (e *Engine) mergeComponent(c *registry.Component, ev protocol.Event) {
	c.Status = registry.StatusMerged
	c.Assignee = ""
	c.ClaimedAt = time.Time{}
	c.LastProgressAt = time.Time{}
	e.send(protocol.RenderMerged(c.Name))
	e.record(journal.KindAuditPass, c.Name, ev.Sender, ev.Note)
	e.BroadcastTasks()
	if e.build.IsComplete() {
		e.send(protocol.RenderBuildComplete(e.build.ID))
		e.record(journal.KindBuildComplete, "", "", e.build.ID)
	}
}

func (e *Engine) handleAbort(ev protocol.Event) {
	c := e.build.Component(ev.Component)
	if c == nil || c.Assignee == "" || c.Assignee != ev.Sender {
		e.log.Debug().Str("component", ev.Component).Str("sender", ev.Sender).
			Msg("ignoring abort from non-assignee")
		return
	}
	e.release(c)
	e.record(journal.KindAbort, c.Name, ev.Sender, ev.Note)
	e.BroadcastTasks()
}

// release returns a component to the open pool, clearing every field tied
// to the released claim.
func (e *Engine) release(c *registry.Component) {
	c.Status = registry.StatusPending
	c.Assignee = ""
	c.ClaimedAt = time.Time{}
	c.LastProgressAt = time.Time{}
	c.ArtifactRef = ""
}

// BroadcastTasks renders and delivers the claimable-component list. Called
// at startup, after every abort, and after every successful audit.
func (e *Engine) BroadcastTasks() {
	names := e.Claimable()
	e.send(protocol.RenderTasks(e.build.ID, names))
	e.record(journal.KindTasks, "", "", strings.Join(names, ", "))
}

// Claimable returns the display names of currently claimable components,
// in registry order.
func (e *Engine) Claimable() []string {
	claimable := e.build.Claimable()
	names := make([]string, 0, len(claimable))
	for _, c := range claimable {
		names = append(names, c.Name)
	}
	return names
}

// Complete reports whether every component in the build is merged.
func (e *Engine) Complete() bool {
	return e.build.IsComplete()
}

// Snapshot returns a read-only copy of the registry for observability.
func (e *Engine) Snapshot() []registry.Component {
	return e.build.Snapshot()
}

func (e *Engine) reject(ev protocol.Event, name, reason string) {
	e.send(protocol.RenderReject(name, reason))
	e.record(journal.KindClaimRejected, name, ev.Sender, reason)
}

func (e *Engine) send(text string) {
	if e.deliver != nil {
		e.deliver.Deliver(text)
	}
}

func (e *Engine) record(kind, component, sender, detail string) {
	if e.rec == nil {
		return
	}
	e.rec.Record(journal.Entry{
		Ts:        e.now(),
		Kind:      kind,
		Component: component,
		Sender:    sender,
		Detail:    detail,
	})
}
