package bridge

import (
	"errors"
	"log/slog"

	"github.com/user/linkbridge/internal/effects"
	"github.com/user/linkbridge/internal/ingest"
	"github.com/user/linkbridge/internal/linkbus"
	"github.com/user/linkbridge/internal/relay"
	"github.com/user/linkbridge/internal/trap"
	"github.com/user/linkbridge/internal/types"
)

// applyInbound runs on the host for each drained event. The broadcast's
// local handler does the actual work, so host and peers share one path.
// When the network no longer sees us as host the event is deferred and
// stays unconsumed for whoever drains it next.
func (c *Core) applyInbound(ev types.InboundEvent) error {
	err := c.relay.Publish(relay.ItemApplied{Index: ev.Index, Name: ev.Name, Sender: ev.SourcePlayer})
	if errors.Is(err, relay.ErrNotHost) {
		return ingest.ErrDeferred
	}
	if err != nil {
		slog.Warn("publish failed", "kind", string(relay.KindItemApplied), "error", err)
	}
	return nil
}

func (c *Core) applyEffect(name string, fromLink bool) error {
	eff, err := c.catalog.Lookup(name)
	if errors.Is(err, effects.ErrUnknownEffect) {
		slog.Warn("skipping unknown effect", "effect", name)
		return nil
	}
	if err != nil {
		return err
	}
	return eff.Accept(effectVisitor{core: c, fromLink: fromLink})
}

type effectVisitor struct {
	core     *Core
	fromLink bool
}

func (v effectVisitor) VisitTrap(e effects.Trap) error {
	entry := trap.Entry{EffectID: e.Name, FromLink: v.fromLink}
	if v.fromLink {
		v.core.traps.EnqueuePriority(entry)
	} else {
		v.core.traps.Enqueue(entry)
	}
	return nil
}

func (v effectVisitor) VisitStatus(e effects.Status) error {
	v.core.applier.ApplyStatus(e.Status, e.Amount)
	return nil
}

func (v effectVisitor) VisitTimed(e effects.Timed) error {
	v.core.timers.Start(e, v.core.now)
	return nil
}

func (v effectVisitor) VisitGrant(e effects.Grant) error {
	v.core.applier.Apply(e.Name, v.fromLink)
	return nil
}

func (c *Core) applyTimedStep(e effects.Timed, step int) error {
	c.applier.ApplyStatus(e.Status, e.Amount)
	return nil
}

// dispatchTrap lands one trap. The host mirrors locally sourced traps onto
// TrapLink; traps that came from the bus are never sent back.
func (c *Core) dispatchTrap(e trap.Entry) error {
	c.applier.Apply(e.EffectID, e.FromLink)
	if !c.host || e.FromLink {
		return nil
	}
	bus, ok := c.router.Bus(linkbus.TagTrap)
	if !ok || !bus.Enabled() {
		return nil
	}
	std, ok := c.names.ToStandard(e.EffectID)
	if !ok {
		return nil
	}
	bus.Send(linkbus.Message{Name: std})
	return nil
}

// onLinkReceived runs on the host for link messages from other clients.
func (c *Core) onLinkReceived(msg linkbus.Message) error {
	c.publish(relay.LinkApplied{Tag: msg.Tag, Name: msg.Name, Amount: msg.Amount})
	return nil
}

func (c *Core) applyLink(m relay.LinkApplied) {
	switch m.Tag {
	case linkbus.TagDeath:
		if c.opts.DeathEffect == "" {
			return
		}
		slog.Info("death link received", "cause", m.Name)
		c.applier.Apply(c.opts.DeathEffect, true)
	case linkbus.TagTrap:
		local, ok := c.names.ToLocal(m.Name)
		if !ok {
			slog.Debug("dropping unmapped trap link", "trap", m.Name)
			return
		}
		c.traps.EnqueuePriority(trap.Entry{EffectID: local, FromLink: true})
	case linkbus.TagRing:
		if c.opts.RingStatus == "" || m.Amount == 0 {
			return
		}
		c.applier.ApplyStatus(c.opts.RingStatus, float64(m.Amount))
	default:
		slog.Debug("ignoring link with unknown tag", "tag", m.Tag)
	}
}

type uplink struct {
	core *Core
}

func (u uplink) RequestContribute(amount int64) error {
	return u.core.relay.Request(relay.PoolContribute{Amount: amount})
}

func (u uplink) RequestConsume(amount int64) error {
	return u.core.relay.Request(relay.PoolConsume{Amount: amount})
}
