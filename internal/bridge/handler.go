package bridge

import (
	"log/slog"
	"strconv"

	"github.com/user/linkbridge/internal/relay"
	"github.com/user/linkbridge/internal/types"
)

// handler is the relay handler shared by every peer, host included.
type handler struct {
	core *Core
}

func (h handler) OnItemApplied(m relay.ItemApplied) error {
	c := h.core
	if !c.store.Advance(m.Index) {
		return nil
	}
	if m.Name == "" {
		slog.Warn("skipping unnamed item", "index", m.Index)
		return nil
	}
	slog.Info("applying item", "index", m.Index, "effect", m.Name, "sender", m.Sender)
	return c.applyEffect(m.Name, false)
}

func (h handler) OnCheckCompleted(m relay.CheckCompleted) error {
	c := h.core
	c.store.MarkReported(m.ID)
	if m.Name != "" {
		c.knownChecks[m.Name] = m.ID
		delete(c.pendingChecks, m.Name)
	}
	return nil
}

func (h handler) OnPoolChanged(m relay.PoolChanged) error {
	c := h.core
	if !c.pool.OnRemoteChange(m.Value) {
		return nil
	}
	c.store.SetSubState(subStatePool, strconv.FormatInt(c.pool.Value(), 10))
	return c.store.Save()
}

func (h handler) OnLinkApplied(m relay.LinkApplied) error {
	h.core.applyLink(m)
	return nil
}

func (h handler) OnReportCheck(from types.PeerID, req relay.ReportCheck) error {
	if !h.core.reportCheckAsHost(req.Name) {
		slog.Debug("peer check not reported", "check", req.Name, "from", string(from))
	}
	return nil
}

func (h handler) OnPoolContribute(from types.PeerID, req relay.PoolContribute) error {
	return h.core.pool.Contribute(req.Amount)
}

func (h handler) OnPoolConsume(from types.PeerID, req relay.PoolConsume) error {
	if !h.core.pool.Consume(req.Amount) {
		slog.Info("peer pool consume rejected", "amount", req.Amount, "pool", h.core.pool.Value(), "from", string(from))
	}
	return nil
}

func (h handler) OnLinkSend(from types.PeerID, req relay.LinkSend) error {
	return h.core.SendLink(req.Tag, req.Name, req.Amount)
}
