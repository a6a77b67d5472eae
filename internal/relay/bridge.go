package relay

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/linkbridge/internal/types"
)

var (
	ErrNoHost  = errors.New("relay: no reachable host")
	ErrNotHost = errors.New("relay: not the host")
)

// Network is the room network as seen by one peer. Broadcast reaches every
// other peer; the caller handles its own copy.
type Network interface {
	LocalID() types.PeerID
	IsHost() bool
	Broadcast(env Envelope) error
	SendToHost(env Envelope) error
}

// Handler applies relay messages. Every peer, host included, runs the same
// downlink methods. Uplink methods only run on the host.
type Handler interface {
	OnItemApplied(ItemApplied) error
	OnCheckCompleted(CheckCompleted) error
	OnPoolChanged(PoolChanged) error
	OnLinkApplied(LinkApplied) error

	OnReportCheck(from types.PeerID, req ReportCheck) error
	OnPoolContribute(from types.PeerID, req PoolContribute) error
	OnPoolConsume(from types.PeerID, req PoolConsume) error
	OnLinkSend(from types.PeerID, req LinkSend) error
}

// Bridge is owned by the tick loop.
type Bridge struct {
	network Network
	handler Handler
	epoch   types.Epoch
	seq     uint64
	seen    map[types.Epoch]uint64
}

func NewBridge(network Network, handler Handler) *Bridge {
	return &Bridge{
		network: network,
		handler: handler,
		seen:    make(map[types.Epoch]uint64),
	}
}

// SetNetwork replaces the room connection. nil detaches the bridge.
func (b *Bridge) SetNetwork(n Network) {
	b.network = n
}

// IsHost reports whether this peer currently holds the host role.
func (b *Bridge) IsHost() bool {
	return b.network != nil && b.network.IsHost()
}

// BeginEpoch starts a fresh downlink epoch; call it when this process
// becomes host.
func (b *Bridge) BeginEpoch() types.Epoch {
	b.epoch = types.NewEpoch()
	b.seq = 0
	return b.epoch
}

// Epoch returns the current downlink epoch.
func (b *Bridge) Epoch() types.Epoch {
	return b.epoch
}

// Publish runs msg through the local handler and broadcasts it to every
// other peer. Only the host publishes, and each message is published once.
func (b *Bridge) Publish(msg Downlink) error {
	if !b.IsHost() {
		return fmt.Errorf("%w: publish %s", ErrNotHost, msg.Kind())
	}
	if b.epoch == "" {
		b.BeginEpoch()
	}
	env, err := newEnvelope(msg.Kind(), b.network.LocalID(), msg)
	if err != nil {
		return err
	}
	b.seq++
	env.Epoch = b.epoch
	env.Seq = b.seq
	b.seen[b.epoch] = b.seq

	b.dispatchDownlink(msg)
	if err := b.network.Broadcast(env); err != nil {
		slog.Warn("relay broadcast failed", "kind", string(msg.Kind()), "seq", env.Seq, "error", err)
		return fmt.Errorf("broadcast %s: %w", msg.Kind(), err)
	}
	return nil
}

// Request sends an authoritative action to the host. On the host it is
// handled in place. When the host is unreachable the request is dropped;
// requests are never queued past the current connection.
func (b *Bridge) Request(msg Uplink) error {
	if b.network == nil {
		slog.Warn("dropping request, no room connection", "kind", string(msg.Kind()))
		return ErrNoHost
	}
	if b.network.IsHost() {
		b.dispatchUplink(b.network.LocalID(), msg)
		return nil
	}
	env, err := newEnvelope(msg.Kind(), b.network.LocalID(), msg)
	if err != nil {
		return err
	}
	if err := b.network.SendToHost(env); err != nil {
		slog.Warn("dropping request, host unreachable", "kind", string(msg.Kind()), "error", err)
		return fmt.Errorf("%w: %v", ErrNoHost, err)
	}
	return nil
}

// Receive handles one envelope from the network.
func (b *Bridge) Receive(env Envelope) {
	if b.network == nil {
		return
	}
	if env.Kind.IsDownlink() {
		if env.From == b.network.LocalID() {
			return
		}
		if last, ok := b.seen[env.Epoch]; ok && env.Seq <= last {
			slog.Debug("dropping redelivered downlink", "kind", string(env.Kind), "seq", env.Seq)
			return
		}
		msg, err := DecodeDownlink(env)
		if err != nil {
			slog.Warn("malformed downlink", "kind", string(env.Kind), "error", err)
			return
		}
		b.seen[env.Epoch] = env.Seq
		b.dispatchDownlink(msg)
		return
	}

	if !b.IsHost() {
		slog.Warn("dropping uplink received while not host", "kind", string(env.Kind), "from", string(env.From))
		return
	}
	msg, err := DecodeUplink(env)
	if err != nil {
		slog.Warn("malformed uplink", "kind", string(env.Kind), "error", err)
		return
	}
	b.dispatchUplink(env.From, msg)
}

func (b *Bridge) dispatchDownlink(msg Downlink) {
	err := guard(func() error {
		switch m := msg.(type) {
		case ItemApplied:
			return b.handler.OnItemApplied(m)
		case CheckCompleted:
			return b.handler.OnCheckCompleted(m)
		case PoolChanged:
			return b.handler.OnPoolChanged(m)
		case LinkApplied:
			return b.handler.OnLinkApplied(m)
		default:
			return fmt.Errorf("unhandled downlink %T", msg)
		}
	})
	if err != nil {
		slog.Error("downlink handler failed", "kind", string(msg.Kind()), "error", err)
	}
}

func (b *Bridge) dispatchUplink(from types.PeerID, msg Uplink) {
	err := guard(func() error {
		switch m := msg.(type) {
		case ReportCheck:
			return b.handler.OnReportCheck(from, m)
		case PoolContribute:
			return b.handler.OnPoolContribute(from, m)
		case PoolConsume:
			return b.handler.OnPoolConsume(from, m)
		case LinkSend:
			return b.handler.OnLinkSend(from, m)
		default:
			return fmt.Errorf("unhandled uplink %T", msg)
		}
	})
	if err != nil {
		slog.Error("uplink handler failed", "kind", string(msg.Kind()), "from", string(from), "error", err)
	}
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
