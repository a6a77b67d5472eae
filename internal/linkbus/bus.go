// Package linkbus mirrors gameplay events across every client of the
// external session through tagged broadcasts.
package linkbus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/user/linkbridge/internal/types"
)

const (
	TagDeath = "DeathLink"
	TagTrap  = "TrapLink"
	TagRing  = "RingLink"
)

// Message is one link event. Origin is random per process and is the only
// loop-prevention mechanism on the bus.
type Message struct {
	Time   time.Time
	Origin types.OriginID
	Tag    string
	Name   string
	Amount int64
}

// Transport is the tagged broadcast primitive of the external session.
type Transport interface {
	Connected() bool
	Bounce(tags []string, data map[string]any) error
}

// ApplyFunc applies a received message locally. Messages handed to it are
// always externally sourced.
type ApplyFunc func(Message) error

// Bus is one tagged channel. It is owned by the tick loop.
type Bus struct {
	tag       string
	origin    types.OriginID
	enabled   bool
	transport Transport
	apply     ApplyFunc
	now       func() time.Time
}

// NewBus creates a disabled bus. origin is fixed for the process lifetime.
func NewBus(tag string, origin types.OriginID, apply ApplyFunc) *Bus {
	return &Bus{
		tag:    tag,
		origin: origin,
		apply:  apply,
		now:    time.Now,
	}
}

func (b *Bus) Tag() string              { return b.tag }
func (b *Bus) Origin() types.OriginID   { return b.origin }
func (b *Bus) Enabled() bool            { return b.enabled }
func (b *Bus) SetEnabled(enabled bool)  { b.enabled = enabled }
func (b *Bus) SetTransport(t Transport) { b.transport = t }

// Send stamps msg with this process's origin and broadcasts it. It is a
// no-op unless the bus is enabled and a session is connected.
func (b *Bus) Send(msg Message) bool {
	if !b.enabled || b.transport == nil || !b.transport.Connected() {
		return false
	}
	msg.Tag = b.tag
	msg.Origin = b.origin
	if msg.Time.IsZero() {
		msg.Time = b.now()
	}
	if err := b.transport.Bounce([]string{b.tag}, Encode(msg)); err != nil {
		slog.Warn("link send failed", "tag", b.tag, "error", err)
		return false
	}
	return true
}

// OnReceive applies msg unless it carries our own origin. There is no other
// deduplication on the bus.
func (b *Bus) OnReceive(msg Message) bool {
	if !b.enabled {
		return false
	}
	if msg.Origin == b.origin {
		return false
	}
	if err := b.safeApply(msg); err != nil {
		slog.Error("link apply failed", "tag", b.tag, "name", msg.Name, "error", err)
	}
	return true
}

func (b *Bus) safeApply(msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if b.apply == nil {
		return nil
	}
	return b.apply(msg)
}
