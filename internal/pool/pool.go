// Package pool keeps a shared numeric accumulator in the external service's
// key-value scope. Only the host mutates the remote key; everyone reads a
// cached mirror refreshed from change notifications.
package pool

import (
	"errors"
	"fmt"
	"log/slog"
)

var ErrInvalidAmount = errors.New("pool: amount must be positive")

// Remote is the host-side view of the shared key.
type Remote interface {
	// Add applies remote += delta atomically.
	Add(key string, delta int64) error
	// Max applies remote = max(remote, floor) atomically.
	Max(key string, floor int64) error
}

// Uplink forwards pool requests from a non-host peer to the host.
type Uplink interface {
	RequestContribute(amount int64) error
	RequestConsume(amount int64) error
}

// Pool is owned by the tick loop.
type Pool struct {
	key    string
	cached int64
	isHost func() bool
	remote Remote
	uplink Uplink
}

func New(key string, isHost func() bool, remote Remote, uplink Uplink) *Pool {
	return &Pool{
		key:    key,
		isHost: isHost,
		remote: remote,
		uplink: uplink,
	}
}

// Key returns the remote key name.
func (p *Pool) Key() string {
	return p.key
}

// Value returns the cached value.
func (p *Pool) Value() int64 {
	return p.cached
}

// SetRemote swaps the remote, used when the external session is replaced.
func (p *Pool) SetRemote(r Remote) {
	p.remote = r
}

// Contribute adds amount to the shared pool. On non-hosts the cache only
// moves once the host's change broadcast arrives.
func (p *Pool) Contribute(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if p.host() {
		if p.remote == nil {
			return errors.New("pool: no remote session")
		}
		if err := p.remote.Add(p.key, amount); err != nil {
			return fmt.Errorf("add to pool: %w", err)
		}
		return nil
	}
	if p.uplink == nil {
		return errors.New("pool: no uplink")
	}
	return p.uplink.RequestContribute(amount)
}

// Consume takes amount from the pool if the cached value covers it. The host
// issues remote += -amount and then remote = max(remote, 0) as two separate
// operations; a contribution landing between the two can be clipped. That
// narrow race is accepted.
func (p *Pool) Consume(amount int64) bool {
	if amount <= 0 || p.cached < amount {
		return false
	}
	if !p.host() {
		if p.uplink == nil {
			return false
		}
		if err := p.uplink.RequestConsume(amount); err != nil {
			slog.Warn("pool consume request dropped", "amount", amount, "error", err)
			return false
		}
		return true
	}
	if p.remote == nil {
		return false
	}
	if err := p.remote.Add(p.key, -amount); err != nil {
		slog.Warn("pool subtract failed", "key", p.key, "amount", amount, "error", err)
		return false
	}
	if err := p.remote.Max(p.key, 0); err != nil {
		slog.Warn("pool clamp failed", "key", p.key, "error", err)
	}
	return true
}

// OnRemoteChange refreshes the cache from a change notification. It reports
// whether the value moved.
func (p *Pool) OnRemoteChange(value int64) bool {
	if value < 0 {
		value = 0
	}
	if value == p.cached {
		return false
	}
	p.cached = value
	return true
}

func (p *Pool) host() bool {
	return p.isHost != nil && p.isHost()
}
