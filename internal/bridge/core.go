// Package bridge wires the components into one state owner driven by a
// single tick loop, plus the Runner that feeds it from the network.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/user/linkbridge/internal/checkpoint"
	"github.com/user/linkbridge/internal/effects"
	"github.com/user/linkbridge/internal/ingest"
	"github.com/user/linkbridge/internal/linkbus"
	"github.com/user/linkbridge/internal/pool"
	"github.com/user/linkbridge/internal/relay"
	"github.com/user/linkbridge/internal/session"
	"github.com/user/linkbridge/internal/translate"
	"github.com/user/linkbridge/internal/trap"
	"github.com/user/linkbridge/internal/types"
)

const subStatePool = "pool"

// Session is the host's view of the external coordination service.
type Session interface {
	Connected() bool
	LocationID(name string) (int64, bool)
	InboundEvents(p session.ReceivedItems) []types.InboundEvent
	CheckLocations(ids ...int64) error
	Bounce(tags []string, data map[string]any) error
	Add(key string, delta int64) error
	Max(key string, floor int64) error
	SetNotify(keys ...string) error
	Get(keys ...string) error
	UpdateTags(tags []string) error
}

type Options struct {
	DataDir      string
	Endpoint     types.EndpointKey
	PollInterval time.Duration
	TrapCooldown time.Duration
	PoolKey      string
	DeathEffect  string
	RingStatus   string
	DeathLink    bool
	TrapLink     bool
	RingLink     bool
}

// Core owns all bridge state. Every method must be called from the tick
// loop goroutine; none of them block.
type Core struct {
	opts Options

	applier   types.Applier
	character types.CharacterView
	names     *translate.Translator
	catalog   *effects.Catalog

	store   *checkpoint.Store
	queue   *ingest.Queue
	traps   *trap.Scheduler
	timers  *effects.Timers
	pool    *pool.Pool
	router  *linkbus.Router
	relay   *relay.Bridge
	session Session

	origin types.OriginID
	host   bool
	now    time.Time

	// Non-host only: checks forwarded on the current connection and names
	// learnt from CheckCompleted broadcasts.
	pendingChecks map[string]struct{}
	knownChecks   map[string]int64
}

// New builds a Core and loads the checkpoint for opts.Endpoint.
func New(opts Options, applier types.Applier, character types.CharacterView, names *translate.Translator, catalog *effects.Catalog) *Core {
	if names == nil {
		names = translate.Default()
	}
	if catalog == nil {
		catalog = effects.DefaultCatalog()
	}
	c := &Core{
		opts:          opts,
		applier:       applier,
		character:     character,
		names:         names,
		catalog:       catalog,
		store:         checkpoint.NewStore(opts.DataDir),
		origin:        types.NewOriginID(),
		now:           time.Now(),
		pendingChecks: make(map[string]struct{}),
		knownChecks:   make(map[string]int64),
	}
	c.queue = ingest.NewQueue(c.store, opts.PollInterval, c.applyInbound)
	c.traps = trap.NewScheduler(opts.TrapCooldown, c.live, c.dispatchTrap)
	c.timers = effects.NewTimers(c.applyTimedStep)
	c.pool = pool.New(opts.PoolKey, c.IsHost, nil, uplink{c})
	c.relay = relay.NewBridge(nil, handler{c})

	c.router = linkbus.NewRouter()
	for _, b := range []struct {
		tag     string
		enabled bool
	}{
		{linkbus.TagDeath, opts.DeathLink},
		{linkbus.TagTrap, opts.TrapLink},
		{linkbus.TagRing, opts.RingLink},
	} {
		bus := linkbus.NewBus(b.tag, c.origin, c.onLinkReceived)
		bus.SetEnabled(b.enabled)
		c.router.Register(bus)
	}

	c.OpenEndpoint(opts.Endpoint)
	return c
}

// OpenEndpoint switches to the checkpoint of another service endpoint. In
// memory state is cleared before anything is written under the new file.
func (c *Core) OpenEndpoint(ep types.EndpointKey) {
	c.queue.Reset()
	rec := c.store.Open(ep)
	c.pool.OnRemoteChange(0)
	if raw, ok := rec.SubState[subStatePool]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.pool.OnRemoteChange(v)
		}
	}
	c.opts.Endpoint = ep
	slog.Info("checkpoint loaded", "endpoint", string(ep), "last_applied", rec.LastAppliedIndex, "checks", len(rec.ReportedChecks))
}

// Tick first picks up any host change the network has seen, then advances
// every time-driven component. It reports the role change like RefreshRole.
func (c *Core) Tick(now time.Time) (gained, lost bool) {
	c.now = now
	gained, lost = c.RefreshRole()
	if c.host {
		c.queue.Tick(now)
	}
	c.traps.Tick(now)
	c.timers.Tick(now)
	return gained, lost
}

// IsHost reports the role as of the last RefreshRole.
func (c *Core) IsHost() bool {
	return c.host
}

func (c *Core) Origin() types.OriginID {
	return c.origin
}

// AttachNetwork installs the room connection and refreshes the role.
func (c *Core) AttachNetwork(n relay.Network) (gained, lost bool) {
	c.relay.SetNetwork(n)
	return c.RefreshRole()
}

// RefreshRole compares the network's view of the host with ours. Gaining
// the role starts a new downlink epoch. Losing it drops the session and
// every per-connection request.
func (c *Core) RefreshRole() (gained, lost bool) {
	now := c.relay.IsHost()
	if now == c.host {
		return false, false
	}
	c.host = now
	c.pendingChecks = make(map[string]struct{})
	if now {
		epoch := c.relay.BeginEpoch()
		slog.Info("became host", "epoch", string(epoch))
		return true, false
	}
	c.DetachSession()
	slog.Info("lost host role")
	return false, true
}

// HandleEnvelope feeds one room envelope to the relay bridge.
func (c *Core) HandleEnvelope(env relay.Envelope) {
	c.relay.Receive(env)
}

// AttachSession installs a freshly connected external session on the host.
func (c *Core) AttachSession(s Session) {
	c.session = s
	c.store.SetResolver(s)
	c.pool.SetRemote(s)
	c.router.SetTransport(s)
	c.queue.Reset()
	if c.opts.PoolKey != "" {
		if err := s.SetNotify(c.opts.PoolKey); err != nil {
			slog.Warn("pool subscribe failed", "key", c.opts.PoolKey, "error", err)
		}
		if err := s.Get(c.opts.PoolKey); err != nil {
			slog.Warn("pool fetch failed", "key", c.opts.PoolKey, "error", err)
		}
	}
}

// DetachSession forgets the current session. Pending events are replayed
// by the service on the next connection.
func (c *Core) DetachSession() {
	if c.session == nil {
		return
	}
	c.session = nil
	c.store.SetResolver(nil)
	c.pool.SetRemote(nil)
	c.router.SetTransport(nil)
	c.queue.Reset()
}

// SessionConnected reports whether the host holds a live session.
func (c *Core) SessionConnected() bool {
	return c.session != nil && c.session.Connected()
}

// HandlePacket routes one packet from the external session.
func (c *Core) HandlePacket(p session.Packet) {
	if !c.host || c.session == nil {
		return
	}
	switch p := p.(type) {
	case session.Connected:
		c.syncChecked(p.CheckedLocations)
	case session.RoomUpdate:
		c.syncChecked(p.CheckedLocations)
	case session.ReceivedItems:
		accepted := 0
		for _, ev := range c.session.InboundEvents(p) {
			if c.queue.OnExternalEvent(ev) {
				accepted++
			}
		}
		slog.Debug("received items", "start", p.Index, "count", len(p.Items), "accepted", accepted)
	case session.Bounced:
		c.router.Route(p.Tags, p.Data)
	case session.SetReply:
		if p.Key == c.opts.PoolKey {
			c.publishPool(p.Int())
		}
	case session.Retrieved:
		if v, ok := p.Int(c.opts.PoolKey); ok {
			c.publishPool(v)
		}
	}
}

func (c *Core) syncChecked(ids []int64) {
	for _, id := range c.store.MarkReported(ids...) {
		c.publish(relay.CheckCompleted{ID: id})
	}
}

func (c *Core) publishPool(value int64) {
	if value < 0 {
		value = 0
	}
	c.publish(relay.PoolChanged{Value: value})
}

// Resync rebroadcasts the host's pool value so peers that joined after the
// last change catch up.
func (c *Core) Resync() {
	if !c.host || c.opts.PoolKey == "" {
		return
	}
	c.publishPool(c.pool.Value())
}

func (c *Core) publish(msg relay.Downlink) {
	if err := c.relay.Publish(msg); err != nil {
		slog.Warn("publish failed", "kind", string(msg.Kind()), "error", err)
	}
}

// ReportCheck records a completed check. It returns true only the first
// time a name resolves to an unseen id; on a non-host peer it returns true
// when the report was forwarded to the host.
func (c *Core) ReportCheck(name string) bool {
	if c.host {
		return c.reportCheckAsHost(name)
	}
	if id, ok := c.knownChecks[name]; ok && c.store.IsReported(id) {
		return false
	}
	if _, ok := c.pendingChecks[name]; ok {
		return false
	}
	if err := c.relay.Request(relay.ReportCheck{Name: name}); err != nil {
		return false
	}
	c.pendingChecks[name] = struct{}{}
	return true
}

func (c *Core) reportCheckAsHost(name string) bool {
	id, ok := c.store.ReportCheck(name)
	if !ok {
		return false
	}
	if c.session != nil {
		if err := c.session.CheckLocations(id); err != nil {
			slog.Warn("check report failed", "check", name, "id", id, "error", err)
		}
	}
	c.publish(relay.CheckCompleted{ID: id, Name: name})
	return true
}

// Contribute adds to the shared pool.
func (c *Core) Contribute(amount int64) error {
	return c.pool.Contribute(amount)
}

// Consume takes from the shared pool if the cached value covers amount.
func (c *Core) Consume(amount int64) bool {
	return c.pool.Consume(amount)
}

// PoolValue returns the cached pool value.
func (c *Core) PoolValue() int64 {
	return c.pool.Value()
}

// SendLink broadcasts a locally originated link event. Non-hosts ask the
// host to send it.
func (c *Core) SendLink(tag, name string, amount int64) error {
	bus, ok := c.router.Bus(tag)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownLink, tag)
	}
	if !bus.Enabled() {
		return nil
	}
	if !c.host {
		return c.relay.Request(relay.LinkSend{Tag: tag, Name: name, Amount: amount})
	}
	if !bus.Send(linkbus.Message{Name: name, Amount: amount}) {
		return errors.New("link send skipped, no session")
	}
	return nil
}

// LocalDeath announces the local character's death on DeathLink.
func (c *Core) LocalDeath(cause string) error {
	return c.SendLink(linkbus.TagDeath, cause, 0)
}

// SetLinkEnabled toggles a bus and updates the session's subscriptions.
func (c *Core) SetLinkEnabled(tag string, enabled bool) error {
	bus, ok := c.router.Bus(tag)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownLink, tag)
	}
	bus.SetEnabled(enabled)
	if c.SessionConnected() {
		return c.session.UpdateTags(c.router.EnabledTags())
	}
	return nil
}

// LinkTags returns the tags to subscribe to when connecting.
func (c *Core) LinkTags() []string {
	return c.router.EnabledTags()
}

// FlushCheckpoint writes the checkpoint to disk.
func (c *Core) FlushCheckpoint() error {
	return c.store.Save()
}

// ResetCheckpoint clears the checkpoint of the current endpoint.
func (c *Core) ResetCheckpoint() error {
	c.queue.Reset()
	return c.store.Reset()
}

func (c *Core) live() bool {
	return types.Live(c.character)
}
