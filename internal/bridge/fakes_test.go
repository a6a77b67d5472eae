package bridge

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/user/linkbridge/internal/room"
	"github.com/user/linkbridge/internal/session"
	"github.com/user/linkbridge/internal/types"
)

type applied struct {
	name     string
	fromLink bool
}

type status struct {
	status string
	amount float64
}

type recApplier struct {
	applied  []applied
	statuses []status
}

func (a *recApplier) Apply(name string, fromLinkBus bool) {
	a.applied = append(a.applied, applied{name, fromLinkBus})
}

func (a *recApplier) ApplyStatus(s string, amount float64) {
	a.statuses = append(a.statuses, status{s, amount})
}

type character struct {
	dead bool
}

func (c *character) Connected() bool     { return true }
func (c *character) Alive() bool         { return !c.dead }
func (c *character) Incapacitated() bool { return false }

type bounce struct {
	tags []string
	data map[string]any
}

type fakeSession struct {
	connected bool
	locations map[string]int64
	items     map[int64]string
	value     int64
	ops       []string
	checked   []int64
	bounces   []bounce
	tags      []string
	notified  []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		connected: true,
		locations: map[string]int64{"Old Tree": 9001, "Summit": 9002},
		items:     map[int64]string{7001: "Dynamite", 7002: "Rope", 7003: "Bandage", 7004: "Campfire Warmth"},
	}
}

func (f *fakeSession) Connected() bool { return f.connected }

func (f *fakeSession) LocationID(name string) (int64, bool) {
	id, ok := f.locations[name]
	return id, ok
}

func (f *fakeSession) InboundEvents(p session.ReceivedItems) []types.InboundEvent {
	var out []types.InboundEvent
	for i, it := range p.Items {
		out = append(out, types.InboundEvent{
			Index:        p.Index + int64(i),
			Kind:         types.EventItem,
			ItemID:       it.Item,
			Name:         f.items[it.Item],
			SourcePlayer: it.Player,
		})
	}
	return out
}

func (f *fakeSession) CheckLocations(ids ...int64) error {
	f.checked = append(f.checked, ids...)
	return nil
}

func (f *fakeSession) Bounce(tags []string, data map[string]any) error {
	f.bounces = append(f.bounces, bounce{tags, data})
	return nil
}

func (f *fakeSession) Add(key string, delta int64) error {
	f.value += delta
	f.ops = append(f.ops, "add "+strconv.FormatInt(delta, 10))
	return nil
}

func (f *fakeSession) Max(key string, floor int64) error {
	f.value = max(f.value, floor)
	f.ops = append(f.ops, "max "+strconv.FormatInt(floor, 10))
	return nil
}

func (f *fakeSession) SetNotify(keys ...string) error {
	f.notified = append(f.notified, keys...)
	return nil
}

func (f *fakeSession) Get(keys ...string) error { return nil }

func (f *fakeSession) UpdateTags(tags []string) error {
	f.tags = tags
	return nil
}

// reply returns the change notification the service would send for the
// current remote value.
func (f *fakeSession) reply() session.SetReply {
	return session.SetReply{Key: "pool", Value: json.RawMessage(strconv.FormatInt(f.value, 10))}
}

type rig struct {
	core *Core
	net  *room.MeshPeer
	app  *recApplier
	char *character
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		DataDir:      t.TempDir(),
		Endpoint:     types.NewEndpointKey("localhost", 38281),
		PollInterval: time.Second,
		TrapCooldown: 2 * time.Second,
		PoolKey:      "pool",
		DeathEffect:  "Faint",
		RingStatus:   "warmth",
		DeathLink:    true,
		TrapLink:     true,
		RingLink:     true,
	}
}

func newRig(t *testing.T, mesh *room.Mesh, id types.PeerID) *rig {
	t.Helper()
	r := &rig{app: &recApplier{}, char: &character{}}
	r.core = New(testOptions(t), r.app, r.char, nil, nil)
	r.net = mesh.Join(id)
	r.core.AttachNetwork(r.net)
	return r
}

// pump delivers queued envelopes until the mesh is quiet and returns how
// many were delivered.
func pump(rigs ...*rig) int {
	delivered := 0
	for {
		moved := false
		for _, r := range rigs {
			for _, env := range r.net.Drain() {
				r.core.HandleEnvelope(env)
				delivered++
				moved = true
			}
		}
		if !moved {
			return delivered
		}
	}
}

func tickAll(now time.Time, rigs ...*rig) {
	for _, r := range rigs {
		r.core.Tick(now)
	}
}
