package linkbus

import (
	"errors"
	"slices"
	"testing"
	"time"
)

type fakeTransport struct {
	connected bool
	sent      []map[string]any
	tags      [][]string
}

func (f *fakeTransport) Connected() bool { return f.connected }

func (f *fakeTransport) Bounce(tags []string, data map[string]any) error {
	if !f.connected {
		return errors.New("closed")
	}
	f.tags = append(f.tags, tags)
	f.sent = append(f.sent, data)
	return nil
}

func TestSendRequiresEnabledAndSession(t *testing.T) {
	bus := NewBus(TagDeath, 77, nil)
	if bus.Send(Message{Name: "fell"}) {
		t.Error("send without a transport must be a no-op")
	}

	tr := &fakeTransport{}
	bus.SetTransport(tr)
	bus.SetEnabled(true)
	if bus.Send(Message{Name: "fell"}) {
		t.Error("send without a connected session must be a no-op")
	}

	tr.connected = true
	bus.SetEnabled(false)
	if bus.Send(Message{Name: "fell"}) {
		t.Error("send on a disabled bus must be a no-op")
	}

	bus.SetEnabled(true)
	if !bus.Send(Message{Name: "fell"}) {
		t.Fatal("expected send to succeed")
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected 1 bounce, got %d", len(tr.sent))
	}
	if !slices.Equal(tr.tags[0], []string{TagDeath}) {
		t.Errorf("expected tags [%s], got %v", TagDeath, tr.tags[0])
	}
	if tr.sent[0]["source"] != int64(77) {
		t.Errorf("expected source 77, got %v", tr.sent[0]["source"])
	}
}

func TestOwnOriginIsIgnored(t *testing.T) {
	applied := 0
	bus := NewBus(TagTrap, 77, func(Message) error {
		applied++
		return nil
	})
	bus.SetEnabled(true)

	if bus.OnReceive(Message{Origin: 77, Name: "Bee Trap"}) {
		t.Error("own origin must be ignored")
	}
	if applied != 0 {
		t.Errorf("expected no application, got %d", applied)
	}

	// No dedupe beyond the origin check.
	if !bus.OnReceive(Message{Origin: 12, Name: "Bee Trap"}) || !bus.OnReceive(Message{Origin: 12, Name: "Bee Trap"}) {
		t.Error("foreign messages must apply every time")
	}
	if applied != 2 {
		t.Errorf("expected 2 applications, got %d", applied)
	}
}

func TestEchoThroughRouterIsSuppressed(t *testing.T) {
	applied := 0
	tr := &fakeTransport{connected: true}
	bus := NewBus(TagRing, 5, func(Message) error {
		applied++
		return nil
	})
	bus.SetEnabled(true)
	router := NewRouter()
	router.Register(bus)
	router.SetTransport(tr)

	if !bus.Send(Message{Amount: 3}) {
		t.Fatal("expected send to succeed")
	}
	if n := router.Route(tr.tags[0], tr.sent[0]); n != 0 {
		t.Errorf("expected echo to be dropped, routed %d", n)
	}
	if applied != 0 {
		t.Errorf("expected no application, got %d", applied)
	}
}

func TestApplyPanicIsContained(t *testing.T) {
	bus := NewBus(TagDeath, 1, func(Message) error { panic("ragdoll missing") })
	bus.SetEnabled(true)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic escaped OnReceive: %v", r)
		}
	}()
	bus.OnReceive(Message{Origin: 2})
}

func TestCodecRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 500000000)
	msg := Decode(TagRing, Encode(Message{Time: at, Origin: 9, Name: "ring", Amount: -4}))
	if msg.Tag != TagRing || msg.Origin != 9 || msg.Name != "ring" || msg.Amount != -4 {
		t.Errorf("unexpected decoded message: %+v", msg)
	}
	if d := msg.Time.Sub(at); d > time.Millisecond || d < -time.Millisecond {
		t.Errorf("time drifted by %v", d)
	}
}

func TestRouterEnabledTags(t *testing.T) {
	router := NewRouter()
	death := NewBus(TagDeath, 1, nil)
	trap := NewBus(TagTrap, 1, nil)
	ring := NewBus(TagRing, 1, nil)
	death.SetEnabled(true)
	ring.SetEnabled(true)
	router.Register(death)
	router.Register(trap)
	router.Register(ring)

	if got := router.EnabledTags(); !slices.Equal(got, []string{TagDeath, TagRing}) {
		t.Errorf("expected [%s %s], got %v", TagDeath, TagRing, got)
	}
	if n := router.Route([]string{"Unknown"}, map[string]any{}); n != 0 {
		t.Errorf("expected unknown tag to route nowhere, got %d", n)
	}
}
