package pool

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
)

// fakeRemote queues change notifications until flush, like the real
// service whose replies arrive on a later tick.
type fakeRemote struct {
	value   int64
	ops     []string
	pending []int64
}

func (f *fakeRemote) Add(key string, delta int64) error {
	f.value += delta
	f.ops = append(f.ops, "add")
	f.pending = append(f.pending, f.value)
	return nil
}

func (f *fakeRemote) Max(key string, floor int64) error {
	if f.value < floor {
		f.value = floor
	}
	f.ops = append(f.ops, "max")
	f.pending = append(f.pending, f.value)
	return nil
}

func (f *fakeRemote) flush(p *Pool) {
	for _, v := range f.pending {
		p.OnRemoteChange(v)
	}
	f.pending = nil
}

type fakeUplink struct {
	contributes []int64
	consumes    []int64
}

func (f *fakeUplink) RequestContribute(amount int64) error {
	f.contributes = append(f.contributes, amount)
	return nil
}

func (f *fakeUplink) RequestConsume(amount int64) error {
	f.consumes = append(f.consumes, amount)
	return nil
}

func hostPool(start int64) (*Pool, *fakeRemote) {
	remote := &fakeRemote{value: start}
	p := New("EnergyLink0", func() bool { return true }, remote, nil)
	p.OnRemoteChange(start)
	return p, remote
}

func TestContributeThenConsumeBeforeRefresh(t *testing.T) {
	p, remote := hostPool(250)

	if err := p.Contribute(100); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if p.Consume(300) {
		t.Error("consume must fail while the cache still reads 250")
	}
	if remote.value != 350 {
		t.Errorf("failed consume must not touch remote, got %d", remote.value)
	}
	if !slices.Equal(remote.ops, []string{"add"}) {
		t.Errorf("expected [add], got %v", remote.ops)
	}

	remote.flush(p)
	if p.Value() != 350 {
		t.Errorf("expected 350 after refresh, got %d", p.Value())
	}
}

func TestConsumeSubtractsThenClamps(t *testing.T) {
	p, remote := hostPool(500)

	if !p.Consume(200) {
		t.Fatal("consume within the cached value must succeed")
	}
	if !slices.Equal(remote.ops, []string{"add", "max"}) {
		t.Errorf("expected [add max], got %v", remote.ops)
	}
	remote.flush(p)
	if p.Value() != 300 {
		t.Errorf("expected 300, got %d", p.Value())
	}
}

func TestConsumeRejectsNonPositive(t *testing.T) {
	p, remote := hostPool(500)
	if p.Consume(0) || p.Consume(-5) {
		t.Error("non-positive consume must fail")
	}
	if len(remote.ops) != 0 {
		t.Errorf("expected no remote ops, got %v", remote.ops)
	}
	if err := p.Contribute(0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestPoolFloorUnderRandomConsumes(t *testing.T) {
	p, remote := hostPool(1000)
	rng := rand.New(rand.NewSource(3))

	for i := 0; i < 200; i++ {
		before := remote.value
		amount := rng.Int63n(400) + 1
		if !p.Consume(amount) && remote.value != before {
			t.Fatalf("step %d: failed consume mutated remote %d -> %d", i, before, remote.value)
		}
		if rng.Intn(2) == 0 {
			remote.flush(p)
		}
		if rng.Intn(5) == 0 {
			remote.value -= rng.Int63n(300)
			remote.Max("EnergyLink0", 0)
		}
		if p.Value() < 0 {
			t.Fatalf("step %d: cached value went negative: %d", i, p.Value())
		}
	}
	remote.flush(p)
	if p.Value() < 0 || remote.value < 0 {
		t.Errorf("expected non-negative values, cache=%d remote=%d", p.Value(), remote.value)
	}
}

func TestNonHostUsesUplink(t *testing.T) {
	uplink := &fakeUplink{}
	p := New("EnergyLink0", func() bool { return false }, nil, uplink)
	p.OnRemoteChange(100)

	if err := p.Contribute(40); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if p.Value() != 100 {
		t.Errorf("cache only moves on broadcast, got %d", p.Value())
	}
	if !p.Consume(60) {
		t.Error("consume covered by the cache should be forwarded")
	}
	if p.Consume(101) {
		t.Error("consume above the cache must fail")
	}
	if !slices.Equal(uplink.contributes, []int64{40}) {
		t.Errorf("expected contributes [40], got %v", uplink.contributes)
	}
	if !slices.Equal(uplink.consumes, []int64{60}) {
		t.Errorf("expected consumes [60], got %v", uplink.consumes)
	}
}

func TestOnRemoteChangeClampsNegative(t *testing.T) {
	p := New("k", nil, nil, nil)
	if p.OnRemoteChange(-20) {
		t.Error("negative value clamps to the current 0, no change expected")
	}
	if p.Value() != 0 {
		t.Errorf("expected 0, got %d", p.Value())
	}
	if !p.OnRemoteChange(15) {
		t.Error("expected change to 15")
	}
	if p.OnRemoteChange(15) {
		t.Error("same value is not a change")
	}
}
