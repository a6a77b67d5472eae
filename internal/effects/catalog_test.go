package effects

import (
	"errors"
	"testing"
	"time"
)

type recordingVisitor struct {
	kinds []string
}

func (r *recordingVisitor) VisitTrap(Trap) error     { r.kinds = append(r.kinds, "trap"); return nil }
func (r *recordingVisitor) VisitStatus(Status) error { r.kinds = append(r.kinds, "status"); return nil }
func (r *recordingVisitor) VisitTimed(Timed) error   { r.kinds = append(r.kinds, "timed"); return nil }
func (r *recordingVisitor) VisitGrant(Grant) error   { r.kinds = append(r.kinds, "grant"); return nil }

func TestDefaultCatalogKinds(t *testing.T) {
	c := DefaultCatalog()
	v := &recordingVisitor{}

	for _, name := range []string{"Dynamite", "Bandage", "Campfire Warmth", "Rope"} {
		eff, err := c.Lookup(name)
		if err != nil {
			t.Fatalf("lookup %s: %v", name, err)
		}
		if eff.EffectName() != name {
			t.Errorf("expected name %s, got %s", name, eff.EffectName())
		}
		if err := eff.Accept(v); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"trap", "status", "timed", "grant"}
	for i, k := range want {
		if v.kinds[i] != k {
			t.Errorf("expected kind[%d] = %s, got %s", i, k, v.kinds[i])
		}
	}
}

func TestCatalogUnknownEffect(t *testing.T) {
	_, err := DefaultCatalog().Lookup("Moon Boots")
	if !errors.Is(err, ErrUnknownEffect) {
		t.Fatalf("expected ErrUnknownEffect, got %v", err)
	}
}

func TestCatalogIsTrap(t *testing.T) {
	c := DefaultCatalog()
	if !c.IsTrap("Spawn Bee Swarm") {
		t.Error("expected bee swarm to be a trap")
	}
	if c.IsTrap("Rope") {
		t.Error("rope is not a trap")
	}
}

func TestParseCatalogTimed(t *testing.T) {
	c, err := ParseCatalog([]byte(`
[[effect]]
name = "Sting"
kind = "timed"
status = "poison"
amount = 0.1
steps = 3
interval_ms = 250
`))
	if err != nil {
		t.Fatal(err)
	}
	eff, err := c.Lookup("Sting")
	if err != nil {
		t.Fatal(err)
	}
	timed, ok := eff.(Timed)
	if !ok {
		t.Fatalf("expected Timed, got %T", eff)
	}
	if timed.Steps != 3 || timed.Interval != 250*time.Millisecond {
		t.Errorf("unexpected timed effect: %+v", timed)
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown kind": "[[effect]]\nname = \"X\"\nkind = \"buff\"\n",
		"status":       "[[effect]]\nname = \"X\"\nkind = \"status\"\n",
		"timed steps":  "[[effect]]\nname = \"X\"\nkind = \"timed\"\nstatus = \"cold\"\n",
		"duplicate":    "[[effect]]\nname = \"X\"\nkind = \"trap\"\n[[effect]]\nname = \"X\"\nkind = \"grant\"\n",
		"missing name": "[[effect]]\nkind = \"trap\"\n",
	}
	for name, data := range cases {
		if _, err := ParseCatalog([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
