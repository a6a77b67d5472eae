package translate

import (
	"testing"
)

func TestDefaultTablesLoad(t *testing.T) {
	tr := Default()
	if len(tr.LocalNames()) == 0 {
		t.Fatal("expected local names in the embedded tables")
	}
	if len(tr.StandardNames()) == 0 {
		t.Fatal("expected standard names in the embedded tables")
	}
}

func TestBeeSwarmRoundTrip(t *testing.T) {
	tr := Default()

	standard, ok := tr.ToStandard("Spawn Bee Swarm")
	if !ok || standard != "Bee Trap" {
		t.Fatalf("ToStandard(Spawn Bee Swarm) = %q, %v; want Bee Trap", standard, ok)
	}
	local, ok := tr.ToLocal(standard)
	if !ok || local != "Spawn Bee Swarm" {
		t.Fatalf("ToLocal(%q) = %q, %v; want Spawn Bee Swarm", standard, local, ok)
	}
}

func TestManyToOneCollapse(t *testing.T) {
	tr := Default()

	hornets, ok := tr.ToStandard("Angry Hornets")
	if !ok {
		t.Fatal("Angry Hornets should have a standard name")
	}
	swarm, ok := tr.ToStandard("Spawn Bee Swarm")
	if !ok {
		t.Fatal("Spawn Bee Swarm should have a standard name")
	}
	if hornets != swarm {
		t.Errorf("expected both local effects to share one standard name, got %q and %q", hornets, swarm)
	}

	// The collapse cannot be inverted.
	back, ok := tr.ToLocal(hornets)
	if !ok {
		t.Fatalf("ToLocal(%q) not found", hornets)
	}
	if back != "Spawn Bee Swarm" {
		t.Errorf("expected Spawn Bee Swarm, got %q", back)
	}
}

func TestUnmappedNames(t *testing.T) {
	tr := Default()

	if _, ok := tr.ToLocal("Literature Trap"); ok {
		t.Error("standard names without a local effect must be dropped")
	}
	if _, ok := tr.ToStandard("Nap Time"); ok {
		t.Error("local effects without a standard name must not be sent")
	}
}

func TestTablesAreIndependent(t *testing.T) {
	tr := New(Tables{
		Send:    map[string]string{"A": "X"},
		Receive: map[string]string{"Y": "A"},
	})

	if _, ok := tr.ToLocal("X"); ok {
		t.Error("receive table must not be derived from the send table")
	}
	if local, ok := tr.ToLocal("Y"); !ok || local != "A" {
		t.Errorf("ToLocal(Y) = %q, %v; want A", local, ok)
	}
}

func TestParseRejectsBadTOML(t *testing.T) {
	if _, err := Parse([]byte("[send\n")); err == nil {
		t.Fatal("expected parse error")
	}
}
