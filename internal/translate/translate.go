// Package translate maps local effect names to the standardized cross-title
// trap vocabulary and back.
package translate

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sort"

	"github.com/BurntSushi/toml"
)

//go:embed tables.toml
var defaultTables []byte

// Tables holds the two independent lookup tables. They are not inverses of
// each other: several local names collapse to one standard name.
type Tables struct {
	Send    map[string]string `toml:"send"`
	Receive map[string]string `toml:"receive"`
}

// Translator is a stateless bidirectional name mapper.
type Translator struct {
	send    map[string]string
	receive map[string]string
}

// Default returns the translator built from the embedded tables.
func Default() *Translator {
	t, err := Parse(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("translate: embedded tables: %v", err))
	}
	return t
}

// Parse builds a translator from TOML table data.
func Parse(data []byte) (*Translator, error) {
	var tables Tables
	if _, err := toml.Decode(string(data), &tables); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}
	return New(tables), nil
}

// New builds a translator from in-memory tables. The maps are copied.
func New(tables Tables) *Translator {
	t := &Translator{
		send:    make(map[string]string, len(tables.Send)),
		receive: make(map[string]string, len(tables.Receive)),
	}
	for k, v := range tables.Send {
		t.send[k] = v
	}
	for k, v := range tables.Receive {
		t.receive[k] = v
	}
	return t
}

// ToStandard returns the standard name for a local effect. Local effects
// without a standard equivalent are never sent.
func (t *Translator) ToStandard(local string) (string, bool) {
	name, ok := t.send[local]
	if !ok {
		slog.Debug("no standard name for local effect, not sending", "effect", local)
	}
	return name, ok
}

// ToLocal returns the local effect for a standard name. Unknown standard
// names are dropped silently.
func (t *Translator) ToLocal(standard string) (string, bool) {
	name, ok := t.receive[standard]
	return name, ok
}

// LocalNames returns the sorted local names that can be sent.
func (t *Translator) LocalNames() []string {
	return sortedKeys(t.send)
}

// StandardNames returns the sorted standard names that can be received.
func (t *Translator) StandardNames() []string {
	return sortedKeys(t.receive)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
