package effects

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var defaultCatalog []byte

var ErrUnknownEffect = errors.New("unknown effect")

type catalogEntry struct {
	Name       string  `toml:"name"`
	Kind       string  `toml:"kind"`
	Status     string  `toml:"status"`
	Amount     float64 `toml:"amount"`
	Steps      int     `toml:"steps"`
	IntervalMS int     `toml:"interval_ms"`
}

type catalogFile struct {
	Effects []catalogEntry `toml:"effect"`
}

// Catalog maps local effect names to their effect variant.
type Catalog struct {
	byName map[string]Effect
}

// DefaultCatalog returns the catalog built from the embedded definitions.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("effects: embedded catalog: %v", err))
	}
	return c
}

// ParseCatalog decodes a TOML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := &Catalog{byName: make(map[string]Effect, len(file.Effects))}
	for i, entry := range file.Effects {
		eff, err := entry.effect()
		if err != nil {
			return nil, fmt.Errorf("effect[%d] %q: %w", i, entry.Name, err)
		}
		if _, dup := c.byName[entry.Name]; dup {
			return nil, fmt.Errorf("effect[%d] %q: duplicate name", i, entry.Name)
		}
		c.byName[entry.Name] = eff
	}
	return c, nil
}

func (e catalogEntry) effect() (Effect, error) {
	if strings.TrimSpace(e.Name) == "" {
		return nil, errors.New("missing name")
	}
	switch e.Kind {
	case "trap":
		return Trap{Name: e.Name}, nil
	case "grant":
		return Grant{Name: e.Name}, nil
	case "status":
		if e.Status == "" {
			return nil, errors.New("status effect missing status")
		}
		return Status{Name: e.Name, Status: e.Status, Amount: e.Amount}, nil
	case "timed":
		if e.Status == "" {
			return nil, errors.New("timed effect missing status")
		}
		if e.Steps <= 0 || e.IntervalMS <= 0 {
			return nil, errors.New("timed effect needs positive steps and interval_ms")
		}
		return Timed{
			Name:     e.Name,
			Status:   e.Status,
			Amount:   e.Amount,
			Steps:    e.Steps,
			Interval: time.Duration(e.IntervalMS) * time.Millisecond,
		}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", e.Kind)
	}
}

// Lookup returns the effect registered under name.
func (c *Catalog) Lookup(name string) (Effect, error) {
	eff, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	return eff, nil
}

// IsTrap reports whether name is a catalogued trap.
func (c *Catalog) IsTrap(name string) bool {
	_, ok := c.byName[name].(Trap)
	return ok
}

// Names returns all catalogued names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.byName))
	for name := range c.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
