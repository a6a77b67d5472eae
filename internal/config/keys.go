package config

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
)

// keyRule constrains what `config set` accepts for one dot-path key.
type keyRule struct {
	kind     valueKind
	min, max int64
	nonEmpty bool
	oneOf    []string
	secret   bool
}

var keyRules = map[string]keyRule{
	"data_dir":                {nonEmpty: true},
	"log_level":               {oneOf: []string{"debug", "info", "warn", "error"}},
	"server.host":             {},
	"server.port":             {kind: kindInt, min: 1, max: 65535},
	"server.slot":             {},
	"server.password":         {secret: true},
	"server.game":             {nonEmpty: true},
	"room.url":                {},
	"room.room":               {nonEmpty: true},
	"room.peer_id":            {},
	"relay.listen":            {nonEmpty: true},
	"http.enabled":            {kind: kindBool},
	"http.listen":             {nonEmpty: true},
	"timing.tick_ms":          {kind: kindInt, min: 1, max: 1000},
	"timing.poll_ms":          {kind: kindInt, min: 10, max: 60000},
	"timing.trap_cooldown_ms": {kind: kindInt, min: 0, max: 600000},
	"pool.key":                {},
	"links.death_link":        {kind: kindBool},
	"links.trap_link":         {kind: kindBool},
	"links.ring_link":         {kind: kindBool},
	"links.death_effect":      {nonEmpty: true},
	"links.ring_status":       {nonEmpty: true},
	"housekeeping.schedule":   {nonEmpty: true},
}

// Keys returns every settable key, sorted.
func Keys() []string {
	out := make([]string, 0, len(keyRules))
	for k := range keyRules {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsSecretKey reports whether key holds a credential.
func IsSecretKey(key string) bool {
	return keyRules[key].secret
}

// ParseValue converts the command-line text for key into its typed value.
// Link toggles must be booleans and timings must fall in their range.
func ParseValue(key, raw string) (any, error) {
	rule, ok := keyRules[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	switch rule.kind {
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: expected true or false, got %q", key, raw)
		}
		return b, nil
	case kindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: expected an integer, got %q", key, raw)
		}
		if n < rule.min || n > rule.max {
			return nil, fmt.Errorf("%s: %d out of range [%d, %d]", key, n, rule.min, rule.max)
		}
		return n, nil
	}
	if rule.nonEmpty && strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%s: must not be empty", key)
	}
	if rule.oneOf != nil && !slices.Contains(rule.oneOf, raw) {
		return nil, fmt.Errorf("%s: must be one of %s", key, strings.Join(rule.oneOf, ", "))
	}
	return raw, nil
}

// Flatten turns the nested JSON form into dot-path keys, so
// {"links": {"ring_link": true}} becomes {"links.ring_link": true}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flattenInto(out, k, child)
			continue
		}
		out[k] = v
	}
}

// Unflatten is the inverse of Flatten. A scalar standing where a section is
// needed is replaced by the section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		setPath(out, strings.Split(k, "."), v)
	}
	return out
}

func setPath(m map[string]any, path []string, v any) {
	if len(path) == 1 {
		m[path[0]] = v
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = make(map[string]any)
		m[path[0]] = child
	}
	setPath(child, path[1:], v)
}

// MaskSecrets copies flat with non-empty credentials reduced to their last
// four characters behind "***".
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = v
		s, ok := v.(string)
		if !IsSecretKey(k) || !ok || s == "" {
			continue
		}
		out[k] = "***" + s[max(0, len(s)-4):]
	}
	return out
}

// Describe renders the values key accepts, for `config keys`.
func Describe(key string) string {
	rule, ok := keyRules[key]
	switch {
	case !ok:
		return ""
	case rule.kind == kindBool:
		return "true|false"
	case rule.kind == kindInt:
		return fmt.Sprintf("integer %d..%d", rule.min, rule.max)
	case rule.oneOf != nil:
		return strings.Join(rule.oneOf, "|")
	case rule.secret:
		return "text (secret)"
	case rule.nonEmpty:
		return "non-empty text"
	}
	return "text"
}
