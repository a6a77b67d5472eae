// internal/types/interfaces.go
package types

// Applier is the game-side effect application contract. Concrete adapters
// live outside the core.
type Applier interface {
	// Apply activates a named local effect. fromLinkBus is true when the
	// effect arrived over a cross-title link bus and must not be re-sent.
	Apply(effectName string, fromLinkBus bool)
	// ApplyStatus applies a generic status payload to the local character.
	ApplyStatus(status string, amount float64)
}

// CharacterView exposes the liveness of the local character.
type CharacterView interface {
	Connected() bool
	Alive() bool
	Incapacitated() bool
}

// CheckResolver resolves a named check to its stable numeric id.
type CheckResolver interface {
	LocationID(name string) (int64, bool)
}

// Live reports whether effects may currently land on the character.
func Live(v CharacterView) bool {
	if v == nil {
		return true
	}
	return v.Connected() && v.Alive() && !v.Incapacitated()
}
