// Package effects defines the closed set of effect kinds the bridge can apply
// and the catalog mapping local effect names to them.
package effects

import "time"

// Visitor handles every effect kind. Adding a kind adds a method here, so
// every dispatcher stops compiling until it handles the new kind.
type Visitor interface {
	VisitTrap(Trap) error
	VisitStatus(Status) error
	VisitTimed(Timed) error
	VisitGrant(Grant) error
}

// Effect is a sealed sum type; only this package implements it.
type Effect interface {
	EffectName() string
	Accept(Visitor) error
	sealed()
}

// Trap is a disruptive effect routed through the trap scheduler.
type Trap struct {
	Name string
}

// Status applies a one-shot status change.
type Status struct {
	Name   string
	Status string
	Amount float64
}

// Timed applies a status change in several steps spread over time.
type Timed struct {
	Name     string
	Status   string
	Amount   float64
	Steps    int
	Interval time.Duration
}

// Grant hands the named item to the game as-is.
type Grant struct {
	Name string
}

func (e Trap) EffectName() string   { return e.Name }
func (e Status) EffectName() string { return e.Name }
func (e Timed) EffectName() string  { return e.Name }
func (e Grant) EffectName() string  { return e.Name }

func (e Trap) Accept(v Visitor) error   { return v.VisitTrap(e) }
func (e Status) Accept(v Visitor) error { return v.VisitStatus(e) }
func (e Timed) Accept(v Visitor) error  { return v.VisitTimed(e) }
func (e Grant) Accept(v Visitor) error  { return v.VisitGrant(e) }

func (Trap) sealed()   {}
func (Status) sealed() {}
func (Timed) sealed()  {}
func (Grant) sealed()  {}
