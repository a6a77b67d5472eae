// Package trap rate-limits disruptive effects behind a fixed cooldown.
package trap

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultCooldown is the minimum gap between two trap activations.
const DefaultCooldown = 2 * time.Second

type State string

const (
	StateIdle     State = "idle"
	StateCooldown State = "cooldown"
)

// Entry is one queued trap. FromLink marks traps that arrived over the
// cross-title link bus; dispatch must not re-broadcast them.
type Entry struct {
	EffectID string
	FromLink bool
}

// DispatchFunc activates a trap.
type DispatchFunc func(Entry) error

// LivenessFunc reports whether a trap may land right now.
type LivenessFunc func() bool

// Scheduler drains a FIFO plus a single priority slot, at most one entry
// per cooldown window. It is driven by the tick loop and holds no locks.
type Scheduler struct {
	cooldown  time.Duration
	dispatch  DispatchFunc
	live      LivenessFunc
	fifo      []Entry
	priority  *Entry
	lastFired time.Time
	fired     bool
}

func NewScheduler(cooldown time.Duration, live LivenessFunc, dispatch DispatchFunc) *Scheduler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Scheduler{
		cooldown: cooldown,
		dispatch: dispatch,
		live:     live,
	}
}

// Enqueue appends a locally sourced trap to the FIFO.
func (s *Scheduler) Enqueue(e Entry) {
	s.fifo = append(s.fifo, e)
}

// EnqueuePriority places e in the priority slot. A trap already waiting in
// the slot is moved to the head of the FIFO rather than lost.
func (s *Scheduler) EnqueuePriority(e Entry) {
	if s.priority != nil {
		s.fifo = append([]Entry{*s.priority}, s.fifo...)
	}
	s.priority = &e
}

// State reports whether the scheduler is inside its cooldown window at now.
func (s *Scheduler) State(now time.Time) State {
	if s.fired && now.Sub(s.lastFired) < s.cooldown {
		return StateCooldown
	}
	return StateIdle
}

// Tick activates at most one trap. The priority slot always goes first and
// is cleared after a single attempt. An entry whose target is not live is
// discarded without starting a cooldown.
func (s *Scheduler) Tick(now time.Time) (Entry, bool) {
	if s.State(now) == StateCooldown {
		return Entry{}, false
	}
	entry, ok := s.pop()
	if !ok {
		return Entry{}, false
	}
	if s.live != nil && !s.live() {
		slog.Debug("discarding trap, target not live", "effect", entry.EffectID)
		return Entry{}, false
	}
	if err := s.safeDispatch(entry); err != nil {
		slog.Error("trap dispatch failed", "effect", entry.EffectID, "from_link", entry.FromLink, "error", err)
	}
	s.lastFired = now
	s.fired = true
	return entry, true
}

func (s *Scheduler) pop() (Entry, bool) {
	if s.priority != nil {
		e := *s.priority
		s.priority = nil
		return e, true
	}
	if len(s.fifo) == 0 {
		return Entry{}, false
	}
	e := s.fifo[0]
	s.fifo = s.fifo[1:]
	return e, true
}

func (s *Scheduler) safeDispatch(e Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if s.dispatch == nil {
		return nil
	}
	return s.dispatch(e)
}

// Pending returns the number of waiting traps, priority slot included.
func (s *Scheduler) Pending() int {
	n := len(s.fifo)
	if s.priority != nil {
		n++
	}
	return n
}

// Clear drops every waiting trap.
func (s *Scheduler) Clear() {
	s.fifo = nil
	s.priority = nil
}
