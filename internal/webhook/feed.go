package webhook

import (
	"log/slog"
	"sync"
	"time"
)

const defaultFeedLimit = 512

// AppliedEffect is one effect handed to the game, in application order.
type AppliedEffect struct {
	Seq      int64     `json:"seq"`
	Name     string    `json:"name,omitempty"`
	Status   string    `json:"status,omitempty"`
	Amount   float64   `json:"amount,omitempty"`
	FromLink bool      `json:"from_link,omitempty"`
	At       time.Time `json:"at"`
}

// CharacterState is what the game last told us about its character.
type CharacterState struct {
	Connected     bool `json:"connected"`
	Alive         bool `json:"alive"`
	Incapacitated bool `json:"incapacitated"`
}

// Feed is the Applier and CharacterView for an out-of-process game. The
// bridge appends effects from its tick loop and the game polls them over
// HTTP; the game pushes character state back the same way.
type Feed struct {
	mu      sync.Mutex
	limit   int
	next    int64
	effects []AppliedEffect
	char    CharacterState
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return &Feed{
		limit: limit,
		next:  1,
		char:  CharacterState{Connected: true, Alive: true},
	}
}

func (f *Feed) Apply(effectName string, fromLinkBus bool) {
	f.push(AppliedEffect{Name: effectName, FromLink: fromLinkBus})
}

func (f *Feed) ApplyStatus(status string, amount float64) {
	f.push(AppliedEffect{Status: status, Amount: amount})
}

func (f *Feed) push(e AppliedEffect) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.Seq = f.next
	e.At = time.Now()
	f.next++
	f.effects = append(f.effects, e)
	if n := len(f.effects) - f.limit; n > 0 {
		slog.Warn("effect feed overflow, dropping oldest", "dropped", n)
		f.effects = append(f.effects[:0:0], f.effects[n:]...)
	}
	slog.Debug("effect queued for game", "seq", e.Seq, "effect", e.Name, "status", e.Status)
}

// Since returns up to limit effects with Seq > after.
func (f *Feed) Since(after int64, limit int) []AppliedEffect {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []AppliedEffect{}
	for _, e := range f.effects {
		if e.Seq <= after {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, e)
	}
	return out
}

func (f *Feed) SetCharacter(c CharacterState) {
	f.mu.Lock()
	f.char = c
	f.mu.Unlock()
}

func (f *Feed) Character() CharacterState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.char
}

func (f *Feed) Connected() bool     { return f.Character().Connected }
func (f *Feed) Alive() bool         { return f.Character().Alive }
func (f *Feed) Incapacitated() bool { return f.Character().Incapacitated }
