package effects

import (
	"errors"
	"testing"
	"time"
)

func TestTimersRunsEachStepOnce(t *testing.T) {
	var steps []int
	timers := NewTimers(func(e Timed, step int) error {
		steps = append(steps, step)
		return nil
	})

	start := time.Unix(1700000000, 0)
	timers.Start(Timed{Name: "Campfire Warmth", Status: "cold", Steps: 3, Interval: time.Second}, start)

	timers.Tick(start)
	timers.Tick(start.Add(500 * time.Millisecond))
	timers.Tick(start.Add(time.Second))
	timers.Tick(start.Add(2 * time.Second))
	timers.Tick(start.Add(3 * time.Second))

	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %v", steps)
	}
	for i, s := range steps {
		if s != i {
			t.Errorf("expected step %d, got %d", i, s)
		}
	}
	if timers.Len() != 0 {
		t.Errorf("expected finished task to be dropped, %d left", timers.Len())
	}
}

func TestTimersSurvivesFailingStep(t *testing.T) {
	calls := 0
	timers := NewTimers(func(e Timed, step int) error {
		calls++
		if step == 0 {
			panic("boom")
		}
		return errors.New("nope")
	})

	start := time.Unix(1700000000, 0)
	timers.Start(Timed{Name: "Slow Poison", Steps: 2, Interval: time.Second}, start)
	timers.Tick(start)
	timers.Tick(start.Add(time.Second))

	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if timers.Len() != 0 {
		t.Errorf("expected no running tasks, got %d", timers.Len())
	}
}
