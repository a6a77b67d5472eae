package effects

import (
	"fmt"
	"log/slog"
	"time"
)

// StepFunc applies one step of a timed effect. step is zero-based.
type StepFunc func(e Timed, step int) error

type timedTask struct {
	effect Timed
	step   int
	due    time.Time
}

// Timers runs timed effects as explicit state machines driven by Tick. Each
// task carries its own resumption state; nothing blocks the tick loop.
type Timers struct {
	tasks []*timedTask
	apply StepFunc
}

func NewTimers(apply StepFunc) *Timers {
	return &Timers{apply: apply}
}

// Start schedules e with its first step due at now.
func (t *Timers) Start(e Timed, now time.Time) {
	t.tasks = append(t.tasks, &timedTask{effect: e, due: now})
}

// Tick applies every step that is due and drops finished tasks. A failing
// step is logged and the task still advances.
func (t *Timers) Tick(now time.Time) {
	live := t.tasks[:0]
	for _, task := range t.tasks {
		if !now.Before(task.due) {
			if err := t.step(task); err != nil {
				slog.Error("timed effect step failed", "effect", task.effect.Name, "step", task.step, "error", err)
			}
			task.step++
			task.due = now.Add(task.effect.Interval)
		}
		if task.step < task.effect.Steps {
			live = append(live, task)
		}
	}
	for i := len(live); i < len(t.tasks); i++ {
		t.tasks[i] = nil
	}
	t.tasks = live
}

func (t *Timers) step(task *timedTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if t.apply == nil {
		return nil
	}
	return t.apply(task.effect, task.step)
}

// Len returns the number of running timed effects.
func (t *Timers) Len() int {
	return len(t.tasks)
}
