// Package ingest orders, deduplicates and paces inbound external events.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/user/linkbridge/internal/types"
)

// DefaultPollInterval paces application to one event per interval so
// disruptive effects never land at the same time.
const DefaultPollInterval = time.Second

// Checkpoint is the slice of the checkpoint store the queue depends on.
type Checkpoint interface {
	LastAppliedIndex() int64
	Advance(index int64) bool
}

// ErrDeferred tells the queue that an event could not be applied yet. The
// event stays at the head and its index is not consumed.
var ErrDeferred = errors.New("ingest: event deferred")

// ApplyFunc applies one event. Errors and panics are logged and the event's
// index is consumed, except for ErrDeferred.
type ApplyFunc func(types.InboundEvent) error

// Queue holds accepted events in ascending index order. It runs on the host
// tick loop only and is not safe for concurrent use.
type Queue struct {
	checkpoint Checkpoint
	apply      ApplyFunc
	interval   time.Duration
	pending    []types.InboundEvent
	nextDrain  time.Time
}

// NewQueue creates a queue draining at most one event per interval.
func NewQueue(checkpoint Checkpoint, interval time.Duration, apply ApplyFunc) *Queue {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Queue{
		checkpoint: checkpoint,
		apply:      apply,
		interval:   interval,
	}
}

// OnExternalEvent accepts an event unless its index was already applied or
// is already pending. The service resends its whole backlog on reconnect,
// so rejections here are routine.
func (q *Queue) OnExternalEvent(event types.InboundEvent) bool {
	if event.Index <= q.checkpoint.LastAppliedIndex() {
		slog.Debug("dropping replayed event", "index", event.Index, "name", event.Name)
		return false
	}
	i := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].Index >= event.Index
	})
	if i < len(q.pending) && q.pending[i].Index == event.Index {
		return false
	}
	q.pending = append(q.pending, types.InboundEvent{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = event
	return true
}

// Tick drains one event if the poll interval has elapsed since the last
// drain attempt.
func (q *Queue) Tick(now time.Time) (types.InboundEvent, bool) {
	if now.Before(q.nextDrain) {
		return types.InboundEvent{}, false
	}
	q.nextDrain = now.Add(q.interval)
	return q.DrainOne()
}

// DrainOne applies the oldest pending event and advances the checkpoint. A
// failing event is logged and skipped for good; a deferred one is kept.
func (q *Queue) DrainOne() (types.InboundEvent, bool) {
	if len(q.pending) == 0 {
		return types.InboundEvent{}, false
	}
	event := q.pending[0]
	if event.Index <= q.checkpoint.LastAppliedIndex() {
		q.pop()
		return types.InboundEvent{}, false
	}
	err := q.safeApply(event)
	if errors.Is(err, ErrDeferred) {
		slog.Debug("event deferred", "index", event.Index, "name", event.Name)
		return types.InboundEvent{}, false
	}
	q.pop()
	if err != nil {
		slog.Error("event application failed, skipping", "index", event.Index, "name", event.Name, "error", err)
	}
	q.checkpoint.Advance(event.Index)
	return event, true
}

func (q *Queue) pop() {
	q.pending[0] = types.InboundEvent{}
	q.pending = q.pending[1:]
}

func (q *Queue) safeApply(event types.InboundEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if q.apply == nil {
		return nil
	}
	return q.apply(event)
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Reset drops pending events. They are replayed by the service on the next
// connection.
func (q *Queue) Reset() {
	q.pending = nil
	q.nextDrain = time.Time{}
}
