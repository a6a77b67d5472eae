package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFiresJob(t *testing.T) {
	var fires atomic.Int32
	sched := New(Job{
		Name:     "every-second",
		Schedule: "* * * * * *",
		Run: func(ctx context.Context) error {
			fires.Add(1)
			return nil
		},
	})
	require.Equal(t, 1, sched.Start(context.Background()))
	defer sched.Stop()

	assert.Eventually(t, func() bool { return fires.Load() > 0 }, 2500*time.Millisecond, 50*time.Millisecond)
}

func TestSchedulerDescriptor(t *testing.T) {
	var fires atomic.Int32
	sched := New(Job{
		Name:     "housekeeping",
		Schedule: "@every 1s",
		Run: func(ctx context.Context) error {
			fires.Add(1)
			return errors.New("logged, not fatal")
		},
	})
	require.Equal(t, 1, sched.Start(context.Background()))
	defer sched.Stop()

	assert.Eventually(t, func() bool { return fires.Load() >= 2 }, 3500*time.Millisecond, 50*time.Millisecond)
}

func TestSchedulerSkipsInvalidAndEmpty(t *testing.T) {
	noop := func(context.Context) error { return nil }
	sched := New(
		Job{Name: "broken", Schedule: "not a schedule", Run: noop},
		Job{Name: "off", Schedule: "", Run: noop},
		Job{Name: "ok", Schedule: "@hourly", Run: noop},
	)
	assert.Equal(t, 1, sched.Start(context.Background()))
	sched.Stop()
}

func TestStopCancelsJobContext(t *testing.T) {
	started := make(chan struct{}, 1)
	var cancelled atomic.Bool
	sched := New(Job{
		Name:     "slow",
		Schedule: "* * * * * *",
		Run: func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	})
	sched.Start(context.Background())

	select {
	case <-started:
	case <-time.After(2500 * time.Millisecond):
		t.Fatal("job did not start")
	}
	sched.Stop()
	assert.True(t, cancelled.Load())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("@every 30s"))
	assert.NoError(t, Validate("*/5 * * * *"))
	assert.NoError(t, Validate("0 */5 * * * *"))
	assert.Error(t, Validate("every thirty seconds"))
}
