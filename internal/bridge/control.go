package bridge

import (
	"context"
	"log/slog"
)

// Control runs Core operations from other goroutines through Runner.Do.
type Control struct {
	r *Runner
}

func NewControl(r *Runner) Control {
	return Control{r: r}
}

func (c Control) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.r.Do(ctx, func(core *Core) error {
		st = core.Status()
		return nil
	})
	return st, err
}

func (c Control) ReportCheck(ctx context.Context, name string) (bool, error) {
	var fresh bool
	err := c.r.Do(ctx, func(core *Core) error {
		fresh = core.ReportCheck(name)
		return nil
	})
	return fresh, err
}

func (c Control) Contribute(ctx context.Context, amount int64) error {
	return c.r.Do(ctx, func(core *Core) error {
		return core.Contribute(amount)
	})
}

func (c Control) Consume(ctx context.Context, amount int64) (bool, error) {
	var ok bool
	err := c.r.Do(ctx, func(core *Core) error {
		ok = core.Consume(amount)
		return nil
	})
	return ok, err
}

func (c Control) LocalDeath(ctx context.Context, cause string) error {
	return c.r.Do(ctx, func(core *Core) error {
		return core.LocalDeath(cause)
	})
}

func (c Control) SendLink(ctx context.Context, tag, name string, amount int64) error {
	return c.r.Do(ctx, func(core *Core) error {
		return core.SendLink(tag, name, amount)
	})
}

func (c Control) SetLinkEnabled(ctx context.Context, tag string, enabled bool) error {
	return c.r.Do(ctx, func(core *Core) error {
		return core.SetLinkEnabled(tag, enabled)
	})
}

// Housekeep flushes the checkpoint and logs a status line.
func (c Control) Housekeep(ctx context.Context) error {
	return c.r.Do(ctx, func(core *Core) error {
		st := core.Status()
		slog.Info("bridge status",
			"endpoint", st.Endpoint,
			"host", st.Host,
			"session", st.SessionConnected,
			"last_applied", st.LastAppliedIndex,
			"pool", st.Pool,
			"pending_traps", st.PendingTraps,
		)
		return core.FlushCheckpoint()
	})
}
