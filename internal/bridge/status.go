package bridge

import (
	"github.com/user/linkbridge/internal/types"
)

// Status is a point-in-time snapshot for the local API and housekeeping.
type Status struct {
	Endpoint         types.EndpointKey `json:"endpoint"`
	Host             bool              `json:"host"`
	Epoch            types.Epoch       `json:"epoch,omitempty"`
	SessionConnected bool              `json:"session_connected"`
	LastAppliedIndex int64             `json:"last_applied_index"`
	AppliedCount     int64             `json:"applied_count"`
	ReportedChecks   int               `json:"reported_checks"`
	Pool             int64             `json:"pool"`
	PendingEvents    int               `json:"pending_events"`
	PendingTraps     int               `json:"pending_traps"`
	TrapState        string            `json:"trap_state"`
	TimedEffects     int               `json:"timed_effects"`
	Links            []string          `json:"links"`
}

func (c *Core) Status() Status {
	rec := c.store.Record()
	return Status{
		Endpoint:         c.opts.Endpoint,
		Host:             c.host,
		Epoch:            c.relay.Epoch(),
		SessionConnected: c.SessionConnected(),
		LastAppliedIndex: rec.LastAppliedIndex,
		AppliedCount:     rec.AppliedCount,
		ReportedChecks:   len(rec.ReportedChecks),
		Pool:             c.pool.Value(),
		PendingEvents:    c.queue.Len(),
		PendingTraps:     c.traps.Pending(),
		TrapState:        string(c.traps.State(c.now)),
		TimedEffects:     c.timers.Len(),
		Links:            c.router.EnabledTags(),
	}
}
