// internal/types/models.go
package types

type EventKind string

const (
	EventItem  EventKind = "item"
	EventCheck EventKind = "check"
)

// InboundEvent is the local, transient copy of one indexed event delivered by
// the external service. The service keeps the authoritative copy and replays
// its backlog on every reconnect.
type InboundEvent struct {
	Index        int64     `json:"index"`
	Kind         EventKind `json:"kind"`
	ItemID       int64     `json:"item_id,omitempty"`
	Name         string    `json:"name"`
	SourcePlayer int       `json:"source_player"`
	LocationID   int64     `json:"location_id,omitempty"`
}
