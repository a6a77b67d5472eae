// Package relay carries host-authoritative results to every peer in the
// room and forwards peer requests to the current host.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/user/linkbridge/internal/types"
)

type Kind string

const (
	KindItemApplied    Kind = "item.applied"
	KindCheckCompleted Kind = "check.completed"
	KindPoolChanged    Kind = "pool.changed"
	KindLinkApplied    Kind = "link.applied"

	KindReportCheck    Kind = "check.report"
	KindPoolContribute Kind = "pool.contribute"
	KindPoolConsume    Kind = "pool.consume"
	KindLinkSend       Kind = "link.send"
)

// Envelope is the unit exchanged over the room network. Downlinks carry the
// host's epoch and a per-epoch sequence number.
type Envelope struct {
	Kind  Kind            `json:"kind"`
	From  types.PeerID    `json:"from"`
	Epoch types.Epoch     `json:"epoch,omitempty"`
	Seq   uint64          `json:"seq,omitempty"`
	Body  json.RawMessage `json:"body"`
}

// Downlink is a host -> all broadcast.
type Downlink interface {
	Kind() Kind
	downlink()
}

// Uplink is a peer -> host request.
type Uplink interface {
	Kind() Kind
	uplink()
}

// ItemApplied announces an applied inbound event. Index lets every peer
// advance its own checkpoint.
type ItemApplied struct {
	Index  int64  `json:"index"`
	Name   string `json:"name"`
	Sender int    `json:"sender"`
}

// CheckCompleted announces a newly reported check.
type CheckCompleted struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// PoolChanged carries the absolute pool value, so redelivery is harmless.
type PoolChanged struct {
	Value int64 `json:"value"`
}

// LinkApplied mirrors a link bus message received by the host.
type LinkApplied struct {
	Tag    string `json:"tag"`
	Name   string `json:"name,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

type ReportCheck struct {
	Name string `json:"name"`
}

type PoolContribute struct {
	Amount int64 `json:"amount"`
}

type PoolConsume struct {
	Amount int64 `json:"amount"`
}

type LinkSend struct {
	Tag    string `json:"tag"`
	Name   string `json:"name,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

func (ItemApplied) Kind() Kind    { return KindItemApplied }
func (CheckCompleted) Kind() Kind { return KindCheckCompleted }
func (PoolChanged) Kind() Kind    { return KindPoolChanged }
func (LinkApplied) Kind() Kind    { return KindLinkApplied }
func (ReportCheck) Kind() Kind    { return KindReportCheck }
func (PoolContribute) Kind() Kind { return KindPoolContribute }
func (PoolConsume) Kind() Kind    { return KindPoolConsume }
func (LinkSend) Kind() Kind       { return KindLinkSend }

func (ItemApplied) downlink()    {}
func (CheckCompleted) downlink() {}
func (PoolChanged) downlink()    {}
func (LinkApplied) downlink()    {}
func (ReportCheck) uplink()      {}
func (PoolContribute) uplink()   {}
func (PoolConsume) uplink()      {}
func (LinkSend) uplink()         {}

// IsDownlink reports whether k is a host broadcast kind.
func (k Kind) IsDownlink() bool {
	switch k {
	case KindItemApplied, KindCheckCompleted, KindPoolChanged, KindLinkApplied:
		return true
	}
	return false
}

func decodeBody[T any](env Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Body, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return v, nil
}

// DecodeDownlink returns the typed downlink carried by env.
func DecodeDownlink(env Envelope) (Downlink, error) {
	switch env.Kind {
	case KindItemApplied:
		return decodeBody[ItemApplied](env)
	case KindCheckCompleted:
		return decodeBody[CheckCompleted](env)
	case KindPoolChanged:
		return decodeBody[PoolChanged](env)
	case KindLinkApplied:
		return decodeBody[LinkApplied](env)
	default:
		return nil, fmt.Errorf("relay: %q is not a downlink", env.Kind)
	}
}

// DecodeUplink returns the typed uplink carried by env.
func DecodeUplink(env Envelope) (Uplink, error) {
	switch env.Kind {
	case KindReportCheck:
		return decodeBody[ReportCheck](env)
	case KindPoolContribute:
		return decodeBody[PoolContribute](env)
	case KindPoolConsume:
		return decodeBody[PoolConsume](env)
	case KindLinkSend:
		return decodeBody[LinkSend](env)
	default:
		return nil, fmt.Errorf("relay: %q is not an uplink", env.Kind)
	}
}

func newEnvelope(kind Kind, from types.PeerID, body any) (Envelope, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Envelope{Kind: kind, From: from, Body: data}, nil
}
