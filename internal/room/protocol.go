// Package room is the peer network: a websocket relay hub that elects one
// host per room, the client each peer uses to reach it, and an in-memory
// mesh with the same semantics.
package room

import (
	"github.com/user/linkbridge/internal/relay"
	"github.com/user/linkbridge/internal/types"
)

const (
	frameWelcome   = "welcome"
	frameHost      = "host"
	frameBroadcast = "broadcast"
	frameToHost    = "to_host"
	frameEnvelope  = "envelope"
	frameError     = "error"
)

type frame struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	Peer     types.PeerID    `json:"peer,omitempty"`
	Host     types.PeerID    `json:"host,omitempty"`
	Peers    []types.PeerID  `json:"peers,omitempty"`
	Envelope *relay.Envelope `json:"envelope,omitempty"`
	Error    string          `json:"error,omitempty"`
}
