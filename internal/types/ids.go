// internal/types/ids.go
package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type PeerID string
type Epoch string
type OriginID int64

// EndpointKey identifies one external service endpoint (host and port).
type EndpointKey string

func NewPeerID() PeerID {
	return PeerID(uuid.New().String())
}

// NewEpoch returns a fresh downlink epoch. A process takes a new epoch every
// time it becomes host so peers can reset their sequence tracking.
func NewEpoch() Epoch {
	return Epoch(uuid.New().String())
}

// NewOriginID returns a random non-zero origin used to recognise our own link
// messages when the service echoes them back.
func NewOriginID() OriginID {
	for {
		if id := OriginID(uuid.New().ID()); id != 0 {
			return id
		}
	}
}

func NewEndpointKey(host string, port int) EndpointKey {
	return EndpointKey(fmt.Sprintf("%s:%d", strings.ToLower(strings.TrimSpace(host)), port))
}
