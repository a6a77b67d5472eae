package room

import (
	"sync"

	"github.com/user/linkbridge/internal/relay"
	"github.com/user/linkbridge/internal/types"
)

// Mesh is an in-process room with the server's host rules. Delivery is
// queued per peer and drained explicitly, which keeps ordering deterministic.
type Mesh struct {
	mu    sync.Mutex
	host  types.PeerID
	peers []*MeshPeer
}

func NewMesh() *Mesh {
	return &Mesh{}
}

// MeshPeer implements relay.Network for one member of a Mesh.
type MeshPeer struct {
	id    types.PeerID
	mesh  *Mesh
	inbox []relay.Envelope
}

// Join adds a peer. The first peer becomes host.
func (m *Mesh) Join(id types.PeerID) *MeshPeer {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &MeshPeer{id: id, mesh: m}
	m.peers = append(m.peers, p)
	if m.host == "" {
		m.host = id
	}
	return p
}

// Leave removes a peer and migrates the host to the oldest remaining peer.
func (m *Mesh) Leave(id types.PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.peers {
		if p.id == id {
			m.peers = append(m.peers[:i], m.peers[i+1:]...)
			break
		}
	}
	if m.host != id {
		return
	}
	m.host = ""
	if len(m.peers) > 0 {
		m.host = m.peers[0].id
	}
}

func (m *Mesh) Host() types.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.host
}

func (p *MeshPeer) LocalID() types.PeerID { return p.id }

func (p *MeshPeer) IsHost() bool {
	return p.mesh.Host() == p.id
}

func (p *MeshPeer) Broadcast(env relay.Envelope) error {
	env.From = p.id
	p.mesh.mu.Lock()
	defer p.mesh.mu.Unlock()
	for _, other := range p.mesh.peers {
		if other != p {
			other.inbox = append(other.inbox, env)
		}
	}
	return nil
}

func (p *MeshPeer) SendToHost(env relay.Envelope) error {
	env.From = p.id
	p.mesh.mu.Lock()
	defer p.mesh.mu.Unlock()
	for _, other := range p.mesh.peers {
		if other.id == p.mesh.host && other != p {
			other.inbox = append(other.inbox, env)
			return nil
		}
	}
	return relay.ErrNoHost
}

// Drain returns and clears the peer's pending envelopes.
func (p *MeshPeer) Drain() []relay.Envelope {
	p.mesh.mu.Lock()
	defer p.mesh.mu.Unlock()
	out := p.inbox
	p.inbox = nil
	return out
}
