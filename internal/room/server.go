package room

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/linkbridge/internal/types"
)

type subscriber struct {
	id   types.PeerID
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

type roomState struct {
	host  types.PeerID
	peers []*subscriber
}

func (r *roomState) find(id types.PeerID) *subscriber {
	for _, p := range r.peers {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (r *roomState) ids() []types.PeerID {
	out := make([]types.PeerID, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p.id)
	}
	return out
}

// Server relays envelopes between peers of the same room. The first peer to
// join a room is its host; when the host leaves, the oldest remaining peer
// takes over.
type Server struct {
	mu       sync.Mutex
	rooms    map[string]*roomState
	upgrader websocket.Upgrader
}

func NewServer() *Server {
	return &Server{
		rooms: make(map[string]*roomState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler serving /ws and /health.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "rooms": s.RoomCount()})
	})
	return mux
}

// RoomCount returns the number of rooms with at least one peer.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Host returns the current host of a room.
func (s *Server) Host(room string) (types.PeerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[room]
	if !ok {
		return "", false
	}
	return r.host, true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("room")
	peerID := types.PeerID(r.URL.Query().Get("peer"))
	if roomName == "" || peerID == "" {
		http.Error(w, "missing room or peer", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("room upgrade failed", "peer", string(peerID), "error", err)
		return
	}
	sub := &subscriber{id: peerID, conn: conn}
	if !s.join(roomName, sub) {
		sub.write(frame{Type: frameError, Error: "peer id already in room"})
		conn.Close()
		return
	}
	defer s.leave(roomName, sub)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil || f.Envelope == nil {
			slog.Warn("discarding malformed room frame", "peer", string(peerID))
			continue
		}
		f.Envelope.From = peerID
		s.route(roomName, sub, f)
	}
}

func (s *Server) join(roomName string, sub *subscriber) bool {
	s.mu.Lock()
	r, ok := s.rooms[roomName]
	if !ok {
		r = &roomState{}
		s.rooms[roomName] = r
	}
	if r.find(sub.id) != nil {
		s.mu.Unlock()
		return false
	}
	r.peers = append(r.peers, sub)
	if r.host == "" {
		r.host = sub.id
	}
	host, peers, all := r.host, r.ids(), append([]*subscriber(nil), r.peers...)
	s.mu.Unlock()

	slog.Info("peer joined room", "room", roomName, "peer", string(sub.id), "host", string(host), "peers", len(peers))
	sub.write(frame{Type: frameWelcome, Room: roomName, Peer: sub.id, Host: host, Peers: peers})
	for _, p := range all {
		if p != sub {
			p.write(frame{Type: frameHost, Room: roomName, Host: host, Peers: peers})
		}
	}
	return true
}

func (s *Server) leave(roomName string, sub *subscriber) {
	sub.conn.Close()

	s.mu.Lock()
	r, ok := s.rooms[roomName]
	if !ok {
		s.mu.Unlock()
		return
	}
	for i, p := range r.peers {
		if p == sub {
			r.peers = append(r.peers[:i], r.peers[i+1:]...)
			break
		}
	}
	if len(r.peers) == 0 {
		delete(s.rooms, roomName)
		s.mu.Unlock()
		slog.Info("room closed", "room", roomName)
		return
	}
	migrated := r.host == sub.id
	if migrated {
		r.host = r.peers[0].id
	}
	host, peers, all := r.host, r.ids(), append([]*subscriber(nil), r.peers...)
	s.mu.Unlock()

	slog.Info("peer left room", "room", roomName, "peer", string(sub.id), "host", string(host), "migrated", migrated)
	for _, p := range all {
		p.write(frame{Type: frameHost, Room: roomName, Host: host, Peers: peers})
	}
}

func (s *Server) route(roomName string, from *subscriber, f frame) {
	s.mu.Lock()
	r, ok := s.rooms[roomName]
	if !ok {
		s.mu.Unlock()
		return
	}
	var targets []*subscriber
	switch f.Type {
	case frameBroadcast:
		for _, p := range r.peers {
			if p != from {
				targets = append(targets, p)
			}
		}
	case frameToHost:
		if host := r.find(r.host); host != nil && host != from {
			targets = append(targets, host)
		}
	}
	s.mu.Unlock()

	out := frame{Type: frameEnvelope, Room: roomName, Envelope: f.Envelope}
	for _, p := range targets {
		if err := p.write(out); err != nil {
			slog.Warn("room delivery failed", "room", roomName, "peer", string(p.id), "error", err)
		}
	}
}
