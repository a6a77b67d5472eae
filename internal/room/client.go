package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/linkbridge/internal/relay"
	"github.com/user/linkbridge/internal/types"
)

var ErrClosed = errors.New("room: connection closed")

// Event is one notification from the room: an envelope, a membership
// change (Host and Peers) or Closed.
type Event struct {
	Envelope *relay.Envelope
	Host     types.PeerID
	Peers    []types.PeerID
	Closed   bool
	Err      error
}

type Options struct {
	URL  string
	Room string
	Peer types.PeerID
}

// Client is one peer's connection to the relay server. It implements
// relay.Network.
type Client struct {
	conn   *websocket.Conn
	peer   types.PeerID
	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu     sync.RWMutex
	host   types.PeerID
	peers  []types.PeerID
	closed bool
}

// Dial joins the room and waits for the server's welcome.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	u, err := wsURL(opts)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("room: dial: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var welcome frame
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			return nil, fmt.Errorf("room: read welcome: %w", err)
		}
		if f.Type == frameError {
			conn.Close()
			return nil, fmt.Errorf("room: join refused: %s", f.Error)
		}
		if f.Type == frameWelcome {
			welcome = f
			break
		}
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:   conn,
		peer:   opts.Peer,
		host:   welcome.Host,
		peers:  welcome.Peers,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	c.events <- Event{Host: welcome.Host, Peers: welcome.Peers}
	go c.readLoop()
	return c, nil
}

func wsURL(opts Options) (string, error) {
	base := strings.TrimRight(opts.URL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	if !strings.Contains(base, "://") {
		base = "ws://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("room: parse url: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	}
	q := u.Query()
	q.Set("room", opts.Room)
	q.Set("peer", string(opts.Peer))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closed = true
			c.host = ""
			c.mu.Unlock()
			c.deliver(Event{Closed: true, Err: err})
			return
		}
		var f frame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		switch f.Type {
		case frameHost:
			c.mu.Lock()
			changed := c.host != f.Host || !slices.Equal(c.peers, f.Peers)
			c.host = f.Host
			c.peers = f.Peers
			c.mu.Unlock()
			if changed && !c.deliver(Event{Host: f.Host, Peers: f.Peers}) {
				return
			}
		case frameEnvelope:
			if f.Envelope != nil && !c.deliver(Event{Envelope: f.Envelope}) {
				return
			}
		}
	}
}

func (c *Client) deliver(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// Events returns room notifications. The first event is always the host
// announced at join.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) LocalID() types.PeerID {
	return c.peer
}

// Peers returns the room members in join order.
func (c *Client) Peers() []types.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.peers)
}

// Host returns the currently announced host.
func (c *Client) Host() types.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

func (c *Client) IsHost() bool {
	return c.Host() == c.peer
}

func (c *Client) Broadcast(env relay.Envelope) error {
	return c.send(frame{Type: frameBroadcast, Envelope: &env})
}

func (c *Client) SendToHost(env relay.Envelope) error {
	if c.Host() == "" {
		return relay.ErrNoHost
	}
	return c.send(frame{Type: frameToHost, Envelope: &env})
}

func (c *Client) send(f frame) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteJSON(f); err != nil {
		return fmt.Errorf("room: write: %w", err)
	}
	return nil
}

// Close leaves the room. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
