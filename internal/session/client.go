package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/linkbridge/internal/types"
)

var (
	ErrNotConnected = errors.New("session: not connected")
	ErrRefused      = errors.New("session: connection refused")
)

const (
	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
	eventBuffer      = 256
)

// Options describe one slot on one service endpoint.
type Options struct {
	URL      string
	Slot     string
	Password string
	Game     string
	Tags     []string
	UUID     string
}

// Client is one live session. Packets arrive on Events in wire order; the
// channel closes after a final Closed packet.
type Client struct {
	conn   *websocket.Conn
	opts   Options
	events chan Packet
	done   chan struct{}

	writeMu   sync.Mutex
	connected atomic.Bool
	closeOnce sync.Once

	mu        sync.RWMutex
	tags      []string
	slot      int
	locations map[string]int64
	items     map[int64]string
}

// NormalizeURL adds a ws:// scheme when none is given and converts http(s).
func NormalizeURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "ws://"), strings.HasPrefix(u, "wss://"):
		return u
	default:
		return "ws://" + u
	}
}

// Dial connects, fetches the data package for opts.Game and authenticates
// the slot. A refused login returns an error wrapping ErrRefused.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.UUID == "" {
		opts.UUID = string(types.NewPeerID())
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, NormalizeURL(opts.URL), nil)
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}
	c := &Client{
		conn:      conn,
		opts:      opts,
		events:    make(chan Packet, eventBuffer),
		done:      make(chan struct{}),
		tags:      append([]string(nil), opts.Tags...),
		locations: make(map[string]int64),
		items:     make(map[int64]string),
	}
	if err := c.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	c.connected.Store(true)
	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	var sentConnect, gotConnected, gotData bool
	for !gotConnected || !gotData {
		packets, err := c.readFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("session: handshake: %w", err)
		}
		for _, p := range packets {
			switch p := p.(type) {
			case RoomInfo:
				if sentConnect {
					continue
				}
				sentConnect = true
				err := c.write(
					getDataPackageCmd{Cmd: "GetDataPackage", Games: []string{c.opts.Game}},
					connectCmd{
						Cmd:           "Connect",
						Password:      c.opts.Password,
						Game:          c.opts.Game,
						Name:          c.opts.Slot,
						UUID:          c.opts.UUID,
						Version:       clientVersion,
						ItemsHandling: itemsHandlingAll,
						Tags:          c.tagsCopy(),
						SlotData:      true,
					},
				)
				if err != nil {
					return fmt.Errorf("session: send connect: %w", err)
				}
			case DataPackage:
				c.loadDataPackage(p)
				gotData = true
			case ConnectionRefused:
				return fmt.Errorf("%w: %s", ErrRefused, strings.Join(p.Errors, ", "))
			case Connected:
				c.mu.Lock()
				c.slot = p.Slot
				c.mu.Unlock()
				gotConnected = true
				c.deliver(p)
			default:
				c.deliver(p)
			}
		}
	}
	slog.Info("session connected", "url", c.opts.URL, "slot", c.opts.Slot, "locations", len(c.locations))
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		packets, err := c.readFrame()
		if err != nil {
			c.connected.Store(false)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = nil
			}
			c.deliver(Closed{Err: err})
			return
		}
		for _, p := range packets {
			if dp, ok := p.(DataPackage); ok {
				c.loadDataPackage(dp)
			}
			if !c.deliver(p) {
				return
			}
		}
	}
}

// deliver blocks until the packet is taken or the client is closed.
func (c *Client) deliver(p Packet) bool {
	select {
	case c.events <- p:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) readFrame() ([]Packet, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		packets, err := decodeFrame(data)
		if err != nil {
			slog.Warn("discarding malformed frame", "error", err)
			continue
		}
		return packets, nil
	}
}

func (c *Client) loadDataPackage(dp DataPackage) {
	game, ok := dp.Data.Games[c.opts.Game]
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, id := range game.LocationNameToID {
		c.locations[name] = id
	}
	for name, id := range game.ItemNameToID {
		c.items[id] = name
	}
}

func (c *Client) write(cmds ...any) error {
	data, err := json.Marshal(cmds)
	if err != nil {
		return fmt.Errorf("encode commands: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) send(cmds ...any) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if err := c.write(cmds...); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

func (c *Client) tagsCopy() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.tags...)
}

// Events returns the inbound packet stream.
func (c *Client) Events() <-chan Packet {
	return c.events
}

func (c *Client) Connected() bool {
	return c != nil && c.connected.Load()
}

// Slot returns the numeric slot assigned at login.
func (c *Client) Slot() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slot
}

// LocationID resolves a location name through the data package.
func (c *Client) LocationID(name string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.locations[name]
	return id, ok
}

// ItemName resolves an item id, or returns "" when unknown.
func (c *Client) ItemName(id int64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[id]
}

// InboundEvents expands a ReceivedItems packet into indexed events.
func (c *Client) InboundEvents(p ReceivedItems) []types.InboundEvent {
	out := make([]types.InboundEvent, 0, len(p.Items))
	for i, it := range p.Items {
		out = append(out, types.InboundEvent{
			Index:        p.Index + int64(i),
			Kind:         types.EventItem,
			ItemID:       it.Item,
			Name:         c.ItemName(it.Item),
			SourcePlayer: it.Player,
			LocationID:   it.Location,
		})
	}
	return out
}

func (c *Client) CheckLocations(ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	return c.send(locationChecksCmd{Cmd: "LocationChecks", Locations: ids})
}

func (c *Client) Bounce(tags []string, data map[string]any) error {
	return c.send(bounceCmd{Cmd: "Bounce", Tags: tags, Data: data})
}

// Add applies key += delta on the server.
func (c *Client) Add(key string, delta int64) error {
	return c.send(setCmd{
		Cmd:        "Set",
		Key:        key,
		Default:    0,
		WantReply:  true,
		Operations: []dataStorageOp{{Operation: "add", Value: delta}},
	})
}

// Max applies key = max(key, floor) on the server.
func (c *Client) Max(key string, floor int64) error {
	return c.send(setCmd{
		Cmd:        "Set",
		Key:        key,
		Default:    0,
		WantReply:  true,
		Operations: []dataStorageOp{{Operation: "max", Value: floor}},
	})
}

// SetNotify subscribes to SetReply packets for keys.
func (c *Client) SetNotify(keys ...string) error {
	return c.send(keysCmd{Cmd: "SetNotify", Keys: keys})
}

// Get requests the current values of keys; the answer arrives as Retrieved.
func (c *Client) Get(keys ...string) error {
	return c.send(keysCmd{Cmd: "Get", Keys: keys})
}

// UpdateTags replaces the session's tag subscriptions.
func (c *Client) UpdateTags(tags []string) error {
	c.mu.Lock()
	c.tags = append([]string(nil), tags...)
	c.mu.Unlock()
	return c.send(connectUpdateCmd{Cmd: "ConnectUpdate", ItemsHandling: itemsHandlingAll, Tags: tags})
}

// Close ends the session. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
