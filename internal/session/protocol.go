// Package session is a client for the external coordination service. The
// wire format is a websocket text frame holding a JSON array of commands,
// each an object discriminated by its "cmd" field.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	cmdRoomInfo          = "RoomInfo"
	cmdConnected         = "Connected"
	cmdConnectionRefused = "ConnectionRefused"
	cmdReceivedItems     = "ReceivedItems"
	cmdRoomUpdate        = "RoomUpdate"
	cmdBounced           = "Bounced"
	cmdSetReply          = "SetReply"
	cmdRetrieved         = "Retrieved"
	cmdDataPackage       = "DataPackage"
)

// Item handling flags sent with Connect: receive items from other worlds,
// from our own world, and the starting inventory.
const itemsHandlingAll = 0b111

type version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

var clientVersion = version{Major: 0, Minor: 5, Build: 1, Class: "Version"}

type connectCmd struct {
	Cmd           string   `json:"cmd"`
	Password      string   `json:"password"`
	Game          string   `json:"game"`
	Name          string   `json:"name"`
	UUID          string   `json:"uuid"`
	Version       version  `json:"version"`
	ItemsHandling int      `json:"items_handling"`
	Tags          []string `json:"tags"`
	SlotData      bool     `json:"slot_data"`
}

type connectUpdateCmd struct {
	Cmd           string   `json:"cmd"`
	ItemsHandling int      `json:"items_handling"`
	Tags          []string `json:"tags"`
}

type locationChecksCmd struct {
	Cmd       string  `json:"cmd"`
	Locations []int64 `json:"locations"`
}

type bounceCmd struct {
	Cmd  string         `json:"cmd"`
	Tags []string       `json:"tags"`
	Data map[string]any `json:"data"`
}

type dataStorageOp struct {
	Operation string `json:"operation"`
	Value     any    `json:"value"`
}

type setCmd struct {
	Cmd        string          `json:"cmd"`
	Key        string          `json:"key"`
	Default    any             `json:"default"`
	WantReply  bool            `json:"want_reply"`
	Operations []dataStorageOp `json:"operations"`
}

type keysCmd struct {
	Cmd  string   `json:"cmd"`
	Keys []string `json:"keys"`
}

type getDataPackageCmd struct {
	Cmd   string   `json:"cmd"`
	Games []string `json:"games"`
}

// Packet is one decoded server command.
type Packet interface {
	packet()
}

type RoomInfo struct {
	Seed  string   `json:"seed_name"`
	Games []string `json:"games"`
}

type Connected struct {
	Team             int             `json:"team"`
	Slot             int             `json:"slot"`
	CheckedLocations []int64         `json:"checked_locations"`
	MissingLocations []int64         `json:"missing_locations"`
	SlotData         json.RawMessage `json:"slot_data,omitempty"`
}

type ConnectionRefused struct {
	Errors []string `json:"errors"`
}

type NetworkItem struct {
	Item     int64 `json:"item"`
	Location int64 `json:"location"`
	Player   int   `json:"player"`
	Flags    int   `json:"flags"`
}

// ReceivedItems carries items starting at Index. Index 0 means the server is
// resending the full backlog.
type ReceivedItems struct {
	Index int64         `json:"index"`
	Items []NetworkItem `json:"items"`
}

type RoomUpdate struct {
	CheckedLocations []int64 `json:"checked_locations"`
}

type Bounced struct {
	Tags []string       `json:"tags"`
	Data map[string]any `json:"data"`
}

type SetReply struct {
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	OriginalValue json.RawMessage `json:"original_value"`
}

// Int returns the reply value as an integer; non-numeric values read as 0.
func (r SetReply) Int() int64 {
	return rawToInt(r.Value)
}

type Retrieved struct {
	Keys map[string]json.RawMessage `json:"keys"`
}

// Int returns the retrieved value of key as an integer.
func (r Retrieved) Int(key string) (int64, bool) {
	raw, ok := r.Keys[key]
	if !ok {
		return 0, false
	}
	return rawToInt(raw), true
}

type GameData struct {
	ItemNameToID     map[string]int64 `json:"item_name_to_id"`
	LocationNameToID map[string]int64 `json:"location_name_to_id"`
}

type DataPackage struct {
	Data struct {
		Games map[string]GameData `json:"games"`
	} `json:"data"`
}

// Closed is delivered last when the connection ends.
type Closed struct {
	Err error
}

func (RoomInfo) packet()          {}
func (Connected) packet()         {}
func (ConnectionRefused) packet() {}
func (ReceivedItems) packet()     {}
func (RoomUpdate) packet()        {}
func (Bounced) packet()           {}
func (SetReply) packet()          {}
func (Retrieved) packet()         {}
func (DataPackage) packet()       {}
func (Closed) packet()            {}

func rawToInt(raw json.RawMessage) int64 {
	s := string(bytes.TrimSpace(raw))
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

// decodeFrame splits one frame into packets. Unknown commands are skipped.
func decodeFrame(data []byte) ([]Packet, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	packets := make([]Packet, 0, len(raw))
	for _, msg := range raw {
		var head struct {
			Cmd string `json:"cmd"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			return nil, fmt.Errorf("decode command: %w", err)
		}
		p, err := decodePacket(head.Cmd, msg)
		if err != nil {
			return nil, err
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, nil
}

func decodePacket(cmd string, msg json.RawMessage) (Packet, error) {
	switch cmd {
	case cmdRoomInfo:
		return decodeAs[RoomInfo](cmd, msg)
	case cmdConnected:
		return decodeAs[Connected](cmd, msg)
	case cmdConnectionRefused:
		return decodeAs[ConnectionRefused](cmd, msg)
	case cmdReceivedItems:
		return decodeAs[ReceivedItems](cmd, msg)
	case cmdRoomUpdate:
		return decodeAs[RoomUpdate](cmd, msg)
	case cmdBounced:
		return decodeAs[Bounced](cmd, msg)
	case cmdSetReply:
		return decodeAs[SetReply](cmd, msg)
	case cmdRetrieved:
		return decodeAs[Retrieved](cmd, msg)
	case cmdDataPackage:
		return decodeAs[DataPackage](cmd, msg)
	default:
		return nil, nil
	}
}

func decodeAs[T Packet](cmd string, msg json.RawMessage) (Packet, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", cmd, err)
	}
	return v, nil
}
