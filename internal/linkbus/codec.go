package linkbus

import (
	"encoding/json"
	"math"
	"time"

	"github.com/user/linkbridge/internal/types"
)

// Encode renders msg as bounce data.
func Encode(msg Message) map[string]any {
	data := map[string]any{
		"time":   float64(msg.Time.UnixNano()) / 1e9,
		"source": int64(msg.Origin),
	}
	if msg.Name != "" {
		data["name"] = msg.Name
	}
	if msg.Amount != 0 {
		data["amount"] = msg.Amount
	}
	return data
}

// Decode reads bounce data written by Encode. Numbers may arrive as float64
// or json.Number depending on the decoder.
func Decode(tag string, data map[string]any) Message {
	msg := Message{Tag: tag}
	if secs, ok := number(data["time"]); ok {
		whole, frac := math.Modf(secs)
		msg.Time = time.Unix(int64(whole), int64(frac*1e9))
	}
	if origin, ok := number(data["source"]); ok {
		msg.Origin = types.OriginID(int64(origin))
	}
	if name, ok := data["name"].(string); ok {
		msg.Name = name
	}
	if amount, ok := number(data["amount"]); ok {
		msg.Amount = int64(amount)
	}
	return msg
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
