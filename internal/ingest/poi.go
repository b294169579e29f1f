package ingest

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/drivegate/internal/fusion"
)

// ErrBadTimestamp rejects POI messages without a usable capture time; the
// buffer keys on it, so a zero or negative value can never match or expire.
var ErrBadTimestamp = errors.New("POI timestamp missing or not positive")

// poiMessage is the POI detection wire schema: one JSON object per datagram.
type poiMessage struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Category    string  `json:"category"`
	TimestampNS int64   `json:"timestamp_ns"`
}

// DecodePOI parses one POI datagram. The original payload is copied onto the
// POI so a passing detection can be forwarded downstream byte-for-byte even
// though the listener reuses its read buffer.
func DecodePOI(packet []byte) (fusion.POI, error) {
	var msg poiMessage
	if err := json.Unmarshal(packet, &msg); err != nil {
		return fusion.POI{}, fmt.Errorf("bad POI payload: %w", err)
	}
	if msg.TimestampNS <= 0 {
		return fusion.POI{}, fmt.Errorf("%w: %d", ErrBadTimestamp, msg.TimestampNS)
	}

	raw := make([]byte, len(packet))
	copy(raw, packet)

	return fusion.POI{
		X:              msg.X,
		Y:              msg.Y,
		Category:       msg.Category,
		TimestampNanos: msg.TimestampNS,
		Raw:            raw,
	}, nil
}

// EncodePOI builds a POI datagram. Used by the simulator and tests; live
// detections arrive already encoded.
func EncodePOI(p fusion.POI) ([]byte, error) {
	return json.Marshal(poiMessage{
		X:           p.X,
		Y:           p.Y,
		Category:    p.Category,
		TimestampNS: p.TimestampNanos,
	})
}
