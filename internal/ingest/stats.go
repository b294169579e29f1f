package ingest

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// PacketStats tracks per-stream ingestion statistics with thread-safe
// operations. Interval counters reset on GetAndReset for periodic rate
// logging; cumulative totals survive for the monitoring API.
type PacketStats struct {
	mu        sync.Mutex
	stream    string
	packets   int64
	bytes     int64
	malformed int64
	timeouts  int64
	lastReset time.Time

	totalPackets   int64
	totalBytes     int64
	totalMalformed int64
}

// NewPacketStats creates a PacketStats for the named stream ("mask", "poi").
func NewPacketStats(stream string) *PacketStats {
	return &PacketStats{
		stream:    stream,
		lastReset: time.Now(),
	}
}

// AddPacket counts one received datagram.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packets++
	ps.bytes += int64(bytes)
	ps.totalPackets++
	ps.totalBytes += int64(bytes)
}

// AddMalformed counts one datagram dropped by the codec.
func (ps *PacketStats) AddMalformed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.malformed++
	ps.totalMalformed++
}

// AddTimeout counts one read-deadline expiry on the socket.
func (ps *PacketStats) AddTimeout() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.timeouts++
}

// GetAndReset returns the interval counters and resets them.
func (ps *PacketStats) GetAndReset() (packets, bytes, malformed, timeouts int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packets
	bytes = ps.bytes
	malformed = ps.malformed
	timeouts = ps.timeouts

	ps.packets = 0
	ps.bytes = 0
	ps.malformed = 0
	ps.timeouts = 0
	ps.lastReset = now

	return
}

// StreamTotals is a cumulative counter snapshot served by the monitoring API.
type StreamTotals struct {
	Stream    string `json:"stream"`
	Packets   int64  `json:"packets"`
	Bytes     int64  `json:"bytes"`
	Malformed int64  `json:"malformed"`
}

// Totals returns the cumulative counters without resetting anything.
func (ps *PacketStats) Totals() StreamTotals {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return StreamTotals{
		Stream:    ps.stream,
		Packets:   ps.totalPackets,
		Bytes:     ps.totalBytes,
		Malformed: ps.totalMalformed,
	}
}

// LogStats logs one summary line covering the interval since the last reset.
// Quiet intervals produce no output.
func (ps *PacketStats) LogStats() {
	packets, bytes, malformed, _, duration := ps.GetAndReset()
	if packets == 0 && malformed == 0 {
		return
	}

	secs := duration.Seconds()
	logMsg := fmt.Sprintf("%s ingest (/sec): %.2f KB, %.1f packets",
		ps.stream, float64(bytes)/secs/1024, float64(packets)/secs)
	if malformed > 0 {
		logMsg += fmt.Sprintf(", %d malformed dropped", malformed)
	}

	log.Print(logMsg)
}
