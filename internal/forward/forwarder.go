// Package forward sends passing POI payloads downstream over UDP. The send
// path is a non-blocking handoff so the fusion cycle never waits on the
// network: payloads queue on a buffered channel and a worker goroutine does
// the writes.
package forward

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/drivegate/internal/monitoring"
)

// DefaultBufferDepth is the forwarding queue length when none is configured.
const DefaultBufferDepth = 1000

// Forwarder delivers POI payloads to a single downstream UDP address.
type Forwarder struct {
	conn        *net.UDPConn
	channel     chan []byte
	logInterval time.Duration
	address     string

	mu      sync.Mutex
	dropped int64
}

// NewForwarder dials the downstream address once and prepares the queue.
// A non-positive bufferDepth selects the default.
func NewForwarder(address string, bufferDepth int, logInterval time.Duration) (*Forwarder, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}

	if bufferDepth <= 0 {
		bufferDepth = DefaultBufferDepth
	}
	if logInterval <= 0 {
		logInterval = time.Minute
	}

	return &Forwarder{
		conn:        conn,
		channel:     make(chan []byte, bufferDepth),
		logInterval: logInterval,
		address:     address,
	}, nil
}

// Start begins the forwarding goroutine that drains the queue. Write errors
// are counted and logged at the configured interval rather than per packet.
func (f *Forwarder) Start(ctx context.Context) {
	go func() {
		errCount := 0
		var lastError error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case payload := <-f.channel:
				if _, err := f.conn.Write(payload); err != nil {
					errCount++
					lastError = err
				}
			case <-ticker.C:
				if errCount > 0 && lastError != nil {
					monitoring.Logf("\033[93mDropped %d forwarded POIs due to errors (latest: %v)\033[0m", errCount, lastError)
					errCount = 0
					lastError = nil
				}
			}
		}
	}()

	monitoring.Logf("Forwarding passing POIs to %s", f.address)
}

// ForwardAsync queues a payload without blocking. When the queue is full the
// payload is dropped and counted; a stalled downstream must not stall fusion.
func (f *Forwarder) ForwardAsync(payload []byte) {
	payloadCopy := make([]byte, len(payload))
	copy(payloadCopy, payload)

	select {
	case f.channel <- payloadCopy:
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
	}
}

// Dropped returns how many payloads were discarded because the queue was full.
func (f *Forwarder) Dropped() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close closes the queue and the UDP connection.
func (f *Forwarder) Close() error {
	close(f.channel)
	return f.conn.Close()
}
