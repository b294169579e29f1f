package ingest

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/drivegate/internal/monitoring"
)

// Handler consumes one datagram payload. The slice aliases the listener's
// reusable read buffer, so implementations must copy anything they retain
// (DecodePOI already copies the raw payload).
type Handler func(payload []byte) error

// ListenerConfig contains configuration options for a UDP stream listener.
type ListenerConfig struct {
	Address       string
	Stream        string // label for logs and stats ("mask", "poi")
	RcvBuf        int    // socket receive buffer in bytes, 0 keeps the OS default
	LogInterval   time.Duration
	Stats         *PacketStats
	Handler       Handler
	SocketFactory UDPSocketFactory // nil uses real sockets
}

// Listener receives one UDP perception stream and hands each datagram to its
// handler. Read deadlines keep the loop responsive to context cancellation.
type Listener struct {
	address     string
	stream      string
	rcvBuf      int
	logInterval time.Duration
	socket      UDPSocket
	factory     UDPSocketFactory
	stats       *PacketStats
	handler     Handler
}

// NewListener creates a Listener from config. A missing Stats gets a fresh
// collector so the handling and logging paths never nil-check.
func NewListener(config ListenerConfig) *Listener {
	stats := config.Stats
	if stats == nil {
		stats = NewPacketStats(config.Stream)
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	factory := config.SocketFactory
	if factory == nil {
		factory = &RealUDPSocketFactory{}
	}

	return &Listener{
		address:     config.Address,
		stream:      config.Stream,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		factory:     factory,
		stats:       stats,
		handler:     config.Handler,
	}
}

// Stats returns the listener's packet statistics collector.
func (l *Listener) Stats() *PacketStats {
	return l.stats
}

// Start begins receiving datagrams and blocks until ctx is canceled.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	socket, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.socket = socket
	defer socket.Close()

	if l.rcvBuf > 0 {
		if err := socket.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set %s receive buffer to %d: %v", l.stream, l.rcvBuf, err)
		}
	}

	monitoring.Logf("%s listener started on %s", l.stream, l.address)

	go l.startStatsLogging(ctx)

	// Max UDP payload; uncompressed masks are the largest datagrams on
	// either stream.
	buffer := make([]byte, 65535)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("%s listener stopping: %v", l.stream, ctx.Err())
			return ctx.Err()
		default:
			socket.SetReadDeadline(time.Now().Add(time.Second))

			n, raddr, err := socket.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					l.stats.AddTimeout()
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("%s listener read error: %v", l.stream, err)
				continue
			}

			l.stats.AddPacket(n)
			if l.handler == nil {
				continue
			}
			if err := l.handler(buffer[:n]); err != nil {
				// Malformed input drops the one datagram, never the stream.
				l.stats.AddMalformed()
				monitoring.Logf("%s listener: dropping packet from %v: %v", l.stream, raddr, err)
			}
		}
	}
}

// startStatsLogging periodically logs packet statistics. An early first
// report avoids a long silence after startup.
func (l *Listener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// Close closes the listener socket if it is open.
func (l *Listener) Close() error {
	if l.socket != nil {
		return l.socket.Close()
	}
	return nil
}
