// Package visualiser streams per-cycle fusion results to debugging clients
// over gRPC.
//
// The publisher is the write side: the fusion engine hands it finished
// cycles and it fans them out to every connected stream. Nothing here may
// block the engine; saturated channels drop frames and count them.
package visualiser

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/monitoring"
)

// clientFrameBuffer is the per-client channel depth. A client that falls
// this many frames behind starts losing frames, not holding up the rest.
const clientFrameBuffer = 10

// Config holds configuration for the visualiser gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50051").
	ListenAddr string

	// FrameBuffer is the depth of the broadcast queue between the fusion
	// engine and the fan-out loop.
	FrameBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:  "localhost:50051",
		FrameBuffer: 100,
	}
}

// Publisher manages the gRPC server and frame fan-out. It implements
// fusion.ResultPublisher.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	// Frame broadcasting
	frameChan chan *ResultFrame
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	// Stats
	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64

	lastStatsMu    sync.Mutex
	lastStatsTime  time.Time
	lastFrameCount uint64

	// Lifecycle
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ fusion.ResultPublisher = (*Publisher)(nil)

// clientStream represents a connected streaming client.
type clientStream struct {
	id      string
	request *StreamRequest
	frameCh chan *ResultFrame
}

// NewPublisher creates a new Publisher with the given configuration.
func NewPublisher(cfg Config) *Publisher {
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = DefaultConfig().FrameBuffer
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan *ResultFrame, cfg.FrameBuffer),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the listener, registers the service and begins serving.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis

	p.server = grpc.NewServer()
	RegisterService(p.server, NewServer(p))

	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[Visualiser] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[Visualiser] gRPC server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the gRPC server and all streams.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}

	p.wg.Wait()
	monitoring.Logf("[Visualiser] gRPC server stopped")
}

// Addr returns the bound listen address, or "" before Start.
func (p *Publisher) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// ActiveClients reports the number of connected streaming clients. The
// fusion engine skips frame assembly entirely while this is zero.
func (p *Publisher) ActiveClients() int {
	return int(p.clientCount.Load())
}

// PublishCycle queues one finished fusion cycle for broadcast. It never
// blocks: when the queue is full the frame is dropped and counted.
func (p *Publisher) PublishCycle(camera string, summary fusion.CycleSummary, results []fusion.Result) {
	if !p.running.Load() {
		return
	}

	frame := newResultFrame(camera, summary, results)

	select {
	case p.frameChan <- frame:
		count := p.frameCount.Add(1)
		p.logPeriodicStats(count, len(p.frameChan))
	default:
		dropped := p.droppedFrames.Add(1)
		monitoring.Logf("[Visualiser] DROPPED cycle %d (total dropped: %d), queue full",
			frame.CycleIndex, dropped)
	}
}

// logPeriodicStats logs throughput every 5 seconds.
func (p *Publisher) logPeriodicStats(frameCount uint64, queueDepth int) {
	p.lastStatsMu.Lock()
	defer p.lastStatsMu.Unlock()

	now := time.Now()
	if p.lastStatsTime.IsZero() {
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
		return
	}

	elapsed := now.Sub(p.lastStatsTime)
	if elapsed >= 5*time.Second {
		framesInInterval := frameCount - p.lastFrameCount
		fps := float64(framesInInterval) / elapsed.Seconds()
		monitoring.Logf("[Visualiser] Stats: fps=%.1f frames=%d dropped=%d clients=%d queue=%d/%d",
			fps, framesInInterval, p.droppedFrames.Load(), p.clientCount.Load(),
			queueDepth, p.config.FrameBuffer)
		p.lastStatsTime = now
		p.lastFrameCount = frameCount
	}
}

// broadcastLoop distributes frames to all connected clients.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.frameCh <- frame:
				default:
					// Client is slow, drop the frame for this client.
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// addClient registers a new streaming client.
func (p *Publisher) addClient(id string, req *StreamRequest) *clientStream {
	client := &clientStream{
		id:      id,
		request: req,
		frameCh: make(chan *ResultFrame, clientFrameBuffer),
	}

	p.clientsMu.Lock()
	p.clients[id] = client
	p.clientsMu.Unlock()

	count := p.clientCount.Add(1)
	monitoring.Logf("[Visualiser] Client connected: %s (total: %d)", id, count)

	return client
}

// removeClient unregisters a streaming client.
func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	_, ok := p.clients[id]
	if ok {
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()

	if ok {
		count := p.clientCount.Add(-1)
		monitoring.Logf("[Visualiser] Client disconnected: %s (remaining: %d)", id, count)
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64
	DroppedFrames uint64
	ClientCount   int32
	Running       bool
}
