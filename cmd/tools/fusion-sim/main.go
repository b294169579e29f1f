// Command fusion-sim emits a synthetic perception scenario over UDP: a
// drivable-area mask whose drivable band sweeps back and forth across the
// frame, plus POI detections scattered over the frame with configurable
// timestamp jitter. Point it at a running daemon for demos and soak tests.
//
// Usage:
//
//	go run ./cmd/tools/fusion-sim [flags]
//
// Flags:
//
//	-mask-addr  Daemon mask ingest address (default: localhost:15000)
//	-poi-addr   Daemon POI ingest address (default: localhost:15001)
//	-mask-rate  Mask frames per second (default: 10)
//	-poi-rate   POI detections per second (default: 50)
//	-width      Mask width in pixels (default: 64)
//	-height     Mask height in pixels (default: 64)
//	-jitter     Max timestamp jitter per POI (default: 20ms)
//	-duration   Stop after this long (default: 0, run until interrupted)
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/ingest"
)

var (
	maskAddr = flag.String("mask-addr", "localhost:15000", "Daemon mask ingest address")
	poiAddr  = flag.String("poi-addr", "localhost:15001", "Daemon POI ingest address")
	maskRate = flag.Float64("mask-rate", 10, "Mask frames per second")
	poiRate  = flag.Float64("poi-rate", 50, "POI detections per second")
	width    = flag.Int("width", 64, "Mask width in pixels")
	height   = flag.Int("height", 64, "Mask height in pixels")
	jitter   = flag.Duration("jitter", 20*time.Millisecond, "Max timestamp jitter per POI")
	compress = flag.Bool("compress", true, "Gzip mask payloads")
	duration = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	seed     = flag.Int64("seed", 0, "Random seed (0 derives one from the clock)")
)

var categories = []string{"pedestrian", "cyclist", "vehicle", "animal"}

// scenario is a drivable band half the frame wide, bouncing between the left
// and right edges. POIs land uniformly, so the pass rate tracks the band.
type scenario struct {
	width, height int
	band          int
	pos           float64
	vel           float64
	rng           *rand.Rand
}

func newScenario(width, height int, rng *rand.Rand) *scenario {
	return &scenario{
		width:  width,
		height: height,
		band:   width / 2,
		vel:    float64(width) / 100, // full sweep every ~100 frames
		rng:    rng,
	}
}

// nextMask renders the band at its current position and advances it.
func (s *scenario) nextMask(ts int64) *fusion.Mask {
	m := &fusion.Mask{
		Width:          s.width,
		Height:         s.height,
		Pix:            make([]uint8, s.width*s.height),
		TimestampNanos: ts,
	}
	left := int(s.pos)
	for y := 0; y < s.height; y++ {
		for x := left; x < left+s.band && x < s.width; x++ {
			m.Pix[y*s.width+x] = 1
		}
	}

	s.pos += s.vel
	if s.pos < 0 || int(s.pos)+s.band > s.width {
		s.vel = -s.vel
		s.pos += 2 * s.vel
	}
	return m
}

// nextPOI samples a detection anywhere in the frame with a jittered timestamp.
func (s *scenario) nextPOI(now time.Time, maxJitter time.Duration) fusion.POI {
	offset := time.Duration(0)
	if maxJitter > 0 {
		offset = time.Duration(s.rng.Int63n(int64(2*maxJitter))) - maxJitter
	}
	return fusion.POI{
		X:              s.rng.Float64() * float64(s.width),
		Y:              s.rng.Float64() * float64(s.height),
		Category:       categories[s.rng.Intn(len(categories))],
		TimestampNanos: now.Add(offset).UnixNano(),
	}
}

func main() {
	flag.Parse()

	if *maskRate <= 0 || *poiRate <= 0 {
		log.Fatal("mask-rate and poi-rate must be positive")
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	maskConn, err := net.Dial("udp", *maskAddr)
	if err != nil {
		log.Fatalf("Failed to dial mask address %s: %v", *maskAddr, err)
	}
	defer maskConn.Close()

	poiConn, err := net.Dial("udp", *poiAddr)
	if err != nil {
		log.Fatalf("Failed to dial POI address %s: %v", *poiAddr, err)
	}
	defer poiConn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	log.Printf("Simulating %dx%d scenario: masks to %s at %.1f Hz, POIs to %s at %.1f Hz (seed %d)",
		*width, *height, *maskAddr, *maskRate, *poiAddr, *poiRate, rngSeed)

	sim := newScenario(*width, *height, rng)

	maskTicker := time.NewTicker(time.Duration(float64(time.Second) / *maskRate))
	defer maskTicker.Stop()
	poiTicker := time.NewTicker(time.Duration(float64(time.Second) / *poiRate))
	defer poiTicker.Stop()
	logTicker := time.NewTicker(5 * time.Second)
	defer logTicker.Stop()

	var masksSent, poisSent, writeErrs int
	for {
		select {
		case <-ctx.Done():
			log.Printf("Done: sent %d masks, %d POIs (%d write errors)", masksSent, poisSent, writeErrs)
			return

		case <-maskTicker.C:
			mask := sim.nextMask(time.Now().UnixNano())
			packet, err := ingest.EncodeMask(mask, *compress)
			if err != nil {
				log.Fatalf("Failed to encode mask: %v", err)
			}
			if _, err := maskConn.Write(packet); err != nil {
				writeErrs++
			} else {
				masksSent++
			}

		case <-poiTicker.C:
			packet, err := ingest.EncodePOI(sim.nextPOI(time.Now(), *jitter))
			if err != nil {
				log.Fatalf("Failed to encode POI: %v", err)
			}
			if _, err := poiConn.Write(packet); err != nil {
				writeErrs++
			} else {
				poisSent++
			}

		case <-logTicker.C:
			log.Printf("sent %d masks, %d POIs", masksSent, poisSent)
		}
	}
}
