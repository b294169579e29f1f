// Command replay re-emits recorded mask/POI traffic from a PCAP capture
// against a live daemon, or decodes it offline to vet a capture without a
// daemon. PCAP reading lives behind the 'pcap' build tag; without it the
// tool reports how to rebuild.
//
// Usage:
//
//	go run -tags=pcap ./cmd/tools/replay -file capture.pcap [flags]
//
// Flags:
//
//	-file       PCAP capture to replay (required)
//	-mask-port  UDP port of the mask stream in the capture (default: 15000)
//	-poi-port   UDP port of the POI stream in the capture (default: 15001)
//	-mask-addr  Re-emit target for mask packets (default: localhost:15000)
//	-poi-addr   Re-emit target for POI packets (default: localhost:15001)
//	-decode     Decode packets offline instead of re-emitting
//	-pps        Per-stream packet rate limit (default: 0, full speed)
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/banshee-data/drivegate/internal/ingest"
)

var (
	pcapFile = flag.String("file", "", "PCAP capture to replay (required)")
	maskPort = flag.Int("mask-port", 15000, "UDP port of the mask stream in the capture")
	poiPort  = flag.Int("poi-port", 15001, "UDP port of the POI stream in the capture")
	maskAddr = flag.String("mask-addr", "localhost:15000", "Re-emit target for mask packets")
	poiAddr  = flag.String("poi-addr", "localhost:15001", "Re-emit target for POI packets")
	decode   = flag.Bool("decode", false, "Decode packets offline instead of re-emitting")
	pps      = flag.Float64("pps", 0, "Per-stream packet rate limit (0 replays at full speed)")
)

// emitHandler forwards each captured payload to conn, pacing when asked.
func emitHandler(conn net.Conn, delay time.Duration) ingest.Handler {
	return func(payload []byte) error {
		if delay > 0 {
			time.Sleep(delay)
		}
		_, err := conn.Write(payload)
		return err
	}
}

func main() {
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("Error: -file flag is required")
	}

	var delay time.Duration
	if *pps > 0 {
		delay = time.Duration(float64(time.Second) / *pps)
	}

	maskStats := ingest.NewPacketStats("mask")
	poiStats := ingest.NewPacketStats("poi")

	var decodedMasks, decodedPOIs atomic.Int64
	var maskHandler, poiHandler ingest.Handler
	if *decode {
		maskHandler = func(payload []byte) error {
			if _, err := ingest.DecodeMask(payload); err != nil {
				return err
			}
			decodedMasks.Add(1)
			return nil
		}
		poiHandler = func(payload []byte) error {
			if _, err := ingest.DecodePOI(payload); err != nil {
				return err
			}
			decodedPOIs.Add(1)
			return nil
		}
		log.Printf("Decoding %s offline (mask port %d, POI port %d)", *pcapFile, *maskPort, *poiPort)
	} else {
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

		maskHandler = emitHandler(maskConn, delay)
		poiHandler = emitHandler(poiConn, delay)
		log.Printf("Replaying %s: masks to %s, POIs to %s", *pcapFile, *maskAddr, *poiAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One replay pass per stream; each opens its own capture handle with its
	// own BPF port filter.
	var wg sync.WaitGroup
	var maskErr, poiErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		maskErr = ingest.ReplayPCAP(ctx, *pcapFile, *maskPort, maskStats, maskHandler)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		poiErr = ingest.ReplayPCAP(ctx, *pcapFile, *poiPort, poiStats, poiHandler)
	}()

	wg.Wait()

	if maskErr != nil && maskErr != context.Canceled {
		log.Fatalf("Mask replay failed: %v", maskErr)
	}
	if poiErr != nil && poiErr != context.Canceled {
		log.Fatalf("POI replay failed: %v", poiErr)
	}

	for _, totals := range []ingest.StreamTotals{maskStats.Totals(), poiStats.Totals()} {
		log.Printf("%s stream: %d packets, %d bytes, %d malformed",
			totals.Stream, totals.Packets, totals.Bytes, totals.Malformed)
	}
	if *decode {
		log.Printf("Decoded %d masks, %d POIs", decodedMasks.Load(), decodedPOIs.Load())
	}
}
