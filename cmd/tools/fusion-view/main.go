// Command fusion-view subscribes to a running daemon's visualiser stream and
// prints each fusion cycle to the terminal. Connecting also proves the
// consumer-detection path: the daemon publishes frames only while at least
// one client is attached.
//
// Usage:
//
//	go run ./cmd/tools/fusion-view [flags]
//
// Flags:
//
//	-addr    Visualiser address (default: localhost:50051)
//	-camera  Only print cycles for this camera (default: all)
//	-raw     Request original POI payloads (default: false)
//	-n       Exit after this many frames (default: 0, run until interrupted)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/drivegate/internal/visualiser"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "Visualiser address")
	camera := flag.String("camera", "", "Only print cycles for this camera")
	raw := flag.Bool("raw", false, "Request original POI payloads")
	count := flag.Int("n", 0, "Exit after this many frames (0 runs until interrupted)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	stream, err := visualiser.OpenStream(ctx, conn, &visualiser.StreamRequest{
		Camera:     *camera,
		IncludeRaw: *raw,
	})
	if err != nil {
		log.Fatalf("Failed to open stream: %v", err)
	}

	log.Printf("Subscribed to %s (camera=%q), waiting for cycles...", *addr, *camera)

	received := 0
	for {
		frame, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("Stream closed: %v", ctx.Err())
				return
			}
			log.Fatalf("Stream error: %v", err)
		}

		fmt.Printf("cycle %d camera=%s mask_ts=%d drained=%d passed=%d evicted=%d dur=%dus\n",
			frame.CycleIndex, frame.Camera, frame.MaskTimestampNanos,
			frame.Drained, frame.Passed, frame.Evicted, frame.DurationMicros)
		for _, r := range frame.Results {
			verdict := "drop"
			if r.Drivable {
				verdict = "PASS"
			}
			fmt.Printf("  %s (%6.1f, %6.1f) %-12s conf=%.2f\n",
				verdict, r.X, r.Y, r.Category, r.Confidence)
		}

		received++
		if *count > 0 && received >= *count {
			log.Printf("Received %d frames, exiting", received)
			return
		}
	}
}
