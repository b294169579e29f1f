package serialsrc

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/ingest"
)

// poiLine encodes one detection the way a live detector unit would emit it.
func poiLine(t *testing.T, x, y float64, category string) string {
	t.Helper()
	payload, err := ingest.EncodePOI(fusion.POI{
		X:              x,
		Y:              y,
		Category:       category,
		TimestampNanos: time.Now().UnixNano(),
	})
	if err != nil {
		t.Fatalf("EncodePOI returned error: %v", err)
	}
	return string(payload)
}

// waitForPOIs polls the engine until its received counter reaches want.
func waitForPOIs(t *testing.T, engine *fusion.Engine, want uint64) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if engine.Snapshot().POIsReceived >= want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %d POIs, engine has %d", want, engine.Snapshot().POIsReceived)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestBridge_FeedsEngine drives detector lines through the full path: port
// read, Monitor fan-out, Bridge decode, engine insert.
func TestBridge_FeedsEngine(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true
	mux := NewMux(port)
	engine := fusion.NewEngine(fusion.EngineConfig{Camera: "front"})
	stats := ingest.NewPacketStats("serial")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorDone := make(chan error, 1)
	go func() {
		monitorDone <- mux.Monitor(ctx)
	}()

	bridgeDone := make(chan struct{})
	go func() {
		Bridge(ctx, mux, engine, stats)
		close(bridgeDone)
	}()

	// Let the monitor and bridge goroutines start before feeding data
	time.Sleep(20 * time.Millisecond)

	// Feed one line at a time and wait for it to land so the non-blocking
	// fan-out never races the bridge's receive.
	port.AddReadData([]byte(poiLine(t, 12.5, 40.25, "pedestrian") + "\n"))
	waitForPOIs(t, engine, 1)

	port.AddReadData([]byte(poiLine(t, 99, 17, "cyclist") + "\n"))
	waitForPOIs(t, engine, 2)

	totals := stats.Totals()
	if totals.Packets != 2 {
		t.Errorf("Expected 2 packets counted, got %d", totals.Packets)
	}
	if totals.Malformed != 0 {
		t.Errorf("Expected 0 malformed, got %d", totals.Malformed)
	}

	cancel()

	select {
	case <-bridgeDone:
	case <-time.After(1 * time.Second):
		t.Fatal("Bridge did not exit after cancel")
	}

	mux.Close()
	select {
	case <-monitorDone:
	case <-time.After(1 * time.Second):
		t.Fatal("Monitor did not exit after close")
	}
}

// TestBridge_MalformedLineDropped verifies a bad line is counted and dropped
// without stopping the stream.
func TestBridge_MalformedLineDropped(t *testing.T) {
	port := NewTestablePort()
	port.BlockReads = true
	mux := NewMux(port)
	engine := fusion.NewEngine(fusion.EngineConfig{Camera: "front"})
	stats := ingest.NewPacketStats("serial")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mux.Monitor(ctx)
	go Bridge(ctx, mux, engine, stats)

	time.Sleep(20 * time.Millisecond)

	port.AddReadData([]byte("not json\n"))

	// Wait for the malformed line to be counted
	deadline := time.After(2 * time.Second)
	for stats.Totals().Malformed < 1 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for malformed line to be counted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The stream keeps flowing after the bad line
	port.AddReadData([]byte(poiLine(t, 1, 2, "pedestrian") + "\n"))
	waitForPOIs(t, engine, 1)

	totals := stats.Totals()
	if totals.Packets != 2 {
		t.Errorf("Expected 2 packets counted, got %d", totals.Packets)
	}
	if totals.Malformed != 1 {
		t.Errorf("Expected 1 malformed, got %d", totals.Malformed)
	}

	mux.Close()
}

// TestBridge_ExitsOnChannelClose verifies Bridge returns when the mux closes
// its subscriber channels.
func TestBridge_ExitsOnChannelClose(t *testing.T) {
	mux := NewDisabledMux()
	engine := fusion.NewEngine(fusion.EngineConfig{})

	done := make(chan struct{})
	go func() {
		Bridge(context.Background(), mux, engine, nil)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mux.Close()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Bridge did not exit after mux close")
	}
}

// TestBridge_ExitsOnContextCancel verifies Bridge returns on cancellation even
// when no lines arrive.
func TestBridge_ExitsOnContextCancel(t *testing.T) {
	mux := NewDisabledMux()
	defer mux.Close()
	engine := fusion.NewEngine(fusion.EngineConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Bridge(ctx, mux, engine, nil)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Bridge did not exit after cancel")
	}
}

func TestHandleLine(t *testing.T) {
	engine := fusion.NewEngine(fusion.EngineConfig{})

	// nil stats must be tolerated
	if err := handleLine(engine, nil, poiLine(t, 5, 6, "vehicle")); err != nil {
		t.Fatalf("handleLine returned error: %v", err)
	}
	if got := engine.Snapshot().POIsReceived; got != 1 {
		t.Errorf("Expected 1 POI received, got %d", got)
	}

	if err := handleLine(engine, nil, "garbage"); err == nil {
		t.Error("Expected error for malformed line")
	}
}

func TestHandleLine_BadTimestamp(t *testing.T) {
	engine := fusion.NewEngine(fusion.EngineConfig{})
	stats := ingest.NewPacketStats("serial")

	line := fmt.Sprintf(`{"x": 1, "y": 2, "category": "pedestrian", "timestamp_ns": %d}`, 0)
	err := handleLine(engine, stats, line)
	if err == nil {
		t.Fatal("Expected error for zero timestamp")
	}

	if got := engine.Snapshot().POIsReceived; got != 0 {
		t.Errorf("Engine should not receive rejected POI, got %d", got)
	}
	if totals := stats.Totals(); totals.Malformed != 1 {
		t.Errorf("Expected 1 malformed, got %d", totals.Malformed)
	}
}
