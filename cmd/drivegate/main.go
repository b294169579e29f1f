package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/drivegate/internal/config"
	"github.com/banshee-data/drivegate/internal/db"
	"github.com/banshee-data/drivegate/internal/forward"
	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/ingest"
	"github.com/banshee-data/drivegate/internal/monitor"
	"github.com/banshee-data/drivegate/internal/serialsrc"
	"github.com/banshee-data/drivegate/internal/version"
	"github.com/banshee-data/drivegate/internal/visualiser"
)

var (
	maskListen  = flag.String("mask-listen", ":15000", "UDP listen address for the drivable-area mask stream")
	poiListen   = flag.String("poi-listen", ":15001", "UDP listen address for the POI detection stream")
	forwardAddr = flag.String("forward-addr", "", "Address to forward passing POIs to (empty disables forwarding)")
	grpcListen  = flag.String("grpc-listen", "localhost:50051", "gRPC listen address for the visualiser stream")
	httpListen  = flag.String("http-listen", ":8080", "HTTP listen address for the monitoring server")
	dbFile      = flag.String("db", "drivegate.db", "Path to the SQLite database file")
	tuningFile  = flag.String("tuning", "", "Path to a tuning config JSON file (default: config/tuning.defaults.json)")
	serialPort  = flag.String("serial-port", "", "Serial port of an attached POI detector (empty disables serial ingest)")
	serialBaud  = flag.Int("serial-baud", 115200, "Baud rate for the serial POI detector")
	plotDir     = flag.String("plot-dir", "", "Base directory for mask snapshot plots (empty disables plotting)")
	rcvBuf      = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes (default 4MB)")
	verbose     = flag.Bool("verbose", false, "Enable per-cycle trace logging")
)

// Main
func main() {
	flag.Parse()

	// Subcommands run and exit before any daemon wiring.
	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "migrate":
			db.RunMigrateCommand(flag.Args()[1:], *dbFile)
			return
		case "version":
			fmt.Printf("drivegate %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
			return
		default:
			log.Fatalf("Unknown command: %q (see 'drivegate migrate help')", flag.Arg(0))
		}
	}

	if *httpListen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if *maskListen == "" || *poiListen == "" {
		log.Fatal("Mask and POI listen addresses are required")
	}

	log.Printf("drivegate %s (%s) starting", version.Version, version.GitSHA)

	// Ops and diag streams always log; per-cycle trace only when asked for.
	if *verbose {
		fusion.SetLogWriters(os.Stderr, os.Stderr, os.Stderr)
	} else {
		fusion.SetLogWriters(os.Stderr, os.Stderr, nil)
	}

	var tuning *config.TuningConfig
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *tuningFile)
	} else {
		tuning = config.LoadDefaultTuning()
	}
	camera := tuning.GetCameraName()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Snapshot the effective tuning into the session row so recorded cycles
	// stay interpretable after the config changes.
	params, err := json.Marshal(tuning)
	if err != nil {
		log.Fatalf("Failed to marshal tuning params: %v", err)
	}
	session := &db.Session{Camera: camera, ParamsJSON: params}
	if err := database.StartSession(session); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	log.Printf("Started session %s (camera %s)", session.SessionID, camera)

	worker := db.NewCycleWorker(database, session.SessionID, 0)

	var forwarder *forward.Forwarder
	if *forwardAddr != "" {
		forwarder, err = forward.NewForwarder(*forwardAddr, tuning.GetPOIForwardBuffer(), tuning.GetStatsLogInterval())
		if err != nil {
			log.Fatalf("Failed to create POI forwarder: %v", err)
		}
	}

	publisher := visualiser.NewPublisher(visualiser.Config{
		ListenAddr:  *grpcListen,
		FrameBuffer: tuning.GetVisualiserFrameBuffer(),
	})

	engine := fusion.NewEngine(fusion.EngineConfig{
		Camera:        camera,
		SyncTolerance: tuning.GetSyncTolerance(),
		Interval:      tuning.GetFusionInterval(),
		Radius:        tuning.GetNeighborhoodRadius(),
		Threshold:     tuning.GetDrivableThreshold(),
		Forwarder:     forwarder,
		Publisher:     publisher,
		Recorder:      worker,
	})

	var serialMux serialsrc.Muxer
	if *serialPort != "" {
		serialMux, err = serialsrc.NewRealMux(*serialPort, serialsrc.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			log.Fatalf("Failed to open serial detector: %v", err)
		}
		if err := serialMux.Initialize(); err != nil {
			log.Fatalf("Failed to initialize serial detector: %v", err)
		}
		log.Printf("Serial POI detector attached on %s", *serialPort)
	} else {
		serialMux = serialsrc.NewDisabledMux()
	}
	defer serialMux.Close()

	maskStats := ingest.NewPacketStats("mask")
	poiStats := ingest.NewPacketStats("poi")
	serialStats := ingest.NewPacketStats("serial")

	statsInterval := tuning.GetStatsLogInterval()

	maskListener := ingest.NewListener(ingest.ListenerConfig{
		Address:     *maskListen,
		Stream:      "mask",
		RcvBuf:      *rcvBuf,
		LogInterval: statsInterval,
		Stats:       maskStats,
		Handler: func(payload []byte) error {
			mask, err := ingest.DecodeMask(payload)
			if err != nil {
				return err
			}
			engine.OnMask(mask)
			return nil
		},
	})

	poiListener := ingest.NewListener(ingest.ListenerConfig{
		Address:     *poiListen,
		Stream:      "poi",
		RcvBuf:      *rcvBuf,
		LogInterval: statsInterval,
		Stats:       poiStats,
		Handler: func(payload []byte) error {
			poi, err := ingest.DecodePOI(payload)
			if err != nil {
				return err
			}
			engine.OnPOI(poi)
			return nil
		},
	})

	var plotter *monitor.MaskPlotter
	if *plotDir != "" {
		plotter = monitor.NewMaskPlotter()
		outDir := monitor.MakePlotOutputDir(*plotDir, camera)
		if err := plotter.Start(outDir); err != nil {
			log.Fatalf("Failed to start mask plotter: %v", err)
		}
		defer plotter.Stop()
		log.Printf("Mask plots will be written to %s", outDir)
	}

	webServer := monitor.NewWebServer(monitor.WebServerConfig{
		Address:     *httpListen,
		Engine:      engine,
		MaskStats:   maskStats,
		POIStats:    poiStats,
		Forwarder:   forwarder,
		Publisher:   publisher,
		Worker:      worker,
		DB:          database,
		Plotter:     plotter,
		SerialMux:   serialMux,
		MaskListen:  *maskListen,
		POIListen:   *poiListen,
		ForwardAddr: *forwardAddr,
		SerialPort:  *serialPort,
	})

	// The publisher binds before the engine starts so the first cycle can
	// already see connected clients.
	if err := publisher.Start(); err != nil {
		log.Fatalf("Failed to start visualiser publisher: %v", err)
	}

	// Create a wait group for the listeners, serial routines, fusion engine,
	// HTTP server and stats ticker
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker.Start(ctx)
	if forwarder != nil {
		forwarder.Start(ctx)
	}

	// mask stream listener routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := maskListener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("mask listener error: %v", err)
		}
		log.Print("mask listener routine terminated")
	}()

	// POI stream listener routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poiListener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("POI listener error: %v", err)
		}
		log.Print("POI listener routine terminated")
	}()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serialMux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("serial monitor routine terminated")
	}()

	// subscribe to detector lines and feed them to the engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		serialsrc.Bridge(ctx, serialMux, engine, serialStats)
		log.Print("serial bridge routine terminated")
	}()

	// fusion engine routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("fusion engine error: %v", err)
		}
		log.Print("fusion engine routine terminated")
	}()

	// HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webServer.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
		log.Print("web server routine terminated")
	}()

	// periodic stats routine; the UDP listeners log their own streams
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.Stats().LogStats()
				if *serialPort != "" {
					serialStats.LogStats()
				}
			}
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	// Producers have stopped; drain the persistence queue and close the
	// downstream connections.
	worker.Stop()
	if forwarder != nil {
		if err := forwarder.Close(); err != nil {
			log.Printf("forwarder close error: %v", err)
		}
	}
	publisher.Stop()

	if err := database.EndSession(session.SessionID); err != nil {
		log.Printf("Failed to end session: %v", err)
	}

	snap := engine.Snapshot()
	log.Printf("Session %s: %d cycles, %d masks, %d POIs in, %d passed, %d evicted",
		session.SessionID, snap.Cycles, snap.MasksReceived, snap.POIsReceived, snap.Passed, snap.Evicted)
	log.Printf("Graceful shutdown complete")
}
