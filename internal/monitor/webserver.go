// Package monitor serves drivegate's HTTP observability surface: a status
// page, JSON counter endpoints, server-rendered debug charts, and an
// on-demand mask plot. Everything here reads live state; nothing on this
// surface mutates the fusion pipeline.
package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/drivegate/internal/db"
	"github.com/banshee-data/drivegate/internal/forward"
	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/ingest"
	"github.com/banshee-data/drivegate/internal/serialsrc"
	"github.com/banshee-data/drivegate/internal/version"
	"github.com/banshee-data/drivegate/internal/visualiser"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring the fusion pipeline.
// It provides endpoints for health checks, real-time counters, and debug
// visualisations.
type WebServer struct {
	address     string
	engine      *fusion.Engine
	maskStats   *ingest.PacketStats
	poiStats    *ingest.PacketStats
	forwarder   *forward.Forwarder
	publisher   *visualiser.Publisher
	worker      *db.CycleWorker
	db          *db.DB
	plotter     *MaskPlotter
	serialMux   serialsrc.Muxer
	maskListen  string
	poiListen   string
	forwardAddr string
	serialPort  string
	startTime   time.Time
	server      *http.Server
}

// WebServerConfig contains configuration options for the web server. Engine
// is required; every other collaborator is optional and its endpoints degrade
// to an error response when absent.
type WebServerConfig struct {
	Address     string
	Engine      *fusion.Engine
	MaskStats   *ingest.PacketStats
	POIStats    *ingest.PacketStats
	Forwarder   *forward.Forwarder
	Publisher   *visualiser.Publisher
	Worker      *db.CycleWorker
	DB          *db.DB
	Plotter     *MaskPlotter
	SerialMux   serialsrc.Muxer // pass nil when no detector is attached
	MaskListen  string
	POIListen   string
	ForwardAddr string
	SerialPort  string
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:     config.Address,
		engine:      config.Engine,
		maskStats:   config.MaskStats,
		poiStats:    config.POIStats,
		forwarder:   config.Forwarder,
		publisher:   config.Publisher,
		worker:      config.Worker,
		db:          config.DB,
		plotter:     config.Plotter,
		serialMux:   config.SerialMux,
		maskListen:  config.MaskListen,
		poiListen:   config.POIListen,
		forwardAddr: config.ForwardAddr,
		serialPort:  config.SerialPort,
		startTime:   time.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/fusion/stats", ws.handleFusionStats)
	mux.HandleFunc("/api/fusion/recent", ws.handleRecentEvents)
	mux.HandleFunc("/api/fusion/summary", ws.handleSummary)
	mux.HandleFunc("/debug/charts/confidence", ws.handleConfidenceChart)
	mux.HandleFunc("/debug/charts/passrate", ws.handlePassRateChart)
	mux.HandleFunc("/debug/plot", ws.handleMaskPlot)

	// tsweb's /debug/ index handler; longer patterns above win over it. The
	// serial mux and the DB share one Debugger on this mux.
	if ws.serialMux != nil {
		ws.serialMux.AttachAdminRoutes(mux)
	}
	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "drivegate", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	forwardingStatus := "disabled"
	if ws.forwarder != nil {
		forwardingStatus = fmt.Sprintf("enabled (%s)", ws.forwardAddr)
	}

	recordingStatus := "disabled"
	if ws.worker != nil {
		recordingStatus = "enabled"
	}

	serialStatus := "disabled"
	if ws.serialPort != "" {
		serialStatus = fmt.Sprintf("enabled (%s)", ws.serialPort)
	}

	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var snap fusion.Snapshot
	if ws.engine != nil {
		snap = ws.engine.Snapshot()
	}

	var maskTotals, poiTotals ingest.StreamTotals
	if ws.maskStats != nil {
		maskTotals = ws.maskStats.Totals()
	}
	if ws.poiStats != nil {
		poiTotals = ws.poiStats.Totals()
	}

	data := struct {
		Camera           string
		Version          string
		HTTPAddress      string
		MaskListen       string
		POIListen        string
		ForwardingStatus string
		RecordingStatus  string
		SerialStatus     string
		Uptime           string
		Snap             fusion.Snapshot
		MaskTotals       ingest.StreamTotals
		POITotals        ingest.StreamTotals
	}{
		Camera:           snap.Camera,
		Version:          fmt.Sprintf("%s (%s)", version.Version, version.GitSHA),
		HTTPAddress:      ws.address,
		MaskListen:       ws.maskListen,
		POIListen:        ws.poiListen,
		ForwardingStatus: forwardingStatus,
		RecordingStatus:  recordingStatus,
		SerialStatus:     serialStatus,
		Uptime:           time.Since(ws.startTime).Round(time.Second).String(),
		Snap:             snap,
		MaskTotals:       maskTotals,
		POITotals:        poiTotals,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
