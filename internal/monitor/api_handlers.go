package monitor

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/drivegate/internal/db"
	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/httputil"
	"github.com/banshee-data/drivegate/internal/ingest"
)

// parseLimit reads the optional ?limit= query parameter, falling back to def
// and clamping to max.
func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

type forwarderStats struct {
	Address string `json:"address"`
	Dropped int64  `json:"dropped"`
}

type visualiserStats struct {
	Running       bool   `json:"running"`
	Clients       int32  `json:"clients"`
	Frames        uint64 `json:"frames"`
	DroppedFrames uint64 `json:"dropped_frames"`
}

type recorderStats struct {
	Dropped int64 `json:"dropped"`
}

type fusionStatsResponse struct {
	Engine     fusion.Snapshot      `json:"engine"`
	MaskIngest *ingest.StreamTotals `json:"mask_ingest,omitempty"`
	POIIngest  *ingest.StreamTotals `json:"poi_ingest,omitempty"`
	Forwarder  *forwarderStats      `json:"forwarder,omitempty"`
	Visualiser *visualiserStats     `json:"visualiser,omitempty"`
	Recorder   *recorderStats       `json:"recorder,omitempty"`
	UptimeSecs float64              `json:"uptime_secs"`
	Timestamp  string               `json:"timestamp"`
}

// handleFusionStats returns the cumulative counters of every pipeline stage.
func (ws *WebServer) handleFusionStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.engine == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no engine configured")
		return
	}

	resp := fusionStatsResponse{
		Engine:     ws.engine.Snapshot(),
		UptimeSecs: time.Since(ws.startTime).Seconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	if ws.maskStats != nil {
		t := ws.maskStats.Totals()
		resp.MaskIngest = &t
	}
	if ws.poiStats != nil {
		t := ws.poiStats.Totals()
		resp.POIIngest = &t
	}
	if ws.forwarder != nil {
		resp.Forwarder = &forwarderStats{Address: ws.forwardAddr, Dropped: ws.forwarder.Dropped()}
	}
	if ws.publisher != nil {
		ps := ws.publisher.Stats()
		resp.Visualiser = &visualiserStats{
			Running:       ps.Running,
			Clients:       ps.ClientCount,
			Frames:        ps.FrameCount,
			DroppedFrames: ps.DroppedFrames,
		}
	}
	if ws.worker != nil {
		resp.Recorder = &recorderStats{Dropped: ws.worker.Dropped()}
	}

	httputil.WriteJSONOK(w, resp)
}

// handleRecentEvents returns the newest persisted classification outcomes.
// Query params:
//
//	limit (optional, default 100, max 1000)
func (ws *WebServer) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	limit := parseLimit(r, 100, 1000)
	events, err := ws.db.RecentPOIEvents(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get recent events: %v", err))
		return
	}
	if events == nil {
		events = []db.POIEvent{}
	}

	httputil.WriteJSONOK(w, events)
}

type confidenceSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

type cycleSummaryStats struct {
	Count          int     `json:"count"`
	MeanDurationUs float64 `json:"mean_duration_us"`
	MeanClassified float64 `json:"mean_classified"`
	MeanPassed     float64 `json:"mean_passed"`
}

type summaryResponse struct {
	Samples    int                `json:"samples"`
	PassRate   float64            `json:"pass_rate"`
	Confidence confidenceSummary  `json:"confidence"`
	Cycles     *cycleSummaryStats `json:"cycles,omitempty"`
}

// handleSummary computes summary statistics over the most recent persisted
// classifications: mean, spread, and quantiles of the confidence values, the
// overall pass rate, and per-cycle averages.
// Query params:
//
//	limit (optional, default 1000, max 10000)
func (ws *WebServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	limit := parseLimit(r, 1000, 10000)
	confidences, drivable, err := ws.db.RecentConfidences(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get confidences: %v", err))
		return
	}
	if len(confidences) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no classifications recorded")
		return
	}

	passed := 0
	for _, d := range drivable {
		if d {
			passed++
		}
	}

	// Quantile requires sorted input; Mean and StdDev do not.
	sorted := append([]float64(nil), confidences...)
	sort.Float64s(sorted)

	resp := summaryResponse{
		Samples:  len(confidences),
		PassRate: float64(passed) / float64(len(confidences)),
		Confidence: confidenceSummary{
			Mean: stat.Mean(confidences, nil),
			Min:  sorted[0],
			P25:  stat.Quantile(0.25, stat.Empirical, sorted, nil),
			P50:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
			P90:  stat.Quantile(0.90, stat.Empirical, sorted, nil),
			Max:  sorted[len(sorted)-1],
		},
	}
	// StdDev of a single sample is NaN, which JSON cannot encode.
	if len(confidences) > 1 {
		resp.Confidence.StdDev = stat.StdDev(confidences, nil)
	}

	cycles, err := ws.db.RecentCycles(200)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get cycles: %v", err))
		return
	}
	if len(cycles) > 0 {
		durations := make([]float64, len(cycles))
		classified := make([]float64, len(cycles))
		passedPer := make([]float64, len(cycles))
		for i, c := range cycles {
			durations[i] = float64(c.DurationUs)
			classified[i] = float64(c.Classified)
			passedPer[i] = float64(c.Passed)
		}
		resp.Cycles = &cycleSummaryStats{
			Count:          len(cycles),
			MeanDurationUs: stat.Mean(durations, nil),
			MeanClassified: stat.Mean(classified, nil),
			MeanPassed:     stat.Mean(passedPer, nil),
		}
	}

	httputil.WriteJSONOK(w, resp)
}
