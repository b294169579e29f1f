package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/drivegate/internal/httputil"
)

// echartsAssetsPrefix points the rendered chart pages at the published
// go-echarts runtime so the daemon does not have to serve JS itself.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleConfidenceChart renders a scatter plot (HTML) of recent POI
// classifications using go-echarts. Each point sits at its image coordinates;
// passing and blocked detections are separate colored series. This is a
// debugging-only endpoint (no auth) for eyeballing classifier behaviour
// without a frontend.
// Query params:
//   - limit (optional; default 2000, max 10000)
func (ws *WebServer) handleConfidenceChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	limit := parseLimit(r, 2000, 10000)
	events, err := ws.db.RecentPOIEvents(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get recent events: %v", err))
		return
	}
	if len(events) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no classifications recorded")
		return
	}

	var passData, blockData []opts.ScatterData
	maxX, maxY := 0.0, 0.0
	for _, e := range events {
		if e.X > maxX {
			maxX = e.X
		}
		if e.Y > maxY {
			maxY = e.Y
		}
		point := opts.ScatterData{Value: []interface{}{e.X, e.Y, e.Confidence}}
		if e.Drivable {
			passData = append(passData, point)
		} else {
			blockData = append(blockData, point)
		}
	}

	// Add a small padding so points at the edges are visible
	padX := maxX * 1.05
	if padX == 0 {
		padX = 1.0
	}
	padY := maxY * 1.05
	if padY == 0 {
		padY = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Drivegate Classifications", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "POI Classifications", Subtitle: fmt.Sprintf("points=%d passed=%d blocked=%d", len(events), len(passData), len(blockData))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: padX, Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: padY, Name: "Y (px)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("drivable", passData,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#35b779"}),
	)
	scatter.AddSeries("blocked", blockData,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handlePassRateChart renders a line chart (HTML) of the per-cycle pass rate,
// oldest cycle first.
// Query params:
//   - limit (optional; default 200, max 1000)
func (ws *WebServer) handlePassRateChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}

	limit := parseLimit(r, 200, 1000)
	cycles, err := ws.db.RecentCycles(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get cycles: %v", err))
		return
	}
	if len(cycles) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no cycles recorded")
		return
	}

	// RecentCycles is newest first; the chart reads left to right in time.
	x := make([]string, 0, len(cycles))
	y := make([]opts.LineData, 0, len(cycles))
	for i := len(cycles) - 1; i >= 0; i-- {
		c := cycles[i]
		rate := 0.0
		if c.Classified > 0 {
			rate = 100 * float64(c.Passed) / float64(c.Classified)
		}
		x = append(x, strconv.FormatUint(c.CycleIndex, 10))
		y = append(y, opts.LineData{Value: rate})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Drivegate Pass Rate", Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Per-cycle pass rate", Subtitle: fmt.Sprintf("cycles=%d", len(cycles))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "%"}),
	)
	line.SetXAxis(x).
		AddSeries("pass rate", y,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
