package monitor

import (
	"fmt"
	"image/color"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/httputil"
	"github.com/banshee-data/drivegate/internal/security"
)

// maxMaskPoints caps how many drivable pixels one plot draws; larger masks
// are strided down to stay under it.
const maxMaskPoints = 20000

// PlotPoint is one POI marker on a mask plot.
type PlotPoint struct {
	X, Y     float64
	Drivable bool
}

// MaskPlotter renders PNG overlays of the current drivable mask with recent
// POI decisions on top. It is disabled by default and writes nothing until
// Start is called with an output directory.
type MaskPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	rendered  int
}

// NewMaskPlotter creates a disabled MaskPlotter.
func NewMaskPlotter() *MaskPlotter {
	return &MaskPlotter{}
}

// Start enables plotting into outputDir, creating it if needed. The directory
// must pass local write validation; plots only ever land under the working
// directory or the system temp directory.
func (mp *MaskPlotter) Start(outputDir string) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if err := security.ValidateLocalWritePath(outputDir); err != nil {
		return fmt.Errorf("invalid plot output dir: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	mp.enabled = true
	mp.outputDir = outputDir
	log.Printf("Mask plotting enabled, output dir: %s", outputDir)
	return nil
}

// Stop disables plotting. Already rendered files are kept.
func (mp *MaskPlotter) Stop() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.enabled = false
}

// IsEnabled returns whether the plotter accepts render requests.
func (mp *MaskPlotter) IsEnabled() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.enabled
}

// OutputDir returns the current output directory for plots.
func (mp *MaskPlotter) OutputDir() string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.outputDir
}

// RenderCount returns the number of plots rendered since Start.
func (mp *MaskPlotter) RenderCount() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.rendered
}

// RenderSnapshot draws mask occupancy as a dot field with the given POI
// markers on top, colored by decision, and saves it as a PNG named after the
// mask timestamp. It returns the written file path.
func (mp *MaskPlotter) RenderSnapshot(mask *fusion.Mask, points []PlotPoint) (string, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if !mp.enabled {
		return "", fmt.Errorf("mask plotter not started")
	}
	if mask == nil || mask.Width <= 0 || mask.Height <= 0 {
		return "", fmt.Errorf("no mask to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Drivable mask %dx%d", mask.Width, mask.Height)
	p.X.Label.Text = "X (px)"
	p.Y.Label.Text = "Y (px)"
	p.X.Min, p.X.Max = 0, float64(mask.Width)
	p.Y.Min, p.Y.Max = 0, float64(mask.Height)

	// Stride down so huge masks stay plottable.
	step := 1
	if total := mask.Width * mask.Height; total > maxMaskPoints {
		step = int(math.Ceil(math.Sqrt(float64(total) / float64(maxMaskPoints))))
	}

	// Image rows grow downward; flip Y so the plot matches the camera frame.
	flipY := func(y float64) float64 { return float64(mask.Height) - 1 - y }

	maskPts := make(plotter.XYs, 0, maxMaskPoints)
	for y := 0; y < mask.Height; y += step {
		for x := 0; x < mask.Width; x += step {
			if mask.At(x, y) > 0 {
				maskPts = append(maskPts, plotter.XY{X: float64(x), Y: flipY(float64(y))})
			}
		}
	}

	if len(maskPts) > 0 {
		maskScatter, err := plotter.NewScatter(maskPts)
		if err != nil {
			return "", err
		}
		maskScatter.GlyphStyle.Color = color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 255}
		maskScatter.GlyphStyle.Radius = vg.Points(1)
		p.Add(maskScatter)
		p.Legend.Add("drivable area", maskScatter)
	}

	var passPts, blockPts plotter.XYs
	for _, pt := range points {
		xy := plotter.XY{X: pt.X, Y: flipY(pt.Y)}
		if pt.Drivable {
			passPts = append(passPts, xy)
		} else {
			blockPts = append(blockPts, xy)
		}
	}

	if len(passPts) > 0 {
		passScatter, err := plotter.NewScatter(passPts)
		if err != nil {
			return "", err
		}
		passScatter.GlyphStyle.Color = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
		passScatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(passScatter)
		p.Legend.Add("passed", passScatter)
	}

	if len(blockPts) > 0 {
		blockScatter, err := plotter.NewScatter(blockPts)
		if err != nil {
			return "", err
		}
		blockScatter.GlyphStyle.Color = color.RGBA{R: 0xff, G: 0x52, B: 0x52, A: 255}
		blockScatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(blockScatter)
		p.Legend.Add("blocked", blockScatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	outFile := filepath.Join(mp.outputDir, fmt.Sprintf("mask_%d.png", mask.TimestampNanos))
	if err := security.ValidatePathWithinDirectory(outFile, mp.outputDir); err != nil {
		return "", err
	}

	if err := p.Save(8*vg.Inch, 6*vg.Inch, outFile); err != nil {
		return "", fmt.Errorf("save mask plot: %w", err)
	}

	mp.rendered++
	return outFile, nil
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots:
// <baseDir>/<camera>/<timestamp>, or <baseDir>/live_<timestamp> when no
// camera name is set.
func MakePlotOutputDir(baseDir, camera string) string {
	ts := FormatTimestamp(time.Now())
	if camera != "" {
		return filepath.Join(baseDir, security.SanitizeFilename(camera), ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}

// handleMaskPlot triggers an on-demand render of the current mask with the
// most recent persisted POI decisions overlaid, and reports the written file.
func (ws *WebServer) handleMaskPlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if ws.plotter == nil || !ws.plotter.IsEnabled() {
		httputil.WriteJSONError(w, http.StatusNotFound, "mask plotting not enabled")
		return
	}
	if ws.engine == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no engine configured")
		return
	}

	mask, ok := ws.engine.CurrentMask()
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "no mask received yet")
		return
	}

	var points []PlotPoint
	if ws.db != nil {
		events, err := ws.db.RecentPOIEvents(500)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get recent events: %v", err))
			return
		}
		for _, e := range events {
			points = append(points, PlotPoint{X: e.X, Y: e.Y, Drivable: e.Drivable})
		}
	}

	file, err := ws.plotter.RenderSnapshot(mask, points)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render plot: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{"status": "ok", "file": file, "points": len(points)})
	log.Printf("Rendered mask plot to %s", file)
}
