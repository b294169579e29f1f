package fusion

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/banshee-data/drivegate/internal/timeutil"
)

const (
	// DefaultSyncTolerance is the half-width of the timestamp matching
	// window around the current mask.
	DefaultSyncTolerance = 100 * time.Millisecond

	// DefaultCycleInterval is the fusion cycle cadence.
	DefaultCycleInterval = 50 * time.Millisecond

	// DefaultCamera names the stream when no camera name is configured.
	DefaultCamera = "front"
)

// POIForwarder sends a passing POI's original wire payload downstream.
// ForwardAsync must not block; it is called inside the engine's cycle
// critical section.
type POIForwarder interface {
	ForwardAsync(payload []byte)
}

// ResultPublisher streams annotated cycle results to visualisation clients.
// ActiveClients gates the work: the engine hands a cycle over only when at
// least one client is connected, so an idle publisher costs nothing per
// cycle beyond the count check. PublishCycle must not block.
type ResultPublisher interface {
	ActiveClients() int
	PublishCycle(camera string, summary CycleSummary, results []Result)
}

// CycleRecorder persists cycle summaries and per-POI outcomes. RecordCycle
// must not block; implementations hand off to a worker and drop on overflow.
type CycleRecorder interface {
	RecordCycle(summary CycleSummary, results []Result)
}

// isNilInterface checks if an interface value is nil or contains a nil pointer.
// This handles the Go interface nil pitfall where interface{} != nil but the
// underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// EngineConfig holds construction parameters for an Engine. Zero values
// select the defaults documented on each field. Collaborators are optional;
// a nil (or typed-nil) collaborator is skipped.
type EngineConfig struct {
	Camera        string        // downstream channel label, default "front"
	SyncTolerance time.Duration // matching window half-width, default 100ms
	Interval      time.Duration // cycle cadence, default 50ms
	Radius        int           // classifier window radius, default 5
	Threshold     float64       // classifier decision threshold, default 0.5

	Clock timeutil.Clock // defaults to RealClock

	Forwarder POIForwarder
	Publisher ResultPublisher
	Recorder  CycleRecorder
}

// Engine correlates the mask and POI streams and runs the periodic fusion
// cycle. One mutex covers mask updates, POI inserts, eviction and the whole
// cycle; collaborator handoffs inside the cycle are O(1) and non-blocking,
// so the critical section never waits on I/O.
type Engine struct {
	mu         sync.Mutex
	camera     string
	tolerance  time.Duration
	maxAge     time.Duration
	interval   time.Duration
	classifier *Classifier
	masks      MaskStore
	buffer     *POIBuffer
	clock      timeutil.Clock

	forwarder POIForwarder
	publisher ResultPublisher
	recorder  CycleRecorder

	stats *EngineStats

	// cumulative counters, guarded by mu
	cycleIndex    uint64
	masksReceived uint64
	poisReceived  uint64
	totalDrained  uint64
	totalPassed   uint64
	totalEvicted  uint64
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Camera == "" {
		cfg.Camera = DefaultCamera
	}
	if cfg.SyncTolerance <= 0 {
		cfg.SyncTolerance = DefaultSyncTolerance
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCycleInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if isNilInterface(cfg.Forwarder) {
		cfg.Forwarder = nil
	}
	if isNilInterface(cfg.Publisher) {
		cfg.Publisher = nil
	}
	if isNilInterface(cfg.Recorder) {
		cfg.Recorder = nil
	}

	return &Engine{
		camera:     cfg.Camera,
		tolerance:  cfg.SyncTolerance,
		maxAge:     2 * cfg.SyncTolerance,
		interval:   cfg.Interval,
		classifier: NewClassifier(cfg.Radius, cfg.Threshold),
		buffer:     NewPOIBuffer(),
		clock:      cfg.Clock,
		forwarder:  cfg.Forwarder,
		publisher:  cfg.Publisher,
		recorder:   cfg.Recorder,
		stats:      NewEngineStats(),
	}
}

// Stats returns the engine's interval counters for periodic rate logging.
func (e *Engine) Stats() *EngineStats {
	return e.stats
}

// Camera returns the configured stream label.
func (e *Engine) Camera() string {
	return e.camera
}

// OnMask installs m as the current mask. Out-of-order masks are kept
// (last-write-wins) and counted as regressions.
func (e *Engine) OnMask(m *Mask) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if regressed := e.masks.Update(m); regressed {
		diagf("mask timestamp regressed to %d, kept (last-write-wins)", m.TimestampNanos)
	}
	e.masksReceived++
	e.stats.AddMask()
}

// OnPOI buffers p for the next matching cycle and opportunistically evicts
// stale entries so the buffer stays bounded even when cycles stall.
func (e *Engine) OnPOI(p POI) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buffer.Insert(p)
	e.poisReceived++
	e.stats.AddPOI()

	if n := e.buffer.EvictStale(e.clock.Now().UnixNano(), e.maxAge); n > 0 {
		e.totalEvicted += uint64(n)
		e.stats.AddEvicted(n)
		tracef("evicted %d stale POIs on insert", n)
	}
}

// Run drives fusion cycles at the configured cadence until ctx is canceled.
// Cycles never overlap; ticks arriving while a cycle executes are dropped by
// the ticker, not queued.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	opsf("engine running: camera=%s interval=%s tolerance=%s", e.camera, e.interval, e.tolerance)

	for {
		select {
		case <-ctx.Done():
			opsf("engine stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C():
			e.CycleNow()
		}
	}
}

// CycleNow executes one fusion cycle immediately and returns its summary.
// A no-op cycle (no mask yet, nothing buffered, nothing within tolerance)
// returns the zero summary.
func (e *Engine) CycleNow() CycleSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCycle()
}

// runCycle does the real work. Callers must hold e.mu.
func (e *Engine) runCycle() CycleSummary {
	start := e.clock.Now()

	evicted := e.buffer.EvictStale(start.UnixNano(), e.maxAge)
	if evicted > 0 {
		e.totalEvicted += uint64(evicted)
		e.stats.AddEvicted(evicted)
	}

	mask, ok := e.masks.Current()
	if !ok || e.buffer.Len() == 0 {
		return CycleSummary{}
	}

	matched := e.buffer.DrainMatching(mask.TimestampNanos, e.tolerance)
	if len(matched) == 0 {
		return CycleSummary{}
	}

	e.cycleIndex++
	results := make([]Result, 0, len(matched))
	passed := 0
	for _, p := range matched {
		drivable, confidence := e.classifier.safeClassify(mask, p)
		if drivable {
			passed++
			if e.forwarder != nil {
				e.forwarder.ForwardAsync(p.Raw)
			}
		}
		results = append(results, Result{POI: p, Drivable: drivable, Confidence: confidence})
	}

	summary := CycleSummary{
		CycleIndex:         e.cycleIndex,
		MaskTimestampNanos: mask.TimestampNanos,
		Drained:            len(matched),
		Classified:         len(results),
		Passed:             passed,
		Evicted:            evicted,
		DurationMicros:     e.clock.Since(start).Microseconds(),
	}

	// Visualisation is gated on a connected client; the summary counts and
	// persistence are not.
	if e.publisher != nil && e.publisher.ActiveClients() > 0 {
		e.publisher.PublishCycle(e.camera, summary, results)
	}
	if e.recorder != nil {
		e.recorder.RecordCycle(summary, results)
	}

	e.totalDrained += uint64(summary.Drained)
	e.totalPassed += uint64(summary.Passed)
	e.stats.AddCycle(summary.Drained, summary.Passed)
	tracef("cycle %d: drained=%d passed=%d evicted=%d mask_ts=%d dur=%dus",
		summary.CycleIndex, summary.Drained, summary.Passed, summary.Evicted,
		summary.MaskTimestampNanos, summary.DurationMicros)

	return summary
}

// CurrentMask returns the mask the next cycle would classify against. The
// returned mask is shared with the engine and must be treated as read-only.
func (e *Engine) CurrentMask() (*Mask, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.masks.Current()
}

// Snapshot is a point-in-time view of the engine's cumulative counters,
// served by the monitoring API.
type Snapshot struct {
	Camera             string `json:"camera"`
	Cycles             uint64 `json:"cycles"`
	MasksReceived      uint64 `json:"masks_received"`
	MaskRegressions    uint64 `json:"mask_regressions"`
	POIsReceived       uint64 `json:"pois_received"`
	POIsBuffered       int    `json:"pois_buffered"`
	Drained            uint64 `json:"drained"`
	Passed             uint64 `json:"passed"`
	Evicted            uint64 `json:"evicted"`
	HasMask            bool   `json:"has_mask"`
	MaskTimestampNanos int64  `json:"mask_timestamp_ns"`
}

// Snapshot returns the current cumulative counters.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Camera:          e.camera,
		Cycles:          e.cycleIndex,
		MasksReceived:   e.masksReceived,
		MaskRegressions: e.masks.Regressions(),
		POIsReceived:    e.poisReceived,
		POIsBuffered:    e.buffer.Len(),
		Drained:         e.totalDrained,
		Passed:          e.totalPassed,
		Evicted:         e.totalEvicted,
	}
	if mask, ok := e.masks.Current(); ok {
		snap.HasMask = true
		snap.MaskTimestampNanos = mask.TimestampNanos
	}
	return snap
}
