package fusion

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// EngineStats tracks per-interval fusion counters with thread-safe
// operations. Counters reset on GetAndReset so the daemon can log rates;
// cumulative totals live on the Engine itself.
type EngineStats struct {
	mu        sync.Mutex
	masks     int64
	pois      int64
	cycles    int64
	drained   int64
	passed    int64
	evicted   int64
	lastReset time.Time
}

// NewEngineStats creates a new EngineStats instance.
func NewEngineStats() *EngineStats {
	return &EngineStats{lastReset: time.Now()}
}

// AddMask counts one received mask.
func (s *EngineStats) AddMask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masks++
}

// AddPOI counts one buffered POI.
func (s *EngineStats) AddPOI() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pois++
}

// AddEvicted counts n POIs dropped as stale.
func (s *EngineStats) AddEvicted(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicted += int64(n)
}

// AddCycle folds one productive cycle's counts in.
func (s *EngineStats) AddCycle(drained, passed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.drained += int64(drained)
	s.passed += int64(passed)
}

// GetAndReset returns current counters and resets them.
func (s *EngineStats) GetAndReset() (masks, pois, cycles, drained, passed, evicted int64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	duration = now.Sub(s.lastReset)
	masks = s.masks
	pois = s.pois
	cycles = s.cycles
	drained = s.drained
	passed = s.passed
	evicted = s.evicted

	s.masks = 0
	s.pois = 0
	s.cycles = 0
	s.drained = 0
	s.passed = 0
	s.evicted = 0
	s.lastReset = now

	return
}

// LogStats logs one summary line covering the interval since the last reset.
// Quiet intervals produce no output.
func (s *EngineStats) LogStats() {
	masks, pois, cycles, drained, passed, evicted, duration := s.GetAndReset()
	if masks == 0 && pois == 0 && cycles == 0 && evicted == 0 {
		return
	}

	secs := duration.Seconds()
	logMsg := fmt.Sprintf("Fusion stats (/sec): %.1f masks, %.1f POIs, %.1f cycles",
		float64(masks)/secs, float64(pois)/secs, float64(cycles)/secs)
	if drained > 0 {
		logMsg += fmt.Sprintf(", %d classified (%d passed)", drained, passed)
	}
	if evicted > 0 {
		logMsg += fmt.Sprintf(", %d evicted as stale", evicted)
	}

	log.Print(logMsg)
}
