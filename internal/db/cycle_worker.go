package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/drivegate/internal/fusion"
	"github.com/banshee-data/drivegate/internal/monitoring"
)

// DefaultRecordBuffer is the cycle queue length when none is configured.
const DefaultRecordBuffer = 256

type cycleRecord struct {
	summary fusion.CycleSummary
	results []fusion.Result
}

// CycleWorker persists cycle summaries and per-POI outcomes off the engine's
// critical path. RecordCycle is a non-blocking handoff; the worker goroutine
// does the SQLite writes. A saturated queue drops records rather than stall
// a fusion cycle.
type CycleWorker struct {
	db          *DB
	sessionID   string
	records     chan cycleRecord
	done        chan struct{}
	logInterval time.Duration

	mu      sync.Mutex
	dropped int64
}

// NewCycleWorker prepares a worker recording into the given session. A
// non-positive bufferDepth selects the default.
func NewCycleWorker(db *DB, sessionID string, bufferDepth int) *CycleWorker {
	if bufferDepth <= 0 {
		bufferDepth = DefaultRecordBuffer
	}
	return &CycleWorker{
		db:          db,
		sessionID:   sessionID,
		records:     make(chan cycleRecord, bufferDepth),
		done:        make(chan struct{}),
		logInterval: time.Minute,
	}
}

// Start begins the persistence goroutine. On context cancellation the worker
// drains whatever is already queued before exiting.
func (w *CycleWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.drainQueued()
				return
			case rec, ok := <-w.records:
				if !ok {
					return
				}
				if err := w.insert(rec); err != nil {
					monitoring.Logf("cycle worker: insert failed: %v", err)
				}
			case <-ticker.C:
				if n := w.takeDropped(); n > 0 {
					monitoring.Logf("\033[93mDropped %d cycle records (persistence queue full)\033[0m", n)
				}
			}
		}
	}()
}

// RecordCycle queues one cycle for persistence without blocking. Implements
// the engine's recorder collaborator.
func (w *CycleWorker) RecordCycle(summary fusion.CycleSummary, results []fusion.Result) {
	select {
	case w.records <- cycleRecord{summary: summary, results: results}:
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
	}
}

// Dropped returns how many cycle records were discarded because the queue
// was full.
func (w *CycleWorker) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *CycleWorker) takeDropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.dropped
	w.dropped = 0
	return n
}

// Stop closes the queue and waits for the worker to finish writing everything
// still buffered. Call only after the engine has stopped producing.
func (w *CycleWorker) Stop() {
	close(w.records)
	<-w.done
}

// drainQueued writes whatever is buffered without waiting for more.
func (w *CycleWorker) drainQueued() {
	for {
		select {
		case rec, ok := <-w.records:
			if !ok {
				return
			}
			if err := w.insert(rec); err != nil {
				monitoring.Logf("cycle worker: insert failed: %v", err)
			}
		default:
			return
		}
	}
}

// insert writes one cycle and its POI outcomes in a single transaction.
func (w *CycleWorker) insert(rec cycleRecord) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()

	_, err = tx.Exec(`
		INSERT INTO fusion_cycles (
			session_id, cycle_index, mask_timestamp_ns,
			drained, classified, passed, evicted, duration_us, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.sessionID, rec.summary.CycleIndex, rec.summary.MaskTimestampNanos,
		rec.summary.Drained, rec.summary.Classified, rec.summary.Passed,
		rec.summary.Evicted, rec.summary.DurationMicros, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}

	if len(rec.results) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO poi_events (
				session_id, cycle_index, x, y, category,
				timestamp_ns, mask_timestamp_ns, confidence, drivable, created_at_ns
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare poi insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rec.results {
			_, err := stmt.Exec(
				w.sessionID, rec.summary.CycleIndex, r.POI.X, r.POI.Y, r.POI.Category,
				r.POI.TimestampNanos, rec.summary.MaskTimestampNanos,
				r.Confidence, boolToInt(r.Drivable), now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert poi event: %w", err)
			}
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
