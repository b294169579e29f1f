package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/drivegate/internal/timeutil"
)

type captureForwarder struct {
	payloads [][]byte
}

func (f *captureForwarder) ForwardAsync(p []byte) {
	f.payloads = append(f.payloads, p)
}

type capturePublisher struct {
	clients   int
	cameras   []string
	summaries []CycleSummary
	results   [][]Result
}

func (p *capturePublisher) ActiveClients() int { return p.clients }

func (p *capturePublisher) PublishCycle(camera string, s CycleSummary, rs []Result) {
	p.cameras = append(p.cameras, camera)
	p.summaries = append(p.summaries, s)
	p.results = append(p.results, rs)
}

type captureRecorder struct {
	summaries []CycleSummary
	results   [][]Result
}

func (r *captureRecorder) RecordCycle(s CycleSummary, rs []Result) {
	r.summaries = append(r.summaries, s)
	r.results = append(r.results, rs)
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(EngineConfig{})
	if e.camera != DefaultCamera {
		t.Errorf("camera = %q, want %q", e.camera, DefaultCamera)
	}
	if e.tolerance != DefaultSyncTolerance {
		t.Errorf("tolerance = %v, want %v", e.tolerance, DefaultSyncTolerance)
	}
	if e.maxAge != 2*DefaultSyncTolerance {
		t.Errorf("maxAge = %v, want %v", e.maxAge, 2*DefaultSyncTolerance)
	}
	if e.interval != DefaultCycleInterval {
		t.Errorf("interval = %v, want %v", e.interval, DefaultCycleInterval)
	}
}

func TestEngine_CycleWithoutMaskIsNoop(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(100, 0))
	e := NewEngine(EngineConfig{Clock: clk})

	e.OnPOI(makePOI(clk.Now().UnixNano(), 5, 5))

	s := e.CycleNow()
	if s.CycleIndex != 0 || s.Drained != 0 {
		t.Fatalf("cycle without mask should be a no-op, got %+v", s)
	}
	if got := e.Snapshot().POIsBuffered; got != 1 {
		t.Errorf("POI should remain buffered, buffer has %d", got)
	}
}

func TestEngine_MatchesWithinTolerance(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(100, 0))
	fwd := &captureForwarder{}
	rec := &captureRecorder{}
	e := NewEngine(EngineConfig{
		SyncTolerance: 100 * time.Millisecond,
		Clock:         clk,
		Forwarder:     fwd,
		Recorder:      rec,
	})

	// POI captured at t, mask at t+50ms: inside the 100ms window.
	base := clk.Now().UnixNano()
	maskTS := base + (50 * time.Millisecond).Nanoseconds()
	e.OnMask(uniformMask(100, 100, 1, maskTS))

	raw := []byte(`{"x":50,"y":50,"category":"cone"}`)
	p := makePOI(base, 50, 50)
	p.Raw = raw
	e.OnPOI(p)

	s := e.CycleNow()
	if s.Drained != 1 || s.Classified != 1 || s.Passed != 1 {
		t.Fatalf("summary = %+v, want drained/classified/passed = 1", s)
	}
	if s.MaskTimestampNanos != maskTS {
		t.Errorf("summary mask ts = %d, want %d", s.MaskTimestampNanos, maskTS)
	}
	if len(fwd.payloads) != 1 || string(fwd.payloads[0]) != string(raw) {
		t.Errorf("passing POI was not forwarded with its original payload")
	}
	if len(rec.summaries) != 1 || rec.summaries[0].Passed != 1 {
		t.Errorf("cycle summary not recorded")
	}
}

func TestEngine_OutsideToleranceThenEvicted(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(100, 0))
	e := NewEngine(EngineConfig{
		SyncTolerance: 100 * time.Millisecond,
		Clock:         clk,
	})

	// Mask leads the POI by 200ms: outside the 100ms window, never matched.
	base := clk.Now().UnixNano()
	e.OnPOI(makePOI(base, 50, 50))
	e.OnMask(uniformMask(100, 100, 1, base+(200*time.Millisecond).Nanoseconds()))

	s := e.CycleNow()
	if s.Drained != 0 {
		t.Fatalf("POI 200ms from mask matched a 100ms window: %+v", s)
	}
	if e.Snapshot().POIsBuffered != 1 {
		t.Fatalf("unmatched POI should stay buffered")
	}

	// Once the POI is older than 2x tolerance, the next cycle evicts it.
	clk.Advance(200*time.Millisecond + time.Nanosecond)
	e.CycleNow()

	snap := e.Snapshot()
	if snap.POIsBuffered != 0 {
		t.Fatalf("stale POI still buffered after 2x tolerance")
	}
	if snap.Evicted != 1 {
		t.Errorf("Snapshot().Evicted = %d, want 1", snap.Evicted)
	}
}

func TestEngine_DrainExactlyOnce(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(100, 0))
	e := NewEngine(EngineConfig{Clock: clk})

	now := clk.Now().UnixNano()
	e.OnMask(uniformMask(100, 100, 1, now))
	e.OnPOI(makePOI(now, 50, 50))

	first := e.CycleNow()
	if first.Drained != 1 {
		t.Fatalf("first cycle drained %d, want 1", first.Drained)
	}

	second := e.CycleNow()
	if second.Drained != 0 || second.CycleIndex != 0 {
		t.Fatalf("second cycle re-processed the POI: %+v", second)
	}
	if e.Snapshot().Cycles != 1 {
		t.Errorf("cycle count = %d, want 1", e.Snapshot().Cycles)
	}
}

func TestEngine_PublishGatedOnActiveClients(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(100, 0))
	pub := &capturePublisher{clients: 0}
	rec := &captureRecorder{}
	e := NewEngine(EngineConfig{Clock: clk, Publisher: pub, Recorder: rec})

	now := clk.Now().UnixNano()
	e.OnMask(uniformMask(100, 100, 1, now))
	e.OnPOI(makePOI(now, 50, 50))

	s := e.CycleNow()
	if len(pub.summaries) != 0 {
		t.Fatalf("published with zero active clients")
	}
	// the summary counts and persistence do not depend on visualisation
	if s.Classified != 1 || s.Passed != 1 {
		t.Fatalf("summary counts missing without clients: %+v", s)
	}
	if len(rec.summaries) != 1 {
		t.Fatalf("cycle not recorded without clients")
	}

	pub.clients = 1
	e.OnPOI(makePOI(now, 60, 60))
	e.CycleNow()

	if len(pub.summaries) != 1 {
		t.Fatalf("cycle not published with an active client")
	}
	if pub.cameras[0] != DefaultCamera {
		t.Errorf("published camera = %q, want %q", pub.cameras[0], DefaultCamera)
	}
	if len(pub.results[0]) != 1 {
		t.Errorf("published %d results, want 1", len(pub.results[0]))
	}
}

func TestEngine_ForwardsOnlyPassingPOIs(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(100, 0))
	fwd := &captureForwarder{}
	e := NewEngine(EngineConfig{Clock: clk, Forwarder: fwd})

	now := clk.Now().UnixNano()
	e.OnMask(maskWithRegion(100, 100, 50, 50, 10, now))

	pass := makePOI(now, 50, 50)
	pass.Raw = []byte("pass")
	fail := makePOI(now, 5, 5)
	fail.Raw = []byte("fail")
	e.OnPOI(pass)
	e.OnPOI(fail)

	s := e.CycleNow()
	if s.Classified != 2 || s.Passed != 1 {
		t.Fatalf("summary = %+v, want 2 classified / 1 passed", s)
	}
	if len(fwd.payloads) != 1 || string(fwd.payloads[0]) != "pass" {
		t.Fatalf("forwarded payloads = %q, want only the passing POI", fwd.payloads)
	}
}

func TestEngine_FaultContainedPerPOI(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(100, 0))
	e := NewEngine(EngineConfig{Clock: clk})

	now := clk.Now().UnixNano()
	// Truncated pixel buffer: rows up to y=5 exist, everything past panics
	// when sampled. The bad POI must not take the good one down with it.
	bad := &Mask{Width: 100, Height: 100, Pix: make([]uint8, 600), TimestampNanos: now}
	e.OnMask(bad)

	e.OnPOI(makePOI(now, 50, 50)) // samples past the truncated buffer
	e.OnPOI(makePOI(now, 0, 0))   // samples inside it

	s := e.CycleNow()
	if s.Classified != 2 {
		t.Fatalf("faulting POI aborted the batch: classified %d, want 2", s.Classified)
	}
	if s.Passed != 0 {
		t.Errorf("passed = %d, want 0 (fault yields false, mask is zero)", s.Passed)
	}
}

func TestEngine_NilTypedCollaboratorsSkipped(t *testing.T) {
	var fwd *captureForwarder
	var pub *capturePublisher
	var rec *captureRecorder

	clk := timeutil.NewMockClock(time.Unix(100, 0))
	e := NewEngine(EngineConfig{
		Clock:     clk,
		Forwarder: fwd,
		Publisher: pub,
		Recorder:  rec,
	})

	now := clk.Now().UnixNano()
	e.OnMask(uniformMask(100, 100, 1, now))
	e.OnPOI(makePOI(now, 50, 50))

	// a typed-nil collaborator must be skipped, not dereferenced
	s := e.CycleNow()
	if s.Passed != 1 {
		t.Fatalf("cycle failed with typed-nil collaborators: %+v", s)
	}
}

func TestEngine_MaskRegressionCounted(t *testing.T) {
	clk := timeutil.NewMockClock(time.Unix(100, 0))
	e := NewEngine(EngineConfig{Clock: clk})

	e.OnMask(uniformMask(10, 10, 1, 2000))
	e.OnMask(uniformMask(10, 10, 1, 1000))

	snap := e.Snapshot()
	if snap.MasksReceived != 2 {
		t.Errorf("MasksReceived = %d, want 2", snap.MasksReceived)
	}
	if snap.MaskRegressions != 1 {
		t.Errorf("MaskRegressions = %d, want 1", snap.MaskRegressions)
	}
	if snap.MaskTimestampNanos != 1000 {
		t.Errorf("stored mask ts = %d, want 1000 (last write wins)", snap.MaskTimestampNanos)
	}
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e := NewEngine(EngineConfig{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	now := time.Now().UnixNano()
	e.OnMask(uniformMask(10, 10, 1, now))
	e.OnPOI(makePOI(now, 5, 5))

	deadline := time.After(2 * time.Second)
	for e.Snapshot().Cycles == 0 {
		select {
		case <-deadline:
			t.Fatal("no fusion cycle ran within 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
