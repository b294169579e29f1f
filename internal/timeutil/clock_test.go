package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	got := clock.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	start := time.Now().Add(-100 * time.Millisecond)
	if d := clock.Since(start); d < 100*time.Millisecond {
		t.Errorf("Since returned %v, want >= 100ms", d)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire within 1s")
	}
}

func TestMockClock_NowAndSet(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	if got := clock.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}

	later := base.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClock_Since(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)
	clock.Advance(250 * time.Millisecond)

	if d := clock.Since(base); d != 250*time.Millisecond {
		t.Errorf("Since = %v, want 250ms", d)
	}
}

func TestMockClock_TickerFiresOnAdvance(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)
	ticker := clock.NewTicker(50 * time.Millisecond)

	// Not yet due.
	clock.Advance(49 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its period elapsed")
	default:
	}

	// Exactly due (inclusive).
	clock.Advance(1 * time.Millisecond)
	select {
	case got := <-ticker.C():
		want := base.Add(50 * time.Millisecond)
		if !got.Equal(want) {
			t.Errorf("tick time = %v, want %v", got, want)
		}
	default:
		t.Fatal("ticker did not fire at its period boundary")
	}
}

func TestMockClock_StoppedTickerNeverFires(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(10 * time.Millisecond)
	ticker.Stop()

	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Hour).(*MockTicker)

	now := time.Unix(42, 0)
	ticker.Trigger(now)

	select {
	case got := <-ticker.C():
		if !got.Equal(now) {
			t.Errorf("triggered tick time = %v, want %v", got, now)
		}
	default:
		t.Fatal("Trigger did not deliver a tick")
	}

	// A pending tick is not displaced by a second Trigger.
	ticker.Trigger(now)
	ticker.Trigger(now.Add(time.Second))
	got := <-ticker.C()
	if !got.Equal(now) {
		t.Errorf("pending tick displaced: got %v, want %v", got, now)
	}
}
