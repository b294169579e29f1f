package fusion

import "testing"

func TestMaskStore_CurrentBeforeFirstMask(t *testing.T) {
	var s MaskStore
	if m, ok := s.Current(); ok || m != nil {
		t.Fatalf("empty store returned (%v, %v), want (nil, false)", m, ok)
	}
}

func TestMaskStore_UpdateAndCurrent(t *testing.T) {
	var s MaskStore
	m := &Mask{Width: 2, Height: 2, Pix: make([]uint8, 4), TimestampNanos: 100}

	if regressed := s.Update(m); regressed {
		t.Errorf("first update reported a regression")
	}

	got, ok := s.Current()
	if !ok || got != m {
		t.Fatalf("Current() = (%v, %v), want the stored mask", got, ok)
	}
}

func TestMaskStore_LastWriteWinsKeepsOlderMask(t *testing.T) {
	var s MaskStore
	newer := &Mask{Width: 1, Height: 1, Pix: []uint8{1}, TimestampNanos: 2000}
	older := &Mask{Width: 1, Height: 1, Pix: []uint8{0}, TimestampNanos: 1000}

	s.Update(newer)
	if regressed := s.Update(older); !regressed {
		t.Errorf("out-of-order update not reported as regression")
	}

	got, _ := s.Current()
	if got != older {
		t.Fatalf("store should keep the last write even when older, got ts=%d", got.TimestampNanos)
	}
	if s.Regressions() != 1 {
		t.Errorf("Regressions() = %d, want 1", s.Regressions())
	}
}

func TestMaskStore_InOrderUpdatesNoRegression(t *testing.T) {
	var s MaskStore
	s.Update(&Mask{TimestampNanos: 100})
	s.Update(&Mask{TimestampNanos: 200})
	s.Update(&Mask{TimestampNanos: 200}) // equal timestamps are not regressions

	if s.Regressions() != 0 {
		t.Fatalf("Regressions() = %d, want 0 for monotonic updates", s.Regressions())
	}
}
