package fusion

// MaskStore holds the single most recently received drivable-area mask.
// Updates are last-write-wins: no ordering check is made against the
// previous mask's timestamp, so out-of-order delivery is stored as-is.
// Absence of a mask is a valid state, not an error.
//
// MaskStore is not safe for concurrent use on its own; the Engine serializes
// every access under its cycle mutex.
type MaskStore struct {
	mask        *Mask
	regressions uint64
}

// Update replaces the stored mask unconditionally. It returns true when the
// new mask's timestamp is older than the one it replaced, which callers may
// count as a delivery-order regression.
func (s *MaskStore) Update(m *Mask) (regressed bool) {
	if s.mask != nil && m.TimestampNanos < s.mask.TimestampNanos {
		s.regressions++
		regressed = true
	}
	s.mask = m
	return regressed
}

// Current returns the latest mask, or ok=false if none has ever arrived.
// The mask is returned by reference; callers must treat it as read-only.
func (s *MaskStore) Current() (*Mask, bool) {
	if s.mask == nil {
		return nil, false
	}
	return s.mask, true
}

// Regressions returns how many updates carried a timestamp older than the
// mask they replaced.
func (s *MaskStore) Regressions() uint64 {
	return s.regressions
}
