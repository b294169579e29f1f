package fusion

// Mask is a drivable-area grid covering one camera frame. Pixels are stored
// row-major, one byte each: 0 means not drivable, any value above 0 counts as
// drivable evidence. A Mask is immutable once built; the store swaps whole
// instances.
type Mask struct {
	Width          int
	Height         int
	Pix            []uint8 // row-major, len == Width*Height
	TimestampNanos int64   // capture time of the source frame
}

// At returns the pixel value at (x, y). Callers must bounds-check first.
func (m *Mask) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

// InBounds reports whether (x, y) addresses a pixel of the mask.
func (m *Mask) InBounds(x, y int) bool {
	return x >= 0 && x < m.Width && y >= 0 && y < m.Height
}

// POI is a single point-of-interest detection in image pixel coordinates.
// Raw carries the original wire payload so passing detections can be
// forwarded downstream unmodified. A POI is immutable once created.
type POI struct {
	X              float64
	Y              float64
	Category       string
	TimestampNanos int64
	Raw            []byte
}

// Result is the classification outcome for one POI against one mask. It is
// ephemeral: produced inside a fusion cycle, handed to sinks, never stored by
// the engine itself.
type Result struct {
	POI        POI
	Drivable   bool
	Confidence float64
}

// CycleSummary describes one fusion cycle. Counts are computed over the full
// classified batch, independent of whether any visualisation consumer was
// attached.
type CycleSummary struct {
	CycleIndex         uint64 `json:"cycle_index"`
	MaskTimestampNanos int64  `json:"mask_timestamp_ns"`
	Drained            int    `json:"drained"`
	Classified         int    `json:"classified"`
	Passed             int    `json:"passed"`
	Evicted            int    `json:"evicted"`
	DurationMicros     int64  `json:"duration_us"`
}
