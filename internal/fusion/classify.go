package fusion

import "math"

const (
	// DefaultNeighborhoodRadius is the half-width in pixels of the square
	// sampling window centered on a POI.
	DefaultNeighborhoodRadius = 5

	// DefaultDrivableThreshold is the minimum neighborhood confidence for a
	// POI to count as inside the drivable area.
	DefaultDrivableThreshold = 0.5
)

// Classifier holds the spatial sampling parameters. The zero value is not
// usable; construct with NewClassifier.
type Classifier struct {
	radius    int
	threshold float64
}

// NewClassifier returns a classifier with the given window radius and
// decision threshold. Non-positive radius and out-of-range thresholds fall
// back to the defaults.
func NewClassifier(radius int, threshold float64) *Classifier {
	if radius <= 0 {
		radius = DefaultNeighborhoodRadius
	}
	if threshold < 0 || threshold > 1 {
		threshold = DefaultDrivableThreshold
	}
	return &Classifier{radius: radius, threshold: threshold}
}

// Classify samples the mask around p and returns whether p lies inside the
// drivable area together with the neighborhood confidence.
//
// The POI coordinate is rounded to the nearest pixel. Coordinates outside
// [0,width) x [0,height) classify as (false, 0) without sampling. Otherwise
// confidence is the fraction of pixels with value > 0 inside the radius-R
// window clipped to mask bounds, and the decision is confidence >= threshold.
func (c *Classifier) Classify(mask *Mask, p POI) (drivable bool, confidence float64) {
	px := int(math.Round(p.X))
	py := int(math.Round(p.Y))
	if !mask.InBounds(px, py) {
		return false, 0
	}

	x0, x1 := clip(px-c.radius, px+c.radius, mask.Width)
	y0, y1 := clip(py-c.radius, py+c.radius, mask.Height)

	total := (x1 - x0 + 1) * (y1 - y0 + 1)
	if total <= 0 {
		return false, 0
	}

	hits := 0
	for y := y0; y <= y1; y++ {
		row := mask.Pix[y*mask.Width : y*mask.Width+mask.Width]
		for x := x0; x <= x1; x++ {
			if row[x] > 0 {
				hits++
			}
		}
	}

	confidence = float64(hits) / float64(total)
	return confidence >= c.threshold, confidence
}

// safeClassify wraps Classify with a per-POI fault boundary: a panic while
// sampling one POI (for example a truncated pixel buffer that slipped past
// the codec) yields (false, 0) for that POI instead of aborting the batch.
func (c *Classifier) safeClassify(mask *Mask, p POI) (drivable bool, confidence float64) {
	defer func() {
		if r := recover(); r != nil {
			diagf("panic classifying POI at (%.1f,%.1f): %v", p.X, p.Y, r)
			drivable, confidence = false, 0
		}
	}()
	return c.Classify(mask, p)
}

// clip narrows [lo,hi] to the valid index range [0,n).
func clip(lo, hi, n int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi
}
