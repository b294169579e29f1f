// Package visualiser streams per-cycle fusion results to debugging clients
// over gRPC. This file defines the wire model a streaming client receives.
package visualiser

import (
	"github.com/banshee-data/drivegate/internal/fusion"
)

// ResultFrame is one fusion cycle's output as delivered to streaming
// clients: the cycle summary counts plus every classified detection.
type ResultFrame struct {
	Camera             string
	CycleIndex         uint64
	MaskTimestampNanos int64
	Drained            int
	Classified         int
	Passed             int
	Evicted            int
	DurationMicros     int64
	Results            []PoiResult
}

// PoiResult is one classified detection within a frame.
type PoiResult struct {
	X              float64
	Y              float64
	Category       string
	TimestampNanos int64
	Drivable       bool
	Confidence     float64

	// Raw is the detection's original wire payload. Populated only for
	// clients that ask for it; it roughly triples the frame size.
	Raw []byte
}

// StreamRequest is the client's subscription. An empty Camera subscribes to
// all cameras.
type StreamRequest struct {
	Camera     string
	IncludeRaw bool
}

// newResultFrame converts one engine cycle into the wire model. Raw payloads
// are carried through; the stream handler strips them per client.
func newResultFrame(camera string, summary fusion.CycleSummary, results []fusion.Result) *ResultFrame {
	frame := &ResultFrame{
		Camera:             camera,
		CycleIndex:         summary.CycleIndex,
		MaskTimestampNanos: summary.MaskTimestampNanos,
		Drained:            summary.Drained,
		Classified:         summary.Classified,
		Passed:             summary.Passed,
		Evicted:            summary.Evicted,
		DurationMicros:     summary.DurationMicros,
		Results:            make([]PoiResult, len(results)),
	}
	for i, r := range results {
		frame.Results[i] = PoiResult{
			X:              r.POI.X,
			Y:              r.POI.Y,
			Category:       r.POI.Category,
			TimestampNanos: r.POI.TimestampNanos,
			Drivable:       r.Drivable,
			Confidence:     r.Confidence,
			Raw:            r.POI.Raw,
		}
	}
	return frame
}

// withoutRaw returns a copy of the frame with original payloads stripped.
func (f *ResultFrame) withoutRaw() *ResultFrame {
	out := *f
	out.Results = make([]PoiResult, len(f.Results))
	for i, r := range f.Results {
		r.Raw = nil
		out.Results[i] = r
	}
	return &out
}
