// Package fusion correlates two asynchronous perception streams, drivable-area
// masks and point-of-interest detections, and decides per POI whether it lies
// inside the currently estimated drivable area.
//
// The package owns the temporal synchronization (timestamp-keyed buffering,
// tolerance-window matching, staleness eviction) and the spatial sampling rule
// (neighborhood confidence over a threshold). Transports, persistence and
// visualisation live elsewhere and attach through the small interfaces on
// Engine.
package fusion
