package fusion

import "time"

// POIBuffer holds detections that have not yet been matched to a mask,
// bucketed by their capture timestamp. Insertion order within a bucket is
// irrelevant. Entries leave the buffer exactly once: either drained by a
// matching cycle or evicted as stale.
//
// Like MaskStore, the buffer is engine-serialized and carries no lock of its
// own.
type POIBuffer struct {
	buckets map[int64][]POI
	size    int
}

// NewPOIBuffer returns an empty buffer.
func NewPOIBuffer() *POIBuffer {
	return &POIBuffer{buckets: make(map[int64][]POI)}
}

// Insert appends p to the bucket for its timestamp.
func (b *POIBuffer) Insert(p POI) {
	b.buckets[p.TimestampNanos] = append(b.buckets[p.TimestampNanos], p)
	b.size++
}

// EvictStale removes every bucket whose age (nowNanos - key) exceeds maxAge
// and returns the number of POIs dropped. The boundary is exclusive: a bucket
// exactly maxAge old survives.
func (b *POIBuffer) EvictStale(nowNanos int64, maxAge time.Duration) int {
	evicted := 0
	maxAgeNanos := maxAge.Nanoseconds()
	for ts, bucket := range b.buckets {
		if nowNanos-ts > maxAgeNanos {
			evicted += len(bucket)
			delete(b.buckets, ts)
		}
	}
	b.size -= evicted
	return evicted
}

// DrainMatching removes and returns every buffered POI whose timestamp lies
// within tol of refNanos, boundary inclusive. Order across buckets is
// unspecified. Repeated calls never return the same POI twice.
func (b *POIBuffer) DrainMatching(refNanos int64, tol time.Duration) []POI {
	tolNanos := tol.Nanoseconds()
	var matched []POI
	for ts, bucket := range b.buckets {
		delta := ts - refNanos
		if delta < 0 {
			delta = -delta
		}
		if delta <= tolNanos {
			matched = append(matched, bucket...)
			delete(b.buckets, ts)
		}
	}
	b.size -= len(matched)
	return matched
}

// Len returns the number of buffered POIs across all buckets.
func (b *POIBuffer) Len() int {
	return b.size
}
