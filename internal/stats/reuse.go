package stats

import (
	"sort"

	"github.com/kvtrace/keyloc/internal/index"
	"github.com/kvtrace/keyloc/internal/model"
)

// maxFixedBoundary is the last doubling boundary; larger gaps share the overflow bucket.
const maxFixedBoundary = 4096

// ReuseBoundaries returns 0, 2, 4, ..., 4096 followed by the overflow
// boundary max(4096, maxGap)+1.
func ReuseBoundaries(maxGap uint64) []uint64 {
	boundaries := []uint64{0}
	for b := uint64(2); b <= maxFixedBoundary; b *= 2 {
		boundaries = append(boundaries, b)
	}
	return append(boundaries, max(maxFixedBoundary, maxGap)+1)
}

// ReuseBucket returns the index of the first boundary strictly greater than gap.
// Bucket i covers [boundaries[i-1], boundaries[i]).
func ReuseBucket(boundaries []uint64, gap uint64) int {
	return sort.Search(len(boundaries), func(i int) bool { return boundaries[i] > gap })
}

// ReusePeriod classifies the gap in seconds between consecutive occurrences
// of every key bucket. Every bucket from 1 to the overflow bucket is returned,
// empty ones included.
func ReusePeriod(h *index.Histogram, md model.Metadata) (model.ReuseHistogram, error) {
	first, ok := h.First()
	if !ok {
		return model.ReuseHistogram{}, ErrEmptyHistogram
	}
	last, _ := h.Last()

	boundaries := ReuseBoundaries((last - first) * md.TSBucketSize)
	counts := make([]uint64, len(boundaries))
	lastSeen := make(map[uint64]uint64)

	h.Each(func(t uint64, keys []uint64) {
		for _, k := range keys {
			if prev, ok := lastSeen[k]; ok {
				counts[ReuseBucket(boundaries, (t-prev)*md.TSBucketSize)]++
			}
			lastSeen[k] = t
		}
	})

	out := model.ReuseHistogram{
		Boundaries: boundaries,
		Buckets:    make([]model.CountPoint, 0, len(boundaries)-1),
	}
	for i := 1; i < len(boundaries); i++ {
		out.Buckets = append(out.Buckets, model.CountPoint{Value: uint64(i), Count: counts[i]})
	}
	return out, nil
}
