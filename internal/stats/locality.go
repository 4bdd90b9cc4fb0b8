package stats

import (
	"sort"

	"github.com/kvtrace/keyloc/internal/index"
	"github.com/kvtrace/keyloc/internal/model"
)

// LocalityWindow converts a window length in seconds to time buckets, at least one.
func LocalityWindow(windowSec uint64, md model.Metadata) uint64 {
	if md.TSBucketSize == 0 {
		return 1
	}
	return max(1, windowSec/md.TSBucketSize)
}

// LocalityOverTime slides a window of windowSec seconds over the time buckets
// and, at every time bucket once the window is full, records the share of
// accesses in the window made by key buckets accessed exactly once in it.
func LocalityOverTime(h *index.Histogram, md model.Metadata, windowSec uint64) ([]model.Point, error) {
	if h.Len() == 0 {
		return nil, ErrEmptyHistogram
	}

	window := LocalityWindow(windowSec, md)
	inWindow := make(map[uint64][]uint64)
	var points []model.Point

	h.Each(func(t uint64, keys []uint64) {
		for _, k := range keys {
			inWindow[k] = append(inWindow[k], t)
		}
		if t < window-1 {
			return
		}

		var unique, total int
		for k, ts := range inWindow {
			// Keep occurrences newer than t-window
			start := sort.Search(len(ts), func(i int) bool { return t-ts[i] < window })
			if start == len(ts) {
				delete(inWindow, k)
				continue
			}
			ts = ts[start:]
			inWindow[k] = ts
			if len(ts) == 1 {
				unique++
			}
			total += len(ts)
		}
		points = append(points, model.Point{X: float64(t), Y: float64(unique) / float64(total)})
	})
	return points, nil
}
