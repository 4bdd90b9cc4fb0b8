// Package stats derives the locality statistics of an indexed trace.
//
// Every function reads the histogram without modifying it and returns a
// series ready to be charted.
package stats

import (
	"errors"
	"sort"

	"github.com/kvtrace/keyloc/internal/index"
	"github.com/kvtrace/keyloc/internal/model"
)

// ErrEmptyHistogram is returned when a statistic is asked of an empty histogram.
var ErrEmptyHistogram = errors.New("histogram is empty")

// keyCounts returns the number of occurrences of every key bucket.
func keyCounts(h *index.Histogram) map[uint64]uint64 {
	counts := make(map[uint64]uint64)
	h.Each(func(_ uint64, keys []uint64) {
		for _, k := range keys {
			counts[k]++
		}
	})
	return counts
}

// AppearanceCDF returns the cumulative share of accesses held by key buckets
// ordered from least to most accessed. X is rank/n with ranks starting at 1.
func AppearanceCDF(h *index.Histogram, md model.Metadata) ([]model.Point, error) {
	if h.Len() == 0 {
		return nil, ErrEmptyHistogram
	}

	counts := keyCounts(h)
	sorted := make([]uint64, 0, len(counts))
	for _, c := range counts {
		sorted = append(sorted, c)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total uint64
	for _, c := range sorted {
		total += c
	}

	n := float64(len(sorted))
	points := make([]model.Point, len(sorted))
	var cum uint64
	for i, c := range sorted {
		cum += c
		points[i] = model.Point{
			X: float64(i+1) / n,
			Y: float64(cum) / float64(total),
		}
	}
	return points, nil
}

// AccessCount returns the occurrence count of every key bucket, ordered by key bucket.
func AccessCount(h *index.Histogram, md model.Metadata) (model.AccessCounts, error) {
	if h.Len() == 0 {
		return model.AccessCounts{}, ErrEmptyHistogram
	}

	counts := keyCounts(h)
	out := model.AccessCounts{Points: make([]model.CountPoint, 0, len(counts))}
	for k, c := range counts {
		out.Points = append(out.Points, model.CountPoint{Value: k, Count: c})
		out.Peak = max(out.Peak, c)
	}
	sort.Slice(out.Points, func(i, j int) bool { return out.Points[i].Value < out.Points[j].Value })
	return out, nil
}

// TimeSeries returns the distinct (time bucket, key bucket) cells, ordered by
// time bucket then key bucket.
func TimeSeries(h *index.Histogram, md model.Metadata) ([]model.Cell, error) {
	if h.Len() == 0 {
		return nil, ErrEmptyHistogram
	}

	var cells []model.Cell
	h.Each(func(t uint64, keys []uint64) {
		sorted := append([]uint64(nil), keys...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		for i, k := range sorted {
			if i > 0 && sorted[i-1] == k {
				continue
			}
			cells = append(cells, model.Cell{Time: t, Key: k})
		}
	})
	return cells, nil
}

// TimeSpan returns how many key buckets span each number of time buckets
// between their first and last occurrence, ordered by span.
func TimeSpan(h *index.Histogram, md model.Metadata) ([]model.CountPoint, error) {
	if h.Len() == 0 {
		return nil, ErrEmptyHistogram
	}

	type bounds struct{ first, last uint64 }
	spans := make(map[uint64]*bounds)
	h.Each(func(t uint64, keys []uint64) {
		for _, k := range keys {
			if b, ok := spans[k]; ok {
				b.last = t
			} else {
				spans[k] = &bounds{first: t, last: t}
			}
		}
	})

	dist := make(map[uint64]uint64)
	for _, b := range spans {
		dist[b.last-b.first]++
	}
	return sortedCounts(dist), nil
}

func sortedCounts(m map[uint64]uint64) []model.CountPoint {
	out := make([]model.CountPoint, 0, len(m))
	for v, c := range m {
		out = append(out, model.CountPoint{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
