package index

import "sort"

// Histogram maps each time bucket to the key buckets accessed in it, in record
// order with duplicates preserved. Time buckets are kept in ascending order.
type Histogram struct {
	buckets     map[uint64][]uint64
	order       []uint64
	occurrences uint64
}

// NewHistogram returns an empty histogram.
func NewHistogram() *Histogram {
	return &Histogram{buckets: make(map[uint64][]uint64)}
}

// Append records an access to key bucket k in time bucket t.
func (h *Histogram) Append(t, k uint64) {
	keys, ok := h.buckets[t]
	if !ok {
		i := sort.Search(len(h.order), func(i int) bool { return h.order[i] >= t })
		h.order = append(h.order, 0)
		copy(h.order[i+1:], h.order[i:])
		h.order[i] = t
	}
	h.buckets[t] = append(keys, k)
	h.occurrences++
}

// Len returns the number of non-empty time buckets.
func (h *Histogram) Len() int {
	return len(h.order)
}

// Occurrences returns the total number of appended accesses.
func (h *Histogram) Occurrences() uint64 {
	return h.occurrences
}

// First returns the smallest time bucket. ok is false when the histogram is empty.
func (h *Histogram) First() (t uint64, ok bool) {
	if len(h.order) == 0 {
		return 0, false
	}
	return h.order[0], true
}

// Last returns the largest time bucket. ok is false when the histogram is empty.
func (h *Histogram) Last() (t uint64, ok bool) {
	if len(h.order) == 0 {
		return 0, false
	}
	return h.order[len(h.order)-1], true
}

// Each calls fn for every time bucket in ascending order. The keys slice must
// not be modified.
func (h *Histogram) Each(fn func(t uint64, keys []uint64)) {
	for _, t := range h.order {
		fn(t, h.buckets[t])
	}
}

// Keys returns the key buckets recorded for time bucket t.
func (h *Histogram) Keys(t uint64) []uint64 {
	return h.buckets[t]
}
