package model

// Point is a point of a continuous series.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// CountPoint pairs an integer value (a key bucket, a span, a bucket index) with a count.
type CountPoint struct {
	Value uint64 `json:"value"`
	Count uint64 `json:"count"`
}

// Cell marks a key bucket as present in a time bucket.
type Cell struct {
	Time uint64 `json:"time"`
	Key  uint64 `json:"key"`
}

// AccessCounts is the per key bucket occurrence count, ordered by key bucket.
type AccessCounts struct {
	Points []CountPoint `json:"points"`
	Peak   uint64       `json:"peak"`
}

// ReuseHistogram counts inter-access gaps per geometric boundary bucket.
// Bucket i covers [Boundaries[i-1], Boundaries[i]) seconds.
type ReuseHistogram struct {
	Boundaries []uint64     `json:"boundaries"`
	Buckets    []CountPoint `json:"buckets"`
}

// Total returns the number of classified gaps.
func (r ReuseHistogram) Total() uint64 {
	var total uint64
	for _, b := range r.Buckets {
		total += b.Count
	}
	return total
}

// Statistic names one of the analyses keyloc can run.
type Statistic string

const (
	StatAppearanceCDF    Statistic = "key_appearance_cdf"
	StatAccessCount      Statistic = "key_access_count"
	StatTimeSeries       Statistic = "key_time_series"
	StatReusePeriod      Statistic = "key_reuse_period"
	StatLocalityOverTime Statistic = "key_uniqueness_over_time"
	StatTimeSpan         Statistic = "key_time_span_distribution"
)

// Statistics lists every statistic in the order runs compute them.
var Statistics = []Statistic{
	StatAppearanceCDF,
	StatAccessCount,
	StatTimeSeries,
	StatReusePeriod,
	StatLocalityOverTime,
	StatTimeSpan,
}

// FileName returns the fixed artifact name for a statistic.
func (s Statistic) FileName() string {
	return string(s) + ".png"
}
