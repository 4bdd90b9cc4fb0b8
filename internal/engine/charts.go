package engine

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/kvtrace/keyloc/internal/index"
	"github.com/kvtrace/keyloc/internal/model"
	"github.com/kvtrace/keyloc/internal/stats"
)

// topShare is the least fraction of most accessed key buckets the CDF highlight reports on.
const topShare = 0.1

// chart computes one statistic and lays it out as a chart with a one-line highlight.
func (e *Engine) chart(st model.Statistic, ix *index.Index) (*model.Chart, string, error) {
	h, md := ix.Histogram(), ix.Metadata()
	label := md.BucketingLabel()

	chart := &model.Chart{
		Statistic: st,
		Title:     string(st),
		YLabel:    "count",
	}

	switch st {
	case model.StatAppearanceCDF:
		points, err := stats.AppearanceCDF(h, md)
		if err != nil {
			return nil, "", err
		}
		chart.Kind = model.ChartArea
		chart.XLabel = "key seq. " + label
		chart.YLabel = "percentage"
		chart.XMax, chart.YMax = 1, 1
		chart.Points = points
		return chart, cdfHighlight(points), nil

	case model.StatAccessCount:
		counts, err := stats.AccessCount(h, md)
		if err != nil {
			return nil, "", err
		}
		chart.Kind = model.ChartScatter
		chart.XLabel = "key seq. " + label
		chart.XMax = float64(md.KeyBucketCount)
		chart.YMax = float64(counts.Peak)
		chart.Points = countPoints(counts.Points)
		return chart, fmt.Sprintf("peak of %d accesses in one key bucket", counts.Peak), nil

	case model.StatTimeSeries:
		cells, err := stats.TimeSeries(h, md)
		if err != nil {
			return nil, "", err
		}
		chart.Kind = model.ChartCells
		chart.XLabel = "time. " + label
		chart.YLabel = "key seq"
		chart.XMax = float64(md.TSBucketCount)
		chart.YMax = float64(md.KeyBucketCount)
		chart.Cells = cells
		return chart, fmt.Sprintf("%d of %d cells occupied", len(cells), md.TSBucketCount*md.KeyBucketCount), nil

	case model.StatReusePeriod:
		reuse, err := stats.ReusePeriod(h, md)
		if err != nil {
			return nil, "", err
		}
		chart.Kind = model.ChartLine
		chart.XLabel = "time. " + label
		chart.XMax = float64(len(reuse.Boundaries) - 1)
		chart.XTicks = make([]model.Tick, len(reuse.Boundaries))
		for i, b := range reuse.Boundaries {
			chart.XTicks[i] = model.Tick{Value: float64(i), Label: strconv.FormatUint(b, 10)}
		}
		chart.Points = countPoints(reuse.Buckets)
		chart.YMax = maxY(chart.Points) + 1
		return chart, reuseHighlight(reuse), nil

	case model.StatLocalityOverTime:
		window := stats.LocalityWindow(e.cfg.Analysis.LocalityWindowSec, md)
		log.Infof("Locality window is %d time buckets", window)
		points, err := stats.LocalityOverTime(h, md, e.cfg.Analysis.LocalityWindowSec)
		if err != nil {
			return nil, "", err
		}
		chart.Kind = model.ChartLine
		chart.XLabel = "time. " + label
		chart.YLabel = "unique ratio"
		chart.XMax = float64(md.TSBucketCount)
		chart.YMax = 1
		chart.Points = points
		return chart, localityHighlight(points, window), nil

	case model.StatTimeSpan:
		spans, err := stats.TimeSpan(h, md)
		if err != nil {
			return nil, "", err
		}
		chart.Kind = model.ChartArea
		chart.XLabel = "key time span. " + label
		chart.Points = countPoints(spans)
		chart.XMax = float64(spans[len(spans)-1].Value) + 1
		chart.YMax = maxY(chart.Points) + 1
		return chart, spanHighlight(spans), nil

	default:
		return nil, "", fmt.Errorf("unknown statistic %q", st)
	}
}

func countPoints(counts []model.CountPoint) []model.Point {
	points := make([]model.Point, len(counts))
	for i, c := range counts {
		points[i] = model.Point{X: float64(c.Value), Y: float64(c.Count)}
	}
	return points
}

func maxY(points []model.Point) float64 {
	var m float64
	for _, p := range points {
		m = max(m, p.Y)
	}
	return m
}

// cdfHighlight reports the share of accesses taken by the most accessed key
// buckets, the smallest tail covering at least topShare of them.
func cdfHighlight(points []model.Point) string {
	var x, y float64
	for _, p := range points {
		if p.X > 1-topShare {
			break
		}
		x, y = p.X, p.Y
	}
	return fmt.Sprintf("top %.1f%% of key buckets take %.1f%% of accesses", (1-x)*100, (1-y)*100)
}

func reuseHighlight(reuse model.ReuseHistogram) string {
	total := reuse.Total()
	if total == 0 {
		return "no key bucket was reused"
	}
	best := reuse.Buckets[0]
	for _, b := range reuse.Buckets[1:] {
		if b.Count > best.Count {
			best = b
		}
	}
	return fmt.Sprintf("%d of %d reuses within [%d, %d) seconds",
		best.Count, total, reuse.Boundaries[best.Value-1], reuse.Boundaries[best.Value])
}

func localityHighlight(points []model.Point, window uint64) string {
	if len(points) == 0 {
		return fmt.Sprintf("trace shorter than the %d bucket window", window)
	}
	var sum float64
	for _, p := range points {
		sum += p.Y
	}
	return fmt.Sprintf("mean unique ratio %.3f over %d windows", sum/float64(len(points)), len(points))
}

func spanHighlight(spans []model.CountPoint) string {
	var total, single uint64
	for _, s := range spans {
		total += s.Count
		if s.Value == 0 {
			single = s.Count
		}
	}
	return fmt.Sprintf("%d of %d key buckets seen in a single time bucket", single, total)
}
