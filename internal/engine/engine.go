// Package engine runs one locality analysis of a trace from indexing to rendered charts.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/index"
	"github.com/kvtrace/keyloc/internal/model"
	"github.com/kvtrace/keyloc/internal/reader"
	"github.com/kvtrace/keyloc/internal/render"
)

// ErrNoTargetTable is returned when the configuration names no target table.
var ErrNoTargetTable = errors.New("target table id is not set")

// Engine indexes a trace source and computes the enabled statistics.
type Engine struct {
	cfg      *config.Config
	source   reader.Source
	renderer render.Renderer
}

// New creates a new Engine. A nil renderer computes the statistics without
// writing any artifact.
func New(cfg *config.Config, src reader.Source, renderer render.Renderer) *Engine {
	return &Engine{
		cfg:      cfg,
		source:   src,
		renderer: renderer,
	}
}

// Source returns the trace source the engine reads.
func (e *Engine) Source() reader.Source {
	return e.source
}

// Analyze runs the complete analysis and returns its report.
func (e *Engine) Analyze(ctx context.Context) (*model.Report, error) {
	start := time.Now()

	if e.cfg.Analysis.TargetTableID == nil {
		return nil, ErrNoTargetTable
	}
	tableID := *e.cfg.Analysis.TargetTableID

	ix, err := index.Build(ctx, e.source, index.Options{
		TargetTableID:       tableID,
		MaxTimestampBuckets: e.cfg.Analysis.MaxTimestampBuckets,
		MaxKeyBuckets:       e.cfg.Analysis.MaxKeyBuckets,
	})
	if err != nil {
		return nil, fmt.Errorf("indexing trace: %w", err)
	}

	md := ix.Metadata()
	log.Infof("Indexed %d samples, %d keys of table %d from %s", md.SampleCount, md.KeySeqCount, tableID, e.source.Name())

	report := &model.Report{
		ReqID:         generateReqID(),
		ReportType:    "adhoc",
		Source:        e.source.Name(),
		TargetTableID: tableID,
		Metadata:      md,
	}

	for _, st := range e.cfg.Analysis.Statistics.Enabled() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chart, highlight, err := e.chart(st, ix)
		if err != nil {
			return nil, fmt.Errorf("computing %s: %w", st, err)
		}

		result := model.StatisticResult{
			Statistic: st,
			Points:    len(chart.Points) + len(chart.Cells),
			Highlight: highlight,
		}
		if e.renderer != nil {
			result.Artifacts, err = e.renderer.Render(ctx, chart)
			if err != nil {
				return nil, fmt.Errorf("rendering %s: %w", st, err)
			}
		}
		log.Debugf("Computed %s: %d points", st, result.Points)
		report.Statistics = append(report.Statistics, result)
	}

	if f, ok := e.renderer.(render.Flusher); ok {
		if err := f.Flush(); err != nil {
			return nil, fmt.Errorf("flushing %s renderer: %w", e.renderer.Name(), err)
		}
	}

	report.Timestamp = time.Now()
	report.Duration = report.Timestamp.Sub(start)
	return report, nil
}

// generateReqID creates a unique request ID for tracking.
func generateReqID() string {
	return "keyloc-" + uuid.NewString()
}
