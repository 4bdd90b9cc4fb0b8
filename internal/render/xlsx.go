package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/kvtrace/keyloc/internal/model"
)

// WorkbookName is the file every run's series are exported to.
const WorkbookName = "keyloc_series.xlsx"

// XLSX exports each chart's raw series to a sheet of one workbook, written on Flush.
type XLSX struct {
	dir string

	mu     sync.Mutex
	file   *excelize.File
	sheets int
}

// NewXLSX creates an XLSX exporter writing to dir.
func NewXLSX(dir string) *XLSX {
	return &XLSX{dir: dir}
}

// Name returns the name of the renderer.
func (x *XLSX) Name() string {
	return "xlsx"
}

// Path returns the workbook location.
func (x *XLSX) Path() string {
	return filepath.Join(x.dir, WorkbookName)
}

// sheetRows bounds the rows of one sheet, header included.
var sheetRows = excelize.TotalRows

// Render writes the chart's series to a sheet named after the statistic.
// Series longer than one sheet continue on sheets suffixed _2, _3 and so on.
func (x *XLSX) Render(ctx context.Context, chart *model.Chart) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.file == nil {
		x.file = excelize.NewFile()
	}
	base := string(chart.Statistic)
	if err := x.dropSheets(base); err != nil {
		return nil, err
	}

	s := seriesOf(chart)
	perSheet := sheetRows - 1
	part := 1
	for start := 0; part == 1 || start < s.n; start += perSheet {
		end := min(start+perSheet, s.n)
		if err := x.writeSheet(sheetName(base, part), s, start, end); err != nil {
			return nil, err
		}
		part++
	}
	if part > 2 {
		log.Warnf("Series %s has %d rows, split over %d sheets", base, s.n, part-1)
	}

	return []string{x.Path()}, nil
}

func sheetName(base string, part int) string {
	if part == 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, part)
}

// dropSheets removes the sheets a previous render of the same statistic left.
func (x *XLSX) dropSheets(base string) error {
	for part := 1; ; part++ {
		name := sheetName(base, part)
		if idx, err := x.file.GetSheetIndex(name); err != nil || idx < 0 {
			return nil
		}
		if err := x.file.DeleteSheet(name); err != nil {
			return fmt.Errorf("replacing sheet %s: %w", name, err)
		}
		x.sheets--
	}
}

func (x *XLSX) writeSheet(name string, s series, start, end int) error {
	if _, err := x.file.NewSheet(name); err != nil {
		return fmt.Errorf("creating sheet %s: %w", name, err)
	}
	sw, err := x.file.NewStreamWriter(name)
	if err != nil {
		return fmt.Errorf("opening sheet %s: %w", name, err)
	}
	if err := sw.SetRow("A1", s.header); err != nil {
		return fmt.Errorf("writing sheet %s: %w", name, err)
	}
	for i := start; i < end; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i-start+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, s.row(i)); err != nil {
			return fmt.Errorf("writing sheet %s: %w", name, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flushing sheet %s: %w", name, err)
	}
	x.sheets++
	return nil
}

// series is a chart's tabular form: a header and n rows produced on demand.
type series struct {
	header []interface{}
	n      int
	row    func(i int) []interface{}
}

func seriesOf(chart *model.Chart) series {
	if chart.Kind == model.ChartCells {
		return series{
			header: []interface{}{chart.XLabel, chart.YLabel},
			n:      len(chart.Cells),
			row: func(i int) []interface{} {
				c := chart.Cells[i]
				return []interface{}{c.Time, c.Key}
			},
		}
	}

	if len(chart.XTicks) == 0 {
		return series{
			header: []interface{}{chart.XLabel, chart.YLabel},
			n:      len(chart.Points),
			row: func(i int) []interface{} {
				pt := chart.Points[i]
				return []interface{}{pt.X, pt.Y}
			},
		}
	}

	labels := make(map[float64]string, len(chart.XTicks))
	for _, t := range chart.XTicks {
		labels[t.Value] = t.Label
	}
	return series{
		header: []interface{}{chart.XLabel, chart.YLabel, "x_tick"},
		n:      len(chart.Points),
		row: func(i int) []interface{} {
			pt := chart.Points[i]
			return []interface{}{pt.X, pt.Y, labels[pt.X]}
		},
	}
}

// Flush saves the workbook and starts a fresh one for the next run.
func (x *XLSX) Flush() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.file == nil {
		return nil
	}
	f := x.file
	x.file = nil
	defer f.Close()

	if x.sheets == 0 {
		return nil
	}
	x.sheets = 0

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := f.SaveAs(x.Path()); err != nil {
		return fmt.Errorf("saving %s: %w", x.Path(), err)
	}
	log.Debugf("Saved series workbook %s", x.Path())
	return nil
}
