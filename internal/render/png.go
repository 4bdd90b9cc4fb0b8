package render

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/kvtrace/keyloc/internal/model"
)

// dpi is the resolution gonum's image canvas renders at.
const dpi = 96

var (
	red       = color.RGBA{R: 255, A: 255}
	redFill   = color.RGBA{R: 255, A: 51}
	green     = color.RGBA{G: 128, A: 255}
	glyphSize = vg.Length(2) * vg.Inch / dpi
)

// PNG draws each chart to <dir>/<statistic>.png.
type PNG struct {
	dir    string
	width  vg.Length
	height vg.Length
}

// NewPNG creates a PNG renderer producing width x height pixel images.
func NewPNG(dir string, width, height int) *PNG {
	return &PNG{
		dir:    dir,
		width:  pixels(float64(width)),
		height: pixels(float64(height)),
	}
}

func pixels(px float64) vg.Length {
	return vg.Length(px) * vg.Inch / dpi
}

// Name returns the name of the renderer.
func (r *PNG) Name() string {
	return "png"
}

// Render draws the chart and saves it.
func (r *PNG) Render(ctx context.Context, chart *model.Chart) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := r.plot(chart)
	if err != nil {
		return nil, fmt.Errorf("building %s plot: %w", chart.Statistic, err)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(r.dir, chart.Statistic.FileName())
	if err := p.Save(r.width, r.height, path); err != nil {
		return nil, fmt.Errorf("saving %s: %w", path, err)
	}

	log.Debugf("Rendered %s to %s", chart.Statistic, path)
	return []string{path}, nil
}

func (r *PNG) plot(chart *model.Chart) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = chart.Title
	p.X.Label.Text = chart.XLabel
	p.Y.Label.Text = chart.YLabel

	// Add only widens these, so an empty series still gets a valid range
	p.X.Min, p.X.Max = 0, max(chart.XMax, 1)
	p.Y.Min, p.Y.Max = 0, max(chart.YMax, 1)
	if len(chart.XTicks) > 0 {
		ticks := make([]plot.Tick, len(chart.XTicks))
		for i, t := range chart.XTicks {
			ticks[i] = plot.Tick{Value: t.Value, Label: t.Label}
		}
		p.X.Tick.Marker = plot.ConstantTicks(ticks)
	}

	switch chart.Kind {
	case model.ChartArea, model.ChartLine:
		if len(chart.Points) == 0 {
			return p, nil
		}
		line, err := plotter.NewLine(xys(chart.Points))
		if err != nil {
			return nil, err
		}
		line.LineStyle.Color = red
		if chart.Kind == model.ChartArea {
			line.FillColor = redFill
		}
		p.Add(line)

	case model.ChartScatter:
		if len(chart.Points) == 0 {
			return p, nil
		}
		sc, err := plotter.NewScatter(xys(chart.Points))
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle = draw.GlyphStyle{Color: green, Radius: glyphSize, Shape: draw.CircleGlyph{}}
		p.Add(sc)

	case model.ChartCells:
		if len(chart.Cells) == 0 {
			return p, nil
		}
		pts := make(plotter.XYs, len(chart.Cells))
		for i, c := range chart.Cells {
			pts[i] = plotter.XY{X: float64(c.Time) + 0.5, Y: float64(c.Key) + 0.5}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle = draw.GlyphStyle{Color: green, Radius: r.cellRadius(chart), Shape: draw.BoxGlyph{}}
		p.Add(sc)

	default:
		return nil, fmt.Errorf("unknown chart kind %q", chart.Kind)
	}
	return p, nil
}

// cellRadius sizes a cell glyph to half a grid cell, never below one pixel.
func (r *PNG) cellRadius(chart *model.Chart) vg.Length {
	if chart.XMax <= 0 || chart.YMax <= 0 {
		return glyphSize
	}
	w := r.width / vg.Length(chart.XMax)
	h := r.height / vg.Length(chart.YMax)
	return max(min(w, h)/2, pixels(1))
}

func xys(points []model.Point) plotter.XYs {
	out := make(plotter.XYs, len(points))
	for i, pt := range points {
		out[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}
	return out
}
