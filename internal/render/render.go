// Package render turns statistic charts into files.
package render

import (
	"context"
	"errors"

	"github.com/kvtrace/keyloc/internal/model"
)

// Renderer writes a chart somewhere and reports the artifacts it produced.
type Renderer interface {
	// Render writes the chart and returns the paths of the artifacts written.
	Render(ctx context.Context, chart *model.Chart) ([]string, error)

	// Name returns the name of the renderer.
	Name() string
}

// Flusher is implemented by renderers that batch a run's charts into one artifact.
type Flusher interface {
	Flush() error
}

// Multi fans every chart out to several renderers.
type Multi []Renderer

// Render renders the chart with every renderer in turn and stops at the first failure.
func (m Multi) Render(ctx context.Context, chart *model.Chart) ([]string, error) {
	var artifacts []string
	for _, r := range m {
		paths, err := r.Render(ctx, chart)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, paths...)
	}
	return artifacts, nil
}

// Name returns the name of the renderer.
func (m Multi) Name() string {
	return "multi"
}

// Flush flushes every renderer that batches its output.
func (m Multi) Flush() error {
	var errs []error
	for _, r := range m {
		if f, ok := r.(Flusher); ok {
			errs = append(errs, f.Flush())
		}
	}
	return errors.Join(errs...)
}
