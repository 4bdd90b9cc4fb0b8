package reader

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/model"
)

// File reads a trace from one file, or from every file matching a glob
// (rotated traces), in sorted path order.
type File struct {
	pattern     string
	paths       []string
	format      string
	compression string
}

// NewFile resolves cfg.Path once so both passes read the same file set.
func NewFile(cfg *config.InputConfig) (*File, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path is empty")
	}

	paths, err := expandPaths(cfg.Path)
	if err != nil {
		return nil, err
	}

	return &File{
		pattern:     cfg.Path,
		paths:       paths,
		format:      cfg.Format,
		compression: cfg.Compression,
	}, nil
}

func expandPaths(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		info, err := os.Stat(pattern)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", pattern)
		}
		return []string{pattern}, nil
	}

	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern matching failed: %w", err)
	}

	var paths []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		paths = append(paths, match)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no trace files match %q", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}

// Scan decodes every file in order.
func (f *File) Scan(ctx context.Context, fn func(model.Record) error) error {
	for _, path := range f.paths {
		if err := f.scanFile(ctx, path, fn); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) scanFile(ctx context.Context, path string, fn func(model.Record) error) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening trace file: %w", err)
	}

	rc, err := decompress(fh, f.compression)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer rc.Close()

	return decode(ctx, rc, path, f.format, fn)
}

// Name returns the configured path or pattern.
func (f *File) Name() string {
	return f.pattern
}

// Paths returns the resolved files.
func (f *File) Paths() []string {
	return f.paths
}

// Close is a no-op; files are opened per scan.
func (f *File) Close() error {
	return nil
}
