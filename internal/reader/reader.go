// Package reader provides the trace sources keyloc ingests records from.
//
// Every Source can be scanned more than once: the indexer reads a trace twice,
// first to derive the bucketing parameters and then to build the histogram.
package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kvtrace/keyloc/internal/config"
	"github.com/kvtrace/keyloc/internal/model"
)

// ErrMalformedRecord is returned when a record cannot be decoded.
var ErrMalformedRecord = errors.New("malformed trace record")

// Source is a re-scannable stream of trace records.
type Source interface {
	// Scan calls fn for every record in trace order. It stops at the first
	// error returned by fn or by decoding and returns it.
	Scan(ctx context.Context, fn func(model.Record) error) error

	// Name describes the source for logs and reports.
	Name() string

	// Close releases any resources held by the source.
	Close() error
}

// New creates the Source described by cfg. tableID is bound into queries of
// sources that can filter server-side.
func New(ctx context.Context, cfg *config.InputConfig, tableID uint64) (Source, error) {
	switch cfg.Type {
	case config.InputFile, "":
		if cfg.Path == "-" {
			return NewStdin(ctx, cfg)
		}
		return NewFile(cfg)
	case config.InputS3:
		return NewS3(ctx, cfg)
	case config.InputPostgres:
		return NewPostgres(&cfg.Database, tableID)
	default:
		return nil, fmt.Errorf("unknown input type: %s", cfg.Type)
	}
}

// NewStdin buffers every record of standard input in memory, since stdin
// cannot be read twice.
func NewStdin(ctx context.Context, cfg *config.InputConfig) (*Memory, error) {
	rc, err := decompress(os.Stdin, cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("opening stdin: %w", err)
	}
	defer rc.Close()

	var records []model.Record
	err = decode(ctx, rc, "stdin", cfg.Format, func(r model.Record) error {
		records = append(records, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewMemory("stdin", records), nil
}

func malformed(source string, line int, format string, args ...any) error {
	return fmt.Errorf("%s:%d: %w: %s", source, line, ErrMalformedRecord, fmt.Sprintf(format, args...))
}

func trimPadding(s string) string {
	return strings.TrimRight(s, "=")
}
