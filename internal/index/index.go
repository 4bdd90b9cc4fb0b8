// Package index builds the bucketed access histogram of a trace in two passes.
//
// The first pass collects the distinct keys, the timestamp range and the
// sample count of the target table. Keys are then sorted byte-lexicographically
// and numbered densely, the bucketing parameters are derived, and the second
// pass fills the histogram.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kvtrace/keyloc/internal/bucket"
	"github.com/kvtrace/keyloc/internal/model"
	"github.com/kvtrace/keyloc/internal/reader"
)

var (
	// ErrNoMatchingRecords is returned when no record belongs to the target table.
	ErrNoMatchingRecords = errors.New("no records match the target table")

	// ErrUnknownKey is returned when the second pass meets a key the first pass did not see.
	ErrUnknownKey = errors.New("key not seen in first pass")

	// ErrTimestampOutOfRange is returned when the second pass meets a timestamp
	// outside the range observed by the first pass.
	ErrTimestampOutOfRange = errors.New("timestamp outside first pass range")

	// ErrSampleCountMismatch is returned when the passes see different numbers of records.
	ErrSampleCountMismatch = errors.New("sample count differs between passes")
)

// Options controls which records are indexed and how finely.
type Options struct {
	TargetTableID       uint64
	MaxTimestampBuckets uint64
	MaxKeyBuckets       uint64
}

// Index is the result of indexing a trace. It is read-only once built.
type Index struct {
	histogram *Histogram
	metadata  model.Metadata
	params    bucket.Params
	keyIDs    map[string]uint64
}

type firstPass struct {
	keys    map[string]struct{}
	minTS   uint64
	maxTS   uint64
	samples uint64
}

// Build scans src twice and returns the populated index.
func Build(ctx context.Context, src reader.Source, opts Options) (*Index, error) {
	fp, err := scanFirst(ctx, src, opts.TargetTableID)
	if err != nil {
		return nil, err
	}

	keyIDs := assignIdentities(fp.keys)

	params, err := bucket.NewParams(fp.minTS, fp.maxTS, uint64(len(keyIDs)), opts.MaxTimestampBuckets, opts.MaxKeyBuckets)
	if err != nil {
		return nil, fmt.Errorf("deriving bucket parameters: %w", err)
	}

	h := NewHistogram()
	var samples uint64
	err = src.Scan(ctx, func(r model.Record) error {
		if r.TableID != opts.TargetTableID {
			return nil
		}
		id, ok := keyIDs[string(r.Key)]
		if !ok {
			return fmt.Errorf("%w: %x", ErrUnknownKey, r.Key)
		}
		if r.Timestamp < fp.minTS || r.Timestamp > fp.maxTS {
			return fmt.Errorf("%w: %d not in [%d, %d]", ErrTimestampOutOfRange, r.Timestamp, fp.minTS, fp.maxTS)
		}
		h.Append(params.TimeBucket(r.Timestamp), params.KeyBucket(id))
		samples++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("building histogram from %s: %w", src.Name(), err)
	}
	if samples != fp.samples {
		return nil, fmt.Errorf("%w: first pass %d, second pass %d", ErrSampleCountMismatch, fp.samples, samples)
	}

	return &Index{
		histogram: h,
		params:    params,
		keyIDs:    keyIDs,
		metadata: model.Metadata{
			SampleCount:    fp.samples,
			KeySeqCount:    uint64(len(keyIDs)),
			TSBucketCount:  params.TSBucketCount,
			TSBucketSize:   params.TSBucketSize,
			KeyBucketCount: params.KeyBucketCount,
			KeyBucketSize:  params.KeyBucketSize,
			MinTimestamp:   fp.minTS,
			MaxTimestamp:   fp.maxTS,
		},
	}, nil
}

func scanFirst(ctx context.Context, src reader.Source, tableID uint64) (*firstPass, error) {
	fp := &firstPass{
		keys:  make(map[string]struct{}),
		minTS: math.MaxUint64,
	}
	err := src.Scan(ctx, func(r model.Record) error {
		if r.TableID != tableID {
			return nil
		}
		fp.keys[string(r.Key)] = struct{}{}
		fp.minTS = min(fp.minTS, r.Timestamp)
		fp.maxTS = max(fp.maxTS, r.Timestamp)
		fp.samples++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", src.Name(), err)
	}
	if fp.samples == 0 {
		return nil, fmt.Errorf("%w: table %d in %s", ErrNoMatchingRecords, tableID, src.Name())
	}
	return fp, nil
}

// assignIdentities numbers the distinct keys 0..n-1 in byte-lexicographic order.
func assignIdentities(keys map[string]struct{}) map[string]uint64 {
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	// String comparison is bytewise
	sort.Strings(sorted)

	ids := make(map[string]uint64, len(sorted))
	for i, k := range sorted {
		ids[k] = uint64(i)
	}
	return ids
}

// Histogram returns the access histogram.
func (ix *Index) Histogram() *Histogram {
	return ix.histogram
}

// Metadata returns the run summary.
func (ix *Index) Metadata() model.Metadata {
	return ix.metadata
}

// Params returns the bucketing parameters.
func (ix *Index) Params() bucket.Params {
	return ix.params
}

// KeyID returns the dense identity of key.
func (ix *Index) KeyID(key []byte) (uint64, bool) {
	id, ok := ix.keyIDs[string(key)]
	return id, ok
}
