// Package bucket maps raw timestamps and key identities onto a bounded number of buckets.
package bucket

import (
	"errors"
	"fmt"
)

// ErrZeroBuckets is returned when a bucket-count ceiling of zero is requested.
var ErrZeroBuckets = errors.New("bucket count ceiling must be at least 1")

// Params holds the bucketing parameters derived from a complete scan of a trace.
type Params struct {
	MinTimestamp   uint64
	TSBucketSize   uint64
	TSBucketCount  uint64
	KeyBucketSize  uint64
	KeyBucketCount uint64
}

// NewParams derives bucket sizes and counts from the observed timestamp range
// and the number of distinct keys. Counts never exceed the requested ceilings
// and sizes are never zero.
func NewParams(minTS, maxTS, keySeqCount, maxTSBuckets, maxKeyBuckets uint64) (Params, error) {
	if maxTSBuckets == 0 || maxKeyBuckets == 0 {
		return Params{}, ErrZeroBuckets
	}
	if maxTS < minTS {
		return Params{}, fmt.Errorf("invalid timestamp range [%d, %d]", minTS, maxTS)
	}

	span := maxTS - minTS
	tsSize := span/maxTSBuckets + 1

	keySize := ceilDiv(keySeqCount, maxKeyBuckets)
	if keySize == 0 {
		keySize = 1
	}

	return Params{
		MinTimestamp:   minTS,
		TSBucketSize:   tsSize,
		TSBucketCount:  span/tsSize + 1,
		KeyBucketSize:  keySize,
		KeyBucketCount: ceilDiv(keySeqCount, keySize),
	}, nil
}

// TimeBucket returns the time bucket of ts. It panics if ts precedes minTS or size is zero.
func TimeBucket(ts, minTS, size uint64) uint64 {
	if ts < minTS {
		panic(fmt.Sprintf("bucket: timestamp %d precedes range start %d", ts, minTS))
	}
	if size == 0 {
		panic("bucket: zero time bucket size")
	}
	return (ts - minTS) / size
}

// KeyBucket returns the key bucket of a key identity. It panics if size is zero.
func KeyBucket(id, size uint64) uint64 {
	if size == 0 {
		panic("bucket: zero key bucket size")
	}
	return id / size
}

// TimeBucket returns the time bucket of ts under p.
func (p Params) TimeBucket(ts uint64) uint64 {
	return TimeBucket(ts, p.MinTimestamp, p.TSBucketSize)
}

// KeyBucket returns the key bucket of a key identity under p.
func (p Params) KeyBucket(id uint64) uint64 {
	return KeyBucket(id, p.KeyBucketSize)
}

func ceilDiv(a, b uint64) uint64 {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
