// Package model defines the core data structures used by keyloc.
package model

import (
	"fmt"
	"strings"
)

// Record is one observed access from a trace.
type Record struct {
	// TableID identifies the logical table the access belongs to.
	TableID uint64 `json:"table_id"`

	// Key is the decoded key payload.
	Key []byte `json:"key"`

	// Timestamp is the access time in seconds.
	Timestamp uint64 `json:"timestamp"`
}

// Metadata is a snapshot of the summary counts of one analysis run.
type Metadata struct {
	// SampleCount is the number of records matching the target table, duplicates included.
	SampleCount uint64 `json:"sample_count"`

	// KeySeqCount is the number of distinct keys.
	KeySeqCount uint64 `json:"key_seq_count"`

	// TSBucketCount is the number of time buckets covering the observed range.
	TSBucketCount uint64 `json:"ts_bucket_num"`

	// TSBucketSize is the width of a time bucket in seconds.
	TSBucketSize uint64 `json:"ts_bucket_size_sec"`

	// KeyBucketCount is the number of key buckets covering all key identities.
	KeyBucketCount uint64 `json:"key_bucket_num"`

	// KeyBucketSize is the number of key identities per key bucket.
	KeyBucketSize uint64 `json:"key_bucket_size"`

	// MinTimestamp and MaxTimestamp bound the observed timestamps.
	MinTimestamp uint64 `json:"min_timestamp"`
	MaxTimestamp uint64 `json:"max_timestamp"`
}

// String renders the metadata as the line-oriented summary printed after every run.
func (m Metadata) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("sample_count: %d\n", m.SampleCount))
	sb.WriteString(fmt.Sprintf("key_seq_count: %d\n", m.KeySeqCount))
	sb.WriteString(fmt.Sprintf("ts_bucket_num: %d\n", m.TSBucketCount))
	sb.WriteString(fmt.Sprintf("ts_bucket_size_sec: %d\n", m.TSBucketSize))
	sb.WriteString(fmt.Sprintf("key_bucket_num: %d\n", m.KeyBucketCount))
	sb.WriteString(fmt.Sprintf("key_bucket_size: %d\n", m.KeyBucketSize))
	return sb.String()
}

// BucketingLabel returns the "tsSize-tsCount;keySize-keyCount" text used in chart axis descriptions.
func (m Metadata) BucketingLabel() string {
	return fmt.Sprintf("%d-%d;%d-%d", m.TSBucketSize, m.TSBucketCount, m.KeyBucketSize, m.KeyBucketCount)
}
