package reader

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// CompressionType represents the compression format of a trace stream.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionGzip
	CompressionBzip2
	CompressionXZ
	CompressionZstd
)

// String returns the string representation of CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionXZ:
		return "xz"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// Magic byte signatures for compression detection
var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte{0x42, 0x5a, 0x68}
	xzMagic    = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// DetectCompression identifies the compression format from a stream header.
func DetectCompression(header []byte) CompressionType {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(header, bzip2Magic):
		return CompressionBzip2
	case bytes.HasPrefix(header, xzMagic):
		return CompressionXZ
	case bytes.HasPrefix(header, zstdMagic):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

func parseCompression(name string) (CompressionType, bool) {
	switch name {
	case "none":
		return CompressionNone, true
	case "gzip":
		return CompressionGzip, true
	case "bzip2":
		return CompressionBzip2, true
	case "xz":
		return CompressionXZ, true
	case "zstd":
		return CompressionZstd, true
	default:
		return CompressionNone, false
	}
}

// decompress wraps r in a decompressor. mode is "auto" or one of the
// CompressionType names. Closing the result closes r.
func decompress(r io.ReadCloser, mode string) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	ct, explicit := parseCompression(mode)
	if !explicit {
		if mode != "auto" && mode != "" {
			r.Close()
			return nil, fmt.Errorf("unknown compression: %s", mode)
		}
		// XZ has the longest magic (6 bytes)
		header, err := br.Peek(len(xzMagic))
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			r.Close()
			return nil, fmt.Errorf("detecting compression: %w", err)
		}
		ct = DetectCompression(header)
	}

	var dec io.Reader
	var closeDec func() error

	switch ct {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		dec, closeDec = gz, gz.Close
	case CompressionBzip2:
		dec = bzip2.NewReader(br)
	case CompressionXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		dec = xr
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		dec, closeDec = zr, func() error { zr.Close(); return nil }
	default:
		dec = br
	}

	return &decompressReader{Reader: dec, closeDec: closeDec, underlying: r}, nil
}

type decompressReader struct {
	io.Reader
	closeDec   func() error
	underlying io.Closer
}

func (d *decompressReader) Close() error {
	var decErr error
	if d.closeDec != nil {
		decErr = d.closeDec()
	}
	if err := d.underlying.Close(); err != nil {
		return err
	}
	return decErr
}
