package reader

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/kvtrace/keyloc/internal/model"
)

const (
	// maxLineSize bounds a single JSON-lines record.
	maxLineSize = 16 * 1024 * 1024

	// ctxCheckInterval is how many records are decoded between context checks.
	ctxCheckInterval = 1 << 14
)

// decode parses r in the given format and calls fn for every record.
func decode(ctx context.Context, r io.Reader, source, format string, fn func(model.Record) error) error {
	switch format {
	case "csv", "":
		return decodeCSV(ctx, r, source, fn)
	case "jsonl":
		return decodeJSONL(ctx, r, source, fn)
	default:
		return fmt.Errorf("unknown input format: %s", format)
	}
}

// decodeCSV reads header-less "table_id,base64_key,timestamp" rows.
func decodeCSV(ctx context.Context, r io.Reader, source string, fn func(model.Record) error) error {
	cr := csv.NewReader(r)
	// Trailing columns are ignored
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return malformed(source, parseErr.Line, "%v", parseErr.Err)
			}
			return fmt.Errorf("reading %s: %w", source, err)
		}
		line, _ := cr.FieldPos(0)
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if len(row) < 3 {
			return malformed(source, line, "expected 3 fields, got %d", len(row))
		}

		rec, err := parseFields(row[0], row[1], row[2])
		if err != nil {
			return malformed(source, line, "%v", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func parseFields(tableField, keyField, tsField string) (model.Record, error) {
	tableID, err := strconv.ParseUint(strings.TrimSpace(tableField), 10, 64)
	if err != nil {
		return model.Record{}, fmt.Errorf("table id: %w", err)
	}
	key, err := decodeKey(strings.TrimSpace(keyField))
	if err != nil {
		return model.Record{}, err
	}
	ts, err := strconv.ParseUint(strings.TrimSpace(tsField), 10, 64)
	if err != nil {
		return model.Record{}, fmt.Errorf("timestamp: %w", err)
	}
	return model.Record{TableID: tableID, Key: key, Timestamp: ts}, nil
}

// decodeKey decodes a standard-alphabet base64 payload with optional padding.
// Non-canonical trailing bits and line breaks are rejected.
func decodeKey(s string) ([]byte, error) {
	if strings.ContainsAny(s, "\r\n") {
		return nil, errors.New("key payload: line break in base64 payload")
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(trimPadding(s))
	if err != nil {
		return nil, fmt.Errorf("key payload: %w", err)
	}
	return key, nil
}

// decodeJSONL reads one {"table_id":N,"key":"<base64>","ts":N} object per line.
func decodeJSONL(ctx context.Context, r io.Reader, source string, fn func(model.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var p fastjson.Parser
	line := 0
	for scanner.Scan() {
		line++
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}

		v, err := p.ParseBytes(data)
		if err != nil {
			return malformed(source, line, "%v", err)
		}

		rec, err := parseJSONRecord(v)
		if err != nil {
			return malformed(source, line, "%v", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}
	return nil
}

func parseJSONRecord(v *fastjson.Value) (model.Record, error) {
	tableVal := v.Get("table_id")
	if tableVal == nil {
		return model.Record{}, errors.New("missing table_id")
	}
	tableID, err := tableVal.Uint64()
	if err != nil {
		return model.Record{}, fmt.Errorf("table_id: %w", err)
	}

	keyVal := v.Get("key")
	if keyVal == nil {
		return model.Record{}, errors.New("missing key")
	}
	encoded, err := keyVal.StringBytes()
	if err != nil {
		return model.Record{}, fmt.Errorf("key: %w", err)
	}
	key, err := decodeKey(string(encoded))
	if err != nil {
		return model.Record{}, err
	}

	tsVal := v.Get("ts")
	if tsVal == nil {
		return model.Record{}, errors.New("missing ts")
	}
	ts, err := tsVal.Uint64()
	if err != nil {
		return model.Record{}, fmt.Errorf("ts: %w", err)
	}

	return model.Record{TableID: tableID, Key: key, Timestamp: ts}, nil
}
