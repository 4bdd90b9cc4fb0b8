package reader

import (
	"context"

	"github.com/kvtrace/keyloc/internal/model"
)

// Memory is a Source over records already held in memory.
type Memory struct {
	name    string
	records []model.Record
}

// NewMemory creates a Source that replays records.
func NewMemory(name string, records []model.Record) *Memory {
	return &Memory{name: name, records: records}
}

// Scan replays the records in order.
func (m *Memory) Scan(ctx context.Context, fn func(model.Record) error) error {
	for i, r := range m.records {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the source name.
func (m *Memory) Name() string {
	return m.name
}

// Len returns the number of buffered records.
func (m *Memory) Len() int {
	return len(m.records)
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
