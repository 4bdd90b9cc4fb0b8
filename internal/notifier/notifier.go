// Package notifier provides report delivery channels.
package notifier

import (
	"context"
	"strings"

	"github.com/kvtrace/keyloc/internal/model"
)

// Notifier is the interface for delivering analysis reports.
type Notifier interface {
	// Send delivers the report to the channel.
	Send(ctx context.Context, report *model.Report) error

	// Name returns the name of the notifier.
	Name() string
}

// Multi delivers a report through several notifiers.
type Multi []Notifier

// Send delivers the report through every notifier, stopping at the first failure.
func (m Multi) Send(ctx context.Context, report *model.Report) error {
	for _, n := range m {
		if err := n.Send(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the name of the notifier.
func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, n := range m {
		names[i] = n.Name()
	}
	return strings.Join(names, "+")
}
