package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kvtrace/keyloc/internal/model"
)

// ConsoleNotifier prints the metadata summary and statistic highlights.
type ConsoleNotifier struct {
	out io.Writer
}

// NewConsoleNotifier creates a console notifier writing to stdout.
func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{out: os.Stdout}
}

// NewConsoleNotifierTo creates a console notifier writing to w.
func NewConsoleNotifierTo(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: w}
}

// Name returns the notifier name.
func (c *ConsoleNotifier) Name() string {
	return "console"
}

// Send prints the report.
func (c *ConsoleNotifier) Send(ctx context.Context, report *model.Report) error {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(report.Metadata.String())

	if len(report.Statistics) > 0 {
		sb.WriteString("───────────────────────────────────────────────────────────────\n")
		for _, s := range report.Statistics {
			sb.WriteString(fmt.Sprintf("%-28s %s\n", s.Statistic, s.Highlight))
			for _, a := range s.Artifacts {
				sb.WriteString(fmt.Sprintf("  → %s\n", a))
			}
		}
	}

	sb.WriteString("───────────────────────────────────────────────────────────────\n")
	sb.WriteString(fmt.Sprintf("Report ID: %s (%s, %s)\n",
		report.ReqID, report.Timestamp.Format("2006-01-02 15:04:05"), report.Duration.Round(time.Millisecond)))

	_, err := io.WriteString(c.out, sb.String())
	return err
}
