package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/flightontime/flightontime/internal/core"
)

// TableFormatter renders results as an ASCII table, or a markdown table
// when Markdown is set.
type TableFormatter struct {
	Markdown bool
}

// FormatAdmissions renders one row per client key with a totals footer.
func (f *TableFormatter) FormatAdmissions(stats []core.AdmissionStats) (string, error) {
	if len(stats) == 0 {
		return "(no admission statistics recorded)", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Client", "Allowed", "Rejected", "First Seen", "Last Seen", "Last Rejected"})

	var allowed, rejected int64
	for _, s := range stats {
		allowed += s.Allowed
		rejected += s.Rejected
		t.AppendRow(table.Row{
			string(s.Key),
			s.Allowed,
			s.Rejected,
			formatTime(s.FirstSeen),
			formatTime(s.LastSeen),
			formatTimePtr(s.LastRejectedAt),
		})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d clients", len(stats)), allowed, rejected, "", "", ""})

	return f.render(t), nil
}

// FormatReset renders a one-line summary.
func (f *TableFormatter) FormatReset(summary ResetSummary) (string, error) {
	if summary.DryRun {
		return fmt.Sprintf("Would delete %d admission entr(ies)", summary.Matched), nil
	}
	line := fmt.Sprintf("Deleted %d/%d admission entr(ies)", summary.Deleted, summary.Matched)
	if summary.BucketReset {
		line += "; live bucket cleared"
	}
	return line, nil
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return formatTime(*ts)
}
