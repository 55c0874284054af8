// package formatter renders homework, documents and sync runs as tables, JSON, CSV or Markdown
package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/desertthunder/portalsync/internal/tasks"
	"github.com/dustin/go-humanize"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatJSON, FormatCSV, FormatMarkdown}

// ParseFormat maps a flag value to a [Format].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Column describes one field of a rendered row.
//
// Value is shown in tables and Markdown. Raw, when set, is what CSV gets instead,
// so spreadsheets see timestamps and byte counts rather than "3 days ago".
type Column[T any] struct {
	Header string
	Value  func(T) string
	Raw    func(T) string
}

func (c Column[T]) raw(v T) string {
	if c.Raw != nil {
		return c.Raw(v)
	}
	return c.Value(v)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Write renders items to w in format f.
func Write[T any](w io.Writer, f Format, cols []Column[T], items []T) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, items)
	case FormatCSV:
		return writeCSV(w, cols, items)
	case FormatMarkdown:
		return writeMarkdown(w, cols, items)
	case FormatTable, "":
		return writeTable(w, cols, items)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

func writeJSON[T any](w io.Writer, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

func writeCSV[T any](w io.Writer, cols []Column[T], items []T) error {
	writer := csv.NewWriter(w)

	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Header
	}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		record := make([]string, len(cols))
		for i, c := range cols {
			record[i] = c.raw(item)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func writeMarkdown[T any](w io.Writer, cols []Column[T], items []T) error {
	var buf strings.Builder

	headers := make([]string, len(cols))
	rule := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Header
		rule[i] = "---"
	}
	buf.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	buf.WriteString("| " + strings.Join(rule, " | ") + " |\n")

	for _, item := range items {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = strings.ReplaceAll(c.Value(item), "|", `\|`)
		}
		buf.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	if _, err := io.WriteString(w, buf.String()); err != nil {
		return fmt.Errorf("failed to write Markdown: %w", err)
	}
	return nil
}

func writeTable[T any](w io.Writer, cols []Column[T], items []T) error {
	headers := make([]string, len(cols))
	for i, c := range cols {
		headers[i] = c.Header
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, item := range items {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = c.Value(item)
		}
		t.Row(row...)
	}

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// HomeworkColumns renders deadlines relative to now.
func HomeworkColumns(now time.Time) []Column[models.Homework] {
	return []Column[models.Homework]{
		{Header: "Course", Value: func(h models.Homework) string { return h.CourseName }},
		{Header: "Title", Value: func(h models.Homework) string { return h.Title }},
		{
			Header: "Deadline",
			Value:  func(h models.Homework) string { return Deadline(h.Deadline, now) },
			Raw:    func(h models.Homework) string { return timestamp(h.Deadline) },
		},
		{
			Header: "Submitted",
			Value: func(h models.Homework) string {
				if h.Submitted {
					return "yes"
				}
				return "no"
			},
			Raw: func(h models.Homework) string { return strconv.FormatBool(h.Submitted) },
		},
		{Header: "Score", Value: func(h models.Homework) string { return h.Score }},
	}
}

// DocumentColumns renders sizes in SI units and update times relative to now.
func DocumentColumns(now time.Time) []Column[models.Document] {
	return []Column[models.Document]{
		{Header: "Course", Value: func(d models.Document) string { return d.CourseName }},
		{Header: "Type", Value: func(d models.Document) string { return d.Type }},
		{Header: "Name", Value: func(d models.Document) string { return d.Name }},
		{
			Header: "Size",
			Value:  func(d models.Document) string { return Size(d.Size) },
			Raw:    func(d models.Document) string { return strconv.FormatInt(d.Size, 10) },
		},
		{
			Header: "Updated",
			Value:  func(d models.Document) string { return relative(d.UpdatedAt, now) },
			Raw:    func(d models.Document) string { return timestamp(d.UpdatedAt) },
		},
	}
}

// RunColumns renders the sync run journal.
func RunColumns(now time.Time) []Column[*models.SyncRun] {
	return []Column[*models.SyncRun]{
		{
			Header: "Started",
			Value:  func(r *models.SyncRun) string { return relative(r.StartedAt, now) },
			Raw:    func(r *models.SyncRun) string { return timestamp(r.StartedAt) },
		},
		{Header: "Kind", Value: func(r *models.SyncRun) string { return string(r.Kind) }},
		{Header: "Scope", Value: func(r *models.SyncRun) string { return r.Scope }},
		{Header: "Op", Value: func(r *models.SyncRun) string { return string(r.Operation) }},
		{Header: "Status", Value: func(r *models.SyncRun) string { return string(r.Status) }},
		{Header: "Items", Value: func(r *models.SyncRun) string { return strconv.Itoa(r.ItemCount) }},
		{Header: "Failed", Value: func(r *models.SyncRun) string { return strconv.Itoa(r.FailedUnits) }},
		{
			Header: "Took",
			Value:  func(r *models.SyncRun) string { return r.Duration().Round(time.Millisecond).String() },
			Raw:    func(r *models.SyncRun) string { return strconv.FormatInt(r.Duration().Milliseconds(), 10) },
		},
		{Header: "Error", Value: func(r *models.SyncRun) string { return r.Error }},
	}
}

// Deadline renders t as a date plus its distance from now, e.g. "Mar 10 23:59 (3 days from now)".
func Deadline(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Jan 02 15:04") + " (" + humanize.RelTime(t, now, "ago", "from now") + ")"
}

// Age renders how old a cached response is, e.g. "4 minutes ago".
func Age(age time.Duration) string {
	now := time.Now()
	return humanize.RelTime(now.Add(-age), now, "ago", "from now")
}

// Size renders a byte count, e.g. "2.0 kB".
func Size(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// Summary describes a response header line, e.g. "12 items (cached 4 minutes ago)".
func Summary(count int, fromCache bool, age time.Duration, failed int) string {
	var b strings.Builder
	b.WriteString(humanize.Comma(int64(count)))
	if count == 1 {
		b.WriteString(" item")
	} else {
		b.WriteString(" items")
	}
	if fromCache {
		b.WriteString(" (cached " + Age(age) + ")")
	}
	if failed > 0 {
		fmt.Fprintf(&b, ", %d failed", failed)
	}
	return b.String()
}

// Event renders one engine event as a progress line. Chunks and start markers yield "".
func Event[T any](ev tasks.Event[T]) string {
	switch ev.Kind {
	case tasks.EventProgress:
		return fmt.Sprintf("[%d/%d] %s", ev.Completed, ev.Total, ev.Label)
	case tasks.EventComplete:
		return fmt.Sprintf("done: %d/%d units", ev.Completed, ev.Total)
	case tasks.EventError:
		return "error: " + ev.Message
	default:
		return ""
	}
}

func relative(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
