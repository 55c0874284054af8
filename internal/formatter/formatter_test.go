package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/desertthunder/portalsync/internal/tasks"
	tu "github.com/desertthunder/portalsync/internal/testing"
)

var now = time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)

func sampleHomework() []models.Homework {
	return []models.Homework{
		{
			ID:         "h1",
			CourseID:   "c1",
			CourseName: "Intro to Programming",
			Title:      "Lab 1",
			Deadline:   now.Add(72 * time.Hour),
			Score:      "95",
		},
		{
			ID:         "h2",
			CourseID:   "c2",
			CourseName: "Operating Systems",
			Title:      "Pipes | Signals",
			Submitted:  true,
		},
	}
}

func sampleDocuments() []models.Document {
	return []models.Document{
		{ID: "d1", CourseID: "c2", CourseName: "Operating Systems", Name: "midterm.pdf", Type: "exam", Size: 2048, UpdatedAt: now.Add(-2 * time.Hour)},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatTable},
		{"TABLE", FormatTable},
		{"json", FormatJSON},
		{"csv", FormatCSV},
		{"md", FormatMarkdown},
		{"markdown", FormatMarkdown},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; expected %q", tt.in, got, err, tt.want)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestWrite(t *testing.T) {
	t.Run("Homework Table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatTable, HomeworkColumns(now), sampleHomework()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		output := buf.String()

		for _, want := range []string{"Course", "Deadline", "Lab 1", "Operating Systems", "3 days from now", "yes"} {
			if !strings.Contains(output, want) {
				t.Errorf("table missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("Homework CSV Uses Raw Values", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatCSV, HomeworkColumns(now), sampleHomework()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

		if lines[0] != "Course,Title,Deadline,Submitted,Score" {
			t.Errorf("unexpected CSV header: %s", lines[0])
		}
		if !strings.Contains(lines[1], "2025-03-10T12:00:00Z") || !strings.Contains(lines[1], "false") {
			t.Errorf("expected raw deadline and bool, got %s", lines[1])
		}
		if !strings.HasSuffix(lines[2], ",,true,") {
			t.Errorf("expected empty deadline for zero time, got %s", lines[2])
		}
	})

	t.Run("Documents Markdown", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatMarkdown, DocumentColumns(now), sampleDocuments()); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		output := buf.String()

		if !strings.HasPrefix(output, "| Course | Type | Name | Size | Updated |\n| --- |") {
			t.Errorf("unexpected Markdown header:\n%s", output)
		}
		if !strings.Contains(output, "| Operating Systems | exam | midterm.pdf | 2.0 kB | 2 hours ago |") {
			t.Errorf("unexpected Markdown row:\n%s", output)
		}
	})

	t.Run("Markdown Escapes Pipes", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatMarkdown, HomeworkColumns(now), sampleHomework()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), `Pipes \| Signals`) {
			t.Errorf("expected escaped pipe, got:\n%s", buf.String())
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatJSON, DocumentColumns(now), sampleDocuments()); err != nil {
			t.Fatal(err)
		}
		var got []models.Document
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 1 || got[0].Name != "midterm.pdf" {
			t.Errorf("unexpected documents: %+v", got)
		}
	})

	t.Run("JSON Empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write[models.Homework](&buf, FormatJSON, HomeworkColumns(now), nil); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(buf.String()) != "[]" {
			t.Errorf("expected [], got %q", buf.String())
		}
	})

	t.Run("Runs Table", func(t *testing.T) {
		run := models.NewSyncRun(models.KindDocuments, models.Scope{CourseCode: "CS101"}, models.OpRefresh, "tok", now.Add(-time.Minute))
		run.Status = models.RunSuperseded
		run.ItemCount = 4
		run.FinishedAt = now.Add(-time.Minute + 1500*time.Millisecond)

		var buf bytes.Buffer
		if err := Write(&buf, FormatTable, RunColumns(now), []*models.SyncRun{run}); err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"superseded", "refresh", "CS101", "1.5s", "1 minute ago"} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("runs table missing %q, got:\n%s", want, buf.String())
			}
		}
	})

	t.Run("Write Error", func(t *testing.T) {
		for _, f := range Formats {
			if err := Write(&tu.FWriter{}, f, HomeworkColumns(now), sampleHomework()); err == nil {
				t.Errorf("expected error writing %s to a failing writer", f)
			}
		}
	})

	t.Run("Unknown Format", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, Format("xml"), HomeworkColumns(now), nil); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestHumanized(t *testing.T) {
	t.Run("Deadline", func(t *testing.T) {
		if got := Deadline(time.Time{}, now); got != "-" {
			t.Errorf("expected - for zero deadline, got %q", got)
		}
		if got := Deadline(now.Add(-48*time.Hour), now); got != "Mar 05 12:00 (2 days ago)" {
			t.Errorf("unexpected deadline: %q", got)
		}
	})

	t.Run("Size", func(t *testing.T) {
		if got := Size(2048); got != "2.0 kB" {
			t.Errorf("expected 2.0 kB, got %q", got)
		}
		if got := Size(-1); got != "0 B" {
			t.Errorf("expected 0 B for negative size, got %q", got)
		}
	})

	t.Run("Summary", func(t *testing.T) {
		tests := []struct {
			name      string
			count     int
			fromCache bool
			age       time.Duration
			failed    int
			want      string
		}{
			{"Live", 12, false, 0, 0, "12 items"},
			{"Single", 1, false, 0, 0, "1 item"},
			{"Cached", 1500, true, 240000 * time.Millisecond, 0, "1,500 items (cached 4 minutes ago)"},
			{"Failures", 3, false, 0, 2, "3 items, 2 failed"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := Summary(tt.count, tt.fromCache, tt.age, tt.failed); got != tt.want {
					t.Errorf("expected %q, got %q", tt.want, got)
				}
			})
		}
	})
}

func TestEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   tasks.Event[models.Homework]
		want string
	}{
		{"Progress", tasks.Event[models.Homework]{Kind: tasks.EventProgress, Completed: 2, Total: 6, Label: "Intro"}, "[2/6] Intro"},
		{"Complete", tasks.Event[models.Homework]{Kind: tasks.EventComplete, Completed: 6, Total: 6}, "done: 6/6 units"},
		{"Error", tasks.Event[models.Homework]{Kind: tasks.EventError, Message: "session expired"}, "error: session expired"},
		{"Chunk", tasks.Event[models.Homework]{Kind: tasks.EventChunk}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Event(tt.ev); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
