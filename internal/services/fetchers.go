package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/portalsync/internal/models"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp accepts the formats the portal uses. Unparseable input yields the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

type homeworkWire struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Deadline  string `json:"deadline"`
	Submitted bool   `json:"submitted"`
	Score     any    `json:"score"`
}

// HomeworkFetcher loads the homework list of one course.
type HomeworkFetcher struct {
	fetcher Fetcher
}

// NewHomeworkFetcher creates a fetcher that requests through f.
func NewHomeworkFetcher(f Fetcher) *HomeworkFetcher {
	return &HomeworkFetcher{fetcher: f}
}

// FetchUnit requests /api/courses/{id}/homework. The unit subtype is ignored.
func (h *HomeworkFetcher) FetchUnit(ctx context.Context, u models.FetchUnit) ([]models.Homework, error) {
	locator := "/api/courses/" + url.PathEscape(u.Course.ID) + "/homework"
	payload, err := h.fetcher.PerformAuthenticatedFetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	var wire []homeworkWire
	if err := payload.Decode(&wire); err != nil {
		return nil, err
	}

	out := make([]models.Homework, 0, len(wire))
	for _, w := range wire {
		hw := models.Homework{
			ID:         w.ID,
			CourseID:   u.Course.ID,
			CourseName: u.Course.Name,
			Title:      w.Title,
			Content:    w.Content,
			Deadline:   parseTimestamp(w.Deadline),
			Submitted:  w.Submitted,
		}
		if w.Score != nil {
			hw.Score = fmt.Sprint(w.Score)
		}
		out = append(out, hw)
	}
	return out, nil
}

type documentWire struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	DirectoryID string `json:"directoryId"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	UpdatedAt   string `json:"updatedAt"`
}

// DocumentFetcher loads one document type of one course, optionally within a directory.
type DocumentFetcher struct {
	fetcher Fetcher
}

// NewDocumentFetcher creates a fetcher that requests through f.
func NewDocumentFetcher(f Fetcher) *DocumentFetcher {
	return &DocumentFetcher{fetcher: f}
}

// FetchUnit requests /api/courses/{id}/documents?type={subtype}[&dir={directory}].
func (d *DocumentFetcher) FetchUnit(ctx context.Context, u models.FetchUnit) ([]models.Document, error) {
	q := url.Values{}
	q.Set("type", u.Subtype)
	if u.DirectoryID != "" {
		q.Set("dir", u.DirectoryID)
	}
	locator := "/api/courses/" + url.PathEscape(u.Course.ID) + "/documents?" + q.Encode()

	payload, err := d.fetcher.PerformAuthenticatedFetch(ctx, locator)
	if err != nil {
		return nil, err
	}

	var wire []documentWire
	if err := payload.Decode(&wire); err != nil {
		return nil, err
	}

	out := make([]models.Document, 0, len(wire))
	for _, w := range wire {
		typ := w.Type
		if typ == "" {
			typ = u.Subtype
		}
		out = append(out, models.Document{
			ID:          w.ID,
			CourseID:    u.Course.ID,
			CourseName:  u.Course.Name,
			Name:        w.Name,
			Type:        typ,
			DirectoryID: w.DirectoryID,
			Size:        w.Size,
			URL:         w.URL,
			UpdatedAt:   parseTimestamp(w.UpdatedAt),
		})
	}
	return out, nil
}
