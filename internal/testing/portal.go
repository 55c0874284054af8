package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/portalsync/internal/models"
)

// FakePortal serves the portal JSON API from memory.
type FakePortal struct {
	Server *httptest.Server

	mu        sync.Mutex
	semester  models.Semester
	courses   []models.Course
	homework  map[string][]map[string]any
	documents map[string]map[string][]map[string]any
	cookie    string
	failures  map[string]int
	hits      map[string]int
}

// NewFakePortal starts a portal for semester and courses. It is closed when t finishes.
func NewFakePortal(t *testing.T, semester models.Semester, courses ...models.Course) *FakePortal {
	t.Helper()
	p := &FakePortal{
		semester:  semester,
		courses:   courses,
		homework:  make(map[string][]map[string]any),
		documents: make(map[string]map[string][]map[string]any),
		failures:  make(map[string]int),
		hits:      make(map[string]int),
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Server.Close)
	return p
}

// URL is the portal base URL.
func (p *FakePortal) URL() string { return p.Server.URL }

// RequireCookie rejects requests without exactly this Cookie header with 401.
func (p *FakePortal) RequireCookie(cookie string) {
	p.mu.Lock()
	p.cookie = cookie
	p.mu.Unlock()
}

// FailPath answers requests for path with status.
func (p *FakePortal) FailPath(path string, status int) {
	p.mu.Lock()
	p.failures[path] = status
	p.mu.Unlock()
}

// AddHomework adds one assignment to courseID.
func (p *FakePortal) AddHomework(courseID, id, title, deadline string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.homework[courseID] = append(p.homework[courseID], map[string]any{
		"id": id, "title": title, "deadline": deadline, "submitted": false,
	})
}

// AddDocument adds one document of docType to courseID.
func (p *FakePortal) AddDocument(courseID, docType, id, name string, size int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.documents[courseID] == nil {
		p.documents[courseID] = make(map[string][]map[string]any)
	}
	p.documents[courseID][docType] = append(p.documents[courseID][docType], map[string]any{
		"id": id, "name": name, "type": docType, "size": size, "updatedAt": "2025-03-01 10:00:00",
	})
}

// Hits counts requests for path, ignoring the query string.
func (p *FakePortal) Hits(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

func (p *FakePortal) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := r.URL.Path
	p.hits[path]++

	if p.cookie != "" && r.Header.Get("Cookie") != p.cookie {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if status, ok := p.failures[path]; ok {
		w.WriteHeader(status)
		return
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/api/session":
		writeJSON(w, map[string]bool{"ok": true})
	case path == "/api/semesters/current":
		writeJSON(w, p.semester)
	case len(parts) == 4 && parts[1] == "semesters" && parts[3] == "courses":
		writeJSON(w, p.courses)
	case len(parts) == 4 && parts[1] == "courses" && parts[3] == "homework":
		writeJSON(w, orEmpty(p.homework[parts[2]]))
	case len(parts) == 4 && parts[1] == "courses" && parts[3] == "documents":
		docs := orEmpty(p.documents[parts[2]][r.URL.Query().Get("type")])
		if dir := r.URL.Query().Get("dir"); dir != "" {
			filtered := []map[string]any{}
			for _, d := range docs {
				if d["directoryId"] == dir {
					filtered = append(filtered, d)
				}
			}
			docs = filtered
		}
		writeJSON(w, docs)
	default:
		http.NotFound(w, r)
	}
}

func orEmpty(v []map[string]any) []map[string]any {
	if v == nil {
		return []map[string]any{}
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
