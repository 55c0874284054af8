package models

import (
	"strings"
	"time"
)

// Kind names a resource family served by the engine.
type Kind string

const (
	KindHomework  Kind = "homework"
	KindDocuments Kind = "documents"
)

// ParseKind maps user input to a [Kind].
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "homework", "hw":
		return KindHomework, true
	case "documents", "docs", "document":
		return KindDocuments, true
	default:
		return "", false
	}
}

// Scope is the unit of work a caller asks for: one course (by its human-readable code) or every course.
//
// DirectoryID narrows a documents scope to a single folder and is ignored for homework.
type Scope struct {
	CourseCode  string `json:"course,omitempty"`
	DirectoryID string `json:"directory,omitempty"`
}

// AllCourses is the "all entities" scope.
var AllCourses = Scope{}

// IsAll reports whether the scope addresses every course.
func (s Scope) IsAll() bool {
	return strings.TrimSpace(s.CourseCode) == ""
}

// String renders the scope discriminator used in cache keys and logs.
func (s Scope) String() string {
	if s.IsAll() {
		return "all"
	}
	if s.DirectoryID != "" {
		return s.CourseCode + ":" + s.DirectoryID
	}
	return s.CourseCode
}

// CacheKey builds the composite cache key for kind + scope, e.g. "homework:all" or "documents:CS101:".
//
// Documents keys always carry the directory segment so the root folder and a named folder never collide.
func CacheKey(kind Kind, s Scope) string {
	if s.IsAll() {
		return string(kind) + ":all"
	}
	if kind == KindDocuments {
		return string(kind) + ":" + s.CourseCode + ":" + s.DirectoryID
	}
	return string(kind) + ":" + s.CourseCode
}

// Semester is the teaching term courses are listed under.
type Semester struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Course is one entry of the semester course list.
type Course struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Teacher string `json:"teacher,omitempty"`
}

// Label returns the display name used in progress messages.
func (c Course) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Code
}

// Homework is an assignment attached to a course.
type Homework struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"courseId"`
	CourseName string    `json:"courseName"`
	Title      string    `json:"title"`
	Content    string    `json:"content,omitempty"`
	Deadline   time.Time `json:"deadline"`
	Submitted  bool      `json:"submitted"`
	Score      string    `json:"score,omitempty"`
}

// ItemID implements [Item].
func (h Homework) ItemID() string { return "hw:" + h.CourseID + ":" + h.ID }

// Document is a file listed under one of a course's document types.
type Document struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"courseId"`
	CourseName  string    `json:"courseName"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	DirectoryID string    `json:"directoryId,omitempty"`
	Size        int64     `json:"size"`
	URL         string    `json:"url,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ItemID implements [Item].
func (d Document) ItemID() string { return "doc:" + d.CourseID + ":" + d.ID }

// FetchUnit is one (course, subtype) request of a fan-out. Units are immutable once queued.
type FetchUnit struct {
	Index       int
	Course      Course
	Subtype     string
	DirectoryID string
}

// Label names the unit in progress output, e.g. "Operating Systems · exam".
func (u FetchUnit) Label() string {
	if u.Subtype == "" || u.Subtype == string(KindHomework) {
		return u.Course.Label()
	}
	return u.Course.Label() + " · " + u.Subtype
}
