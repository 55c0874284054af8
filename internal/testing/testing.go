// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/portalsync/internal/models"
)

// FakeAuth is a test double for services.Authenticator
type FakeAuth struct {
	ok      atomic.Bool
	expired chan struct{}
}

// NewFakeAuth creates an authenticated [FakeAuth].
func NewFakeAuth() *FakeAuth {
	a := &FakeAuth{expired: make(chan struct{}, 1)}
	a.ok.Store(true)
	return a
}

func (a *FakeAuth) IsAuthenticated() bool    { return a.ok.Load() }
func (a *FakeAuth) Expired() <-chan struct{} { return a.expired }
func (a *FakeAuth) SetAuthenticated(ok bool) { a.ok.Store(ok) }

// Expire signals expiry without blocking.
func (a *FakeAuth) Expire() {
	a.ok.Store(false)
	select {
	case a.expired <- struct{}{}:
	default:
	}
}

// FakeDirectory is a test double for services.CourseDirectory
type FakeDirectory struct {
	Semester models.Semester
	Courses  []models.Course
	Err      error
}

func (d *FakeDirectory) CurrentSemester(context.Context) (models.Semester, error) {
	return d.Semester, d.Err
}

func (d *FakeDirectory) ListCourses(context.Context, models.Semester) ([]models.Course, error) {
	return d.Courses, d.Err
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
