package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
)

// Authenticator is the session precondition and the source of expiry signals.
type Authenticator interface {
	// IsAuthenticated reports whether a usable session is loaded.
	IsAuthenticated() bool
	// Expired delivers a value each time the session is invalidated or replaced.
	Expired() <-chan struct{}
}

// Fetcher performs one authenticated request. Locators are portal-relative paths.
type Fetcher interface {
	PerformAuthenticatedFetch(ctx context.Context, locator string) (*RawPayload, error)
}

// CourseDirectory lists the courses of the active semester.
type CourseDirectory interface {
	CurrentSemester(ctx context.Context) (models.Semester, error)
	ListCourses(ctx context.Context, semester models.Semester) ([]models.Course, error)
}

// RawPayload is an upstream response with status and body.
type RawPayload struct {
	Locator    string
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Decode unmarshals the body into v.
func (p *RawPayload) Decode(v any) error {
	if p == nil {
		return fmt.Errorf("%w: empty payload", shared.ErrInvalidPayload)
	}
	if err := json.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrInvalidPayload, p.Locator, err)
	}
	return nil
}

func newRawPayload(locator string, status int, headers http.Header, body []byte) *RawPayload {
	p := &RawPayload{Locator: locator, StatusCode: status, Headers: headers, Body: body}

	var data any
	if err := json.Unmarshal(body, &data); err == nil {
		p.IsJSON = true
		p.JSONData = data
	}
	return p
}
