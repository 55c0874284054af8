package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/portalsync/internal/cache"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
	"golang.org/x/sync/singleflight"
)

const semesterKey = "semester:current"

// PortalDirectory resolves the active semester and its courses. Results are reused
// while younger than maxAge and concurrent lookups for the same key share one request.
type PortalDirectory struct {
	fetcher Fetcher
	cache   *cache.Cache
	group   singleflight.Group
	maxAge  time.Duration
	logger  *log.Logger
}

// NewPortalDirectory creates a directory backed by f. A maxAge of zero disables reuse.
func NewPortalDirectory(f Fetcher, maxAge time.Duration, logger *log.Logger, opts ...cache.Option) *PortalDirectory {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PortalDirectory{
		fetcher: f,
		cache:   cache.New(opts...),
		maxAge:  maxAge,
		logger:  shared.WithLogger(logger, "component", "directory"),
	}
}

// CurrentSemester implements [CourseDirectory].
func (d *PortalDirectory) CurrentSemester(ctx context.Context) (models.Semester, error) {
	return cached(d, semesterKey, func() (models.Semester, error) {
		payload, err := d.fetcher.PerformAuthenticatedFetch(ctx, "/api/semesters/current")
		if err != nil {
			return models.Semester{}, err
		}

		var sem models.Semester
		if err := payload.Decode(&sem); err != nil {
			return models.Semester{}, err
		}
		if sem.Code == "" {
			return models.Semester{}, fmt.Errorf("%w: empty semester code", shared.ErrSemesterUnresolved)
		}
		return sem, nil
	})
}

// ListCourses implements [CourseDirectory].
func (d *PortalDirectory) ListCourses(ctx context.Context, semester models.Semester) ([]models.Course, error) {
	return cached(d, "courses:"+semester.Code, func() ([]models.Course, error) {
		locator := "/api/semesters/" + url.PathEscape(semester.Code) + "/courses"
		payload, err := d.fetcher.PerformAuthenticatedFetch(ctx, locator)
		if err != nil {
			return nil, err
		}

		var courses []models.Course
		if err := payload.Decode(&courses); err != nil {
			return nil, err
		}
		return courses, nil
	})
}

// Invalidate forgets every cached lookup.
func (d *PortalDirectory) Invalidate() {
	d.cache.InvalidateAll()
}

func cached[T any](d *PortalDirectory, key string, load func() (T, error)) (T, error) {
	if v, age, ok := cache.Lookup[T](d.cache, key); ok && age <= d.maxAge {
		return v, nil
	}

	v, err, dup := d.group.Do(key, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		d.cache.Put(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if dup {
		d.logger.Debug("shared directory lookup", "key", key)
	}
	return v.(T), nil
}
