package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/portalsync/internal/fence"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/queue"
	"github.com/desertthunder/portalsync/internal/services"
	"github.com/desertthunder/portalsync/internal/shared"
)

// UnitFetcher performs the request behind one unit.
type UnitFetcher[T any] interface {
	FetchUnit(ctx context.Context, u models.FetchUnit) ([]T, error)
}

// UnitFetcherFunc adapts a function to [UnitFetcher].
type UnitFetcherFunc[T any] func(ctx context.Context, u models.FetchUnit) ([]T, error)

// FetchUnit implements [UnitFetcher].
func (f UnitFetcherFunc[T]) FetchUnit(ctx context.Context, u models.FetchUnit) ([]T, error) {
	return f(ctx, u)
}

// Failure records a unit that was treated as empty.
type Failure struct {
	Unit models.FetchUnit
	Err  error
}

// Merged is the concatenation of every unit's results in unit order.
type Merged[T any] struct {
	Items     []T
	Completed int
	Total     int
	Failures  []Failure
}

// Options tunes an [Orchestrator]. Zero values fall back to the defaults of [DefaultOptions].
type Options struct {
	BatchSize  int
	UnitPacer  Pacer
	BatchPacer Pacer
	Logger     *log.Logger
}

// DefaultOptions builds options from the sync configuration.
func DefaultOptions(cfg shared.SyncConfig, logger *log.Logger) Options {
	unit, batch := PacersFromConfig(cfg)
	return Options{BatchSize: cfg.BatchSize, UnitPacer: unit, BatchPacer: batch, Logger: logger}
}

// Orchestrator decomposes a scope into units and runs them through a shared queue.
type Orchestrator[T any] struct {
	kind    models.Kind
	auth    services.Authenticator
	dir     services.CourseDirectory
	fetcher UnitFetcher[T]
	queue   *queue.Queue
	opts    Options
	logger  *log.Logger
}

// NewOrchestrator creates an orchestrator for kind. The queue is shared with every
// other orchestrator so the concurrency bound is process-wide.
func NewOrchestrator[T any](
	kind models.Kind,
	auth services.Authenticator,
	dir services.CourseDirectory,
	fetcher UnitFetcher[T],
	q *queue.Queue,
	opts Options,
) *Orchestrator[T] {
	if opts.BatchSize < 1 {
		opts.BatchSize = q.Limit()
	}
	if opts.UnitPacer == nil {
		opts.UnitPacer = NoPacer{}
	}
	if opts.BatchPacer == nil {
		opts.BatchPacer = NoPacer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Orchestrator[T]{
		kind:    kind,
		auth:    auth,
		dir:     dir,
		fetcher: fetcher,
		queue:   q,
		opts:    opts,
		logger:  shared.WithLogger(logger, "component", "orchestrator", "kind", string(kind)),
	}
}

// Stream fetches scope × subtypes and reports through emit. Every event carries tok.
//
// Unit failures never abort the stream. A structural failure emits one error event,
// returns the error and skips the complete event.
func (o *Orchestrator[T]) Stream(
	ctx context.Context,
	scope models.Scope,
	subtypes []string,
	tok fence.Token,
	emit Emitter[T],
) (*Merged[T], error) {
	if emit == nil {
		emit = func(Event[T]) {}
	}
	fail := func(err error) (*Merged[T], error) {
		o.logger.Error("stream failed", "scope", scope.String(), "err", err)
		emit(errorEvent[T](tok, scope, err))
		return nil, err
	}

	if o.auth == nil || !o.auth.IsAuthenticated() {
		return fail(shared.ErrNotAuthenticated)
	}

	sem, err := o.dir.CurrentSemester(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", shared.ErrSemesterUnresolved, err))
	}

	courses, err := o.dir.ListCourses(ctx, sem)
	if err != nil {
		return fail(fmt.Errorf("%w: course list for %s: %w", shared.ErrServiceUnavailable, sem.Code, err))
	}

	if scope.IsAll() {
		return o.streamAll(ctx, scope, courses, subtypes, tok, emit, fail)
	}

	course, ok := findCourse(courses, scope.CourseCode)
	if !ok {
		return fail(fmt.Errorf("%w: %s in %s", shared.ErrCourseNotFound, scope.CourseCode, sem.Code))
	}
	return o.streamOne(ctx, scope, course, subtypes, tok, emit, fail)
}

// streamOne runs the units of one course strictly in order.
func (o *Orchestrator[T]) streamOne(
	ctx context.Context,
	scope models.Scope,
	course models.Course,
	subtypes []string,
	tok fence.Token,
	emit Emitter[T],
	fail func(error) (*Merged[T], error),
) (*Merged[T], error) {
	total := len(subtypes)
	merged := &Merged[T]{Total: total, Items: []T{}}

	for i, subtype := range subtypes {
		if i > 0 {
			if err := o.opts.UnitPacer.Pause(ctx); err != nil {
				return fail(err)
			}
		}

		u := models.FetchUnit{Index: i, Course: course, Subtype: subtype, DirectoryID: scope.DirectoryID}
		items, err := queue.Do(ctx, o.queue, func(ctx context.Context) ([]T, error) {
			return o.fetcher.FetchUnit(ctx, u)
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(ctxErr)
		}
		if err != nil {
			items = o.unitFailed(merged, u, err)
		}

		merged.Items = append(merged.Items, items...)
		merged.Completed = i + 1
		emit(progressEvent[T](tok, scope, i+1, total, u))
		emit(chunkEvent(tok, scope, u, items))
	}

	emit(completeEvent[T](tok, scope, total))
	return merged, nil
}

type unitResult[T any] struct {
	unit  models.FetchUnit
	items []T
	err   error
}

// streamAll submits course × subtype units in batches and reports them as they finish.
func (o *Orchestrator[T]) streamAll(
	ctx context.Context,
	scope models.Scope,
	courses []models.Course,
	subtypes []string,
	tok fence.Token,
	emit Emitter[T],
	fail func(error) (*Merged[T], error),
) (*Merged[T], error) {
	units := make([]models.FetchUnit, 0, len(courses)*len(subtypes))
	for _, c := range courses {
		for _, st := range subtypes {
			units = append(units, models.FetchUnit{Index: len(units), Course: c, Subtype: st})
		}
	}

	total := len(units)
	merged := &Merged[T]{Total: total}
	byUnit := make([][]T, total)

	for start := 0; start < total; start += o.opts.BatchSize {
		if start > 0 {
			if err := o.opts.BatchPacer.Pause(ctx); err != nil {
				return fail(err)
			}
		}

		end := min(start+o.opts.BatchSize, total)
		results := make(chan unitResult[T], end-start)
		for _, u := range units[start:end] {
			f := queue.Submit(ctx, o.queue, func(ctx context.Context) ([]T, error) {
				return o.fetcher.FetchUnit(ctx, u)
			})
			go func() {
				items, err := f.Wait(ctx)
				results <- unitResult[T]{unit: u, items: items, err: err}
			}()
		}

		for range end - start {
			r := <-results
			if r.err != nil {
				r.items = o.unitFailed(merged, r.unit, r.err)
			}
			byUnit[r.unit.Index] = r.items

			merged.Completed++
			emit(progressEvent[T](tok, scope, merged.Completed, total, r.unit))
			if len(r.items) > 0 {
				emit(chunkEvent(tok, scope, r.unit, r.items))
			}
		}

		if err := ctx.Err(); err != nil {
			return fail(err)
		}
	}

	merged.Items = make([]T, 0)
	for _, items := range byUnit {
		merged.Items = append(merged.Items, items...)
	}

	emit(completeEvent[T](tok, scope, total))
	return merged, nil
}

func (o *Orchestrator[T]) unitFailed(m *Merged[T], u models.FetchUnit, err error) []T {
	o.logger.Warn("unit failed", "course", u.Course.Code, "subtype", u.Subtype, "err", err)
	m.Failures = append(m.Failures, Failure{Unit: u, Err: err})
	return nil
}

// findCourse matches by course code, case-insensitively, then by portal id.
func findCourse(courses []models.Course, code string) (models.Course, bool) {
	code = strings.TrimSpace(code)
	for _, c := range courses {
		if strings.EqualFold(c.Code, code) {
			return c, true
		}
	}
	for _, c := range courses {
		if c.ID == code {
			return c, true
		}
	}
	return models.Course{}, false
}
