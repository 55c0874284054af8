package syncer

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/portalsync/internal/cache"
	"github.com/desertthunder/portalsync/internal/fence"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/tasks"
	"golang.org/x/sync/singleflight"
)

// GetOpts modifies [Resource.Get].
type GetOpts struct {
	// SkipCache treats the key as absent. The fresh result still overwrites the entry.
	SkipCache bool
}

// Resource serves one kind of portal data.
type Resource[T models.Item] struct {
	engine   *Engine
	kind     models.Kind
	subtypes []string
	orch     *tasks.Orchestrator[T]
	group    singleflight.Group
}

func newResource[T models.Item](e *Engine, kind models.Kind, subtypes []string, orch *tasks.Orchestrator[T]) *Resource[T] {
	return &Resource[T]{engine: e, kind: kind, subtypes: subtypes, orch: orch}
}

// Kind is the resource family served.
func (r *Resource[T]) Kind() models.Kind { return r.kind }

// Subtypes are the per-course sub-requests, e.g. document types.
func (r *Resource[T]) Subtypes() []string { return append([]string(nil), r.subtypes...) }

// StreamID is the fence stream for scope.
func (r *Resource[T]) StreamID(scope models.Scope) string {
	if scope.IsAll() {
		return fence.StreamID(r.kind)
	}
	if r.kind == models.KindDocuments {
		return fence.StreamID(r.kind, scope.CourseCode, scope.DirectoryID)
	}
	return fence.StreamID(r.kind, scope.CourseCode)
}

// Get returns cached data for scope when present, otherwise fetches it. No events are published.
func (r *Resource[T]) Get(ctx context.Context, scope models.Scope, opts GetOpts) (*Response[T], error) {
	e := r.engine
	key := models.CacheKey(r.kind, scope)

	if !opts.SkipCache {
		if items, age, ok := cache.Lookup[[]T](e.cache, key); ok {
			resp := newResponse(slices.Clone(items), fence.NoToken)
			resp.FromCache = true
			resp.Age = age
			return resp, nil
		}
	}

	// Flights are per session epoch so a call after expiry never joins an older fetch.
	epoch := e.currentEpoch()
	v, err, _ := r.group.Do(fmt.Sprintf("%s@%d", key, epoch), func() (any, error) {
		tok := e.fence.Begin("get:" + key)
		run := models.NewSyncRun(r.kind, scope, models.OpGet, tok.String(), e.now())

		merged, err := r.orch.Stream(ctx, scope, r.subtypes, tok, nil)
		if err != nil {
			run.Status = models.RunFailed
			run.Error = err.Error()
			e.record(ctx, run)
			return nil, err
		}

		e.mu.Lock()
		if e.epoch == epoch {
			e.cache.Put(key, slices.Clone(merged.Items))
		}
		e.mu.Unlock()

		run.Status = models.RunSucceeded
		run.ItemCount = len(merged.Items)
		run.FailedUnits = len(merged.Failures)
		e.record(ctx, run)

		resp := newResponse(merged.Items, tok)
		resp.Failures = merged.Failures
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp := *(v.(*Response[T]))
	resp.Data = slices.Clone(resp.Data)
	return &resp, nil
}

// Refresh refetches scope, publishing refresh-start before any data.
//
// The returned response has Superseded set when a newer operation on the same stream
// started before this one finished; its data is then not written to the cache.
func (r *Resource[T]) Refresh(ctx context.Context, scope models.Scope, sink Sink[T]) (*Response[T], error) {
	e := r.engine
	id := r.StreamID(scope)

	e.mu.Lock()
	tok := e.fence.Begin(id)
	e.states[id] = StateLoading
	deliver(sink, tasks.RefreshStarted[T](tok, scope))
	e.mu.Unlock()

	return r.run(ctx, scope, id, tok, models.OpRefresh, sink)
}

// Stream returns cached data for scope right away and keeps fetching in the background.
//
// A stream-start marker is published before this returns, followed by a chunk with the
// cached items when there are any. Live events follow as the fetch progresses. ctx
// bounds the background fetch and should outlive the call.
func (r *Resource[T]) Stream(ctx context.Context, scope models.Scope, sink Sink[T]) (*Response[T], error) {
	e := r.engine
	id := r.StreamID(scope)
	key := models.CacheKey(r.kind, scope)

	e.mu.Lock()
	tok := e.fence.Begin(id)
	e.states[id] = StateLoading
	deliver(sink, tasks.StreamStarted[T](tok, scope))

	items, age, hit := cache.Lookup[[]T](e.cache, key)
	if hit {
		deliver(sink, tasks.CachedChunk(tok, scope, slices.Clone(items)))
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := r.run(ctx, scope, id, tok, models.OpStream, sink); err != nil {
			e.logger.Debug("background stream ended with error", "stream", id, "err", err)
		}
	}()

	resp := newResponse(slices.Clone(items), tok)
	resp.FromCache = hit
	resp.Age = age
	return resp, nil
}

// run fetches scope under tok and applies the result if tok is still current.
func (r *Resource[T]) run(ctx context.Context, scope models.Scope, id string, tok fence.Token, op models.Operation, sink Sink[T]) (*Response[T], error) {
	e := r.engine
	run := models.NewSyncRun(r.kind, scope, op, tok.String(), e.now())

	merged, err := r.orch.Stream(ctx, scope, r.subtypes, tok, r.fenced(id, tok, sink))

	e.mu.Lock()
	current := e.fence.IsCurrent(id, tok)
	switch {
	case current && err != nil:
		e.states[id] = StateError
	case current:
		e.cache.Put(models.CacheKey(r.kind, scope), slices.Clone(merged.Items))
		e.states[id] = StateSuccess
	}
	e.mu.Unlock()

	switch {
	case err != nil:
		run.Status = models.RunFailed
		run.Error = err.Error()
	case !current:
		run.Status = models.RunSuperseded
	default:
		run.Status = models.RunSucceeded
	}
	if merged != nil {
		run.ItemCount = len(merged.Items)
		run.FailedUnits = len(merged.Failures)
	}
	e.record(ctx, run)

	if err != nil {
		return nil, err
	}

	resp := newResponse(merged.Items, tok)
	resp.Superseded = !current
	resp.Failures = merged.Failures
	if !current {
		e.logger.Debug("operation superseded", "stream", id, "token", tok)
	}
	return resp, nil
}

// fenced wraps sink so only events of the current token are delivered.
func (r *Resource[T]) fenced(id string, tok fence.Token, sink Sink[T]) tasks.Emitter[T] {
	e := r.engine
	return func(ev tasks.Event[T]) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.fence.IsCurrent(id, tok) {
			e.logger.Debug("dropping stale event", "stream", id, "type", ev.Kind, "token", tok)
			return
		}
		deliver(sink, ev)
	}
}

func deliver[T any](sink Sink[T], ev tasks.Event[T]) {
	if sink != nil {
		sink(ev)
	}
}
