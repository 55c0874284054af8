package syncer

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/portalsync/internal/cache"
	"github.com/desertthunder/portalsync/internal/fence"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/queue"
	"github.com/desertthunder/portalsync/internal/services"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/desertthunder/portalsync/internal/tasks"
)

// State is the lifecycle of one logical stream.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Sink receives the events of one operation.
type Sink[T any] func(tasks.Event[T])

// Recorder persists the outcome of an operation. Failures are logged and ignored.
type Recorder interface {
	Record(ctx context.Context, run *models.SyncRun) error
}

// EngineOpts wires an [Engine]. Either Fetcher or both unit fetchers must be set.
type EngineOpts struct {
	Auth      services.Authenticator
	Directory services.CourseDirectory
	Fetcher   services.Fetcher

	// Override the fetchers built from Fetcher.
	HomeworkUnits tasks.UnitFetcher[models.Homework]
	DocumentUnits tasks.UnitFetcher[models.Document]

	Config   shared.SyncConfig
	Logger   *log.Logger
	Recorder Recorder
	Clock    func() time.Time

	// Override the pacers derived from Config.
	UnitPacer  tasks.Pacer
	BatchPacer tasks.Pacer
}

// Engine owns the process-wide sync state shared by every resource.
type Engine struct {
	Homework  *Resource[models.Homework]
	Documents *Resource[models.Document]

	cache    *cache.Cache
	fence    *fence.Fence
	queue    *queue.Queue
	auth     services.Authenticator
	recorder Recorder
	logger   *log.Logger
	now      func() time.Time

	// mu makes fence checks, sink calls, cache writes and state changes atomic.
	mu     sync.Mutex
	states map[string]State
	epoch  uint64

	wg       sync.WaitGroup
	onExpire []func()
}

// NewEngine builds the engine and its resources.
func NewEngine(opts EngineOpts) *Engine {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	e := &Engine{
		cache:    cache.New(cache.WithClock(now)),
		fence:    fence.New(),
		queue:    queue.New(opts.Config.Concurrency),
		auth:     opts.Auth,
		recorder: opts.Recorder,
		logger:   shared.WithLogger(logger, "component", "syncer"),
		now:      now,
		states:   make(map[string]State),
	}

	taskOpts := tasks.DefaultOptions(opts.Config, logger)
	if opts.UnitPacer != nil {
		taskOpts.UnitPacer = opts.UnitPacer
	}
	if opts.BatchPacer != nil {
		taskOpts.BatchPacer = opts.BatchPacer
	}

	var hw tasks.UnitFetcher[models.Homework] = opts.HomeworkUnits
	if hw == nil {
		hw = services.NewHomeworkFetcher(opts.Fetcher)
	}
	var docs tasks.UnitFetcher[models.Document] = opts.DocumentUnits
	if docs == nil {
		docs = services.NewDocumentFetcher(opts.Fetcher)
	}

	docTypes := opts.Config.DocumentTypes
	if len(docTypes) == 0 {
		docTypes = shared.DefaultConfig().Sync.DocumentTypes
	}

	e.Homework = newResource(e, models.KindHomework, []string{string(models.KindHomework)},
		tasks.NewOrchestrator(models.KindHomework, opts.Auth, opts.Directory, hw, e.queue, taskOpts))
	e.Documents = newResource(e, models.KindDocuments, docTypes,
		tasks.NewOrchestrator(models.KindDocuments, opts.Auth, opts.Directory, docs, e.queue, taskOpts))
	return e
}

// Cache exposes the freshness cache for inspection.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Fence exposes the request fence for inspection.
func (e *Engine) Fence() *fence.Fence { return e.fence }

// Queue exposes the shared request queue for inspection.
func (e *Engine) Queue() *queue.Queue { return e.queue }

// State returns the lifecycle state of streamID.
func (e *Engine) State(streamID string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.states[streamID]; ok {
		return s
	}
	return StateIdle
}

// States returns a copy of the state table.
func (e *Engine) States() map[string]State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.states)
}

// OnSessionExpired registers fn to run after the engine has cleared its state.
func (e *Engine) OnSessionExpired(fn func()) {
	e.mu.Lock()
	e.onExpire = append(e.onExpire, fn)
	e.mu.Unlock()
}

// HandleSessionExpired drops everything tied to the previous identity.
func (e *Engine) HandleSessionExpired() {
	e.mu.Lock()
	e.cache.InvalidateAll()
	e.fence.Reset()
	for id := range e.states {
		e.states[id] = StateIdle
	}
	e.epoch++
	hooks := append([]func(){}, e.onExpire...)
	e.mu.Unlock()

	e.logger.Info("session expired; cache and streams reset")
	for _, fn := range hooks {
		fn()
	}
}

// WatchSession handles expiry signals from the auth collaborator until ctx is done.
func (e *Engine) WatchSession(ctx context.Context) {
	if e.auth == nil {
		return
	}
	expired := e.auth.Expired()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-expired:
			if !ok {
				return
			}
			e.HandleSessionExpired()
		}
	}
}

// Wait blocks until every background stream fetch has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) record(ctx context.Context, run *models.SyncRun) {
	if e.recorder == nil {
		return
	}
	run.FinishedAt = e.now()
	if err := e.recorder.Record(ctx, run); err != nil {
		e.logger.Warn("failed to record sync run", "kind", run.Kind, "scope", run.Scope, "err", err)
	}
}

func (e *Engine) currentEpoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}
