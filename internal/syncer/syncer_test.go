package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/portalsync/internal/fence"
	"github.com/desertthunder/portalsync/internal/models"
	"github.com/desertthunder/portalsync/internal/shared"
	"github.com/desertthunder/portalsync/internal/tasks"
)

type fakeAuth struct {
	ok      atomic.Bool
	expired chan struct{}
}

func newFakeAuth() *fakeAuth {
	a := &fakeAuth{expired: make(chan struct{}, 1)}
	a.ok.Store(true)
	return a
}

func (a *fakeAuth) IsAuthenticated() bool    { return a.ok.Load() }
func (a *fakeAuth) Expired() <-chan struct{} { return a.expired }

type fakeDirectory struct{ courses []models.Course }

func (d fakeDirectory) CurrentSemester(context.Context) (models.Semester, error) {
	return models.Semester{Code: "2025S"}, nil
}

func (d fakeDirectory) ListCourses(context.Context, models.Semester) ([]models.Course, error) {
	return d.courses, nil
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []*models.SyncRun
}

func (r *fakeRecorder) Record(_ context.Context, run *models.SyncRun) error {
	r.mu.Lock()
	r.runs = append(r.runs, run)
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) statuses() []models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RunStatus, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run.Status)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// eventLog is a sink that keeps every delivered event and feeds a working set.
type eventLog struct {
	mu     sync.Mutex
	events []tasks.Event[models.Homework]
	ws     *WorkingSet[models.Homework]
}

func newEventLog() *eventLog {
	return &eventLog{ws: NewWorkingSet[models.Homework]()}
}

func (l *eventLog) sink(ev tasks.Event[models.Homework]) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	l.ws.Apply(ev)
}

func (l *eventLog) snapshot() []tasks.Event[models.Homework] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]tasks.Event[models.Homework](nil), l.events...)
}

var testCourses = []models.Course{{ID: "1", Code: "CS101", Name: "Intro"}}

type engineOption func(*EngineOpts)

func newTestEngine(t *testing.T, hw tasks.UnitFetcher[models.Homework], opts ...engineOption) *Engine {
	t.Helper()
	o := EngineOpts{
		Auth:          newFakeAuth(),
		Directory:     fakeDirectory{courses: testCourses},
		HomeworkUnits: hw,
		Config:        shared.DefaultConfig().Sync,
		Logger:        shared.NewLogger(io.Discard),
		UnitPacer:     tasks.NoPacer{},
		BatchPacer:    tasks.NoPacer{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return NewEngine(o)
}

func hw(id string) models.Homework {
	return models.Homework{ID: id, CourseID: "1", CourseName: "Intro", Title: "Assignment " + id}
}

// blockingFetcher blocks its first call until release is closed.
type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	first   []models.Homework
	rest    []models.Homework
}

func newBlockingFetcher(first, rest []models.Homework) *blockingFetcher {
	return &blockingFetcher{started: make(chan struct{}), release: make(chan struct{}), first: first, rest: rest}
}

func (b *blockingFetcher) FetchUnit(context.Context, models.FetchUnit) ([]models.Homework, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
		<-b.release
		return b.first, nil
	}
	return b.rest, nil
}

func staticFetcher(items ...models.Homework) (*atomic.Int32, tasks.UnitFetcher[models.Homework]) {
	var calls atomic.Int32
	return &calls, tasks.UnitFetcherFunc[models.Homework](func(context.Context, models.FetchUnit) ([]models.Homework, error) {
		calls.Add(1)
		return items, nil
	})
}

func TestResource_Get(t *testing.T) {
	ctx := context.Background()
	scope := models.Scope{CourseCode: "CS101"}

	t.Run("serves an old entry without fetching", func(t *testing.T) {
		clk := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
		calls, units := staticFetcher(hw("fresh"))
		eng := newTestEngine(t, units, func(o *EngineOpts) { o.Clock = clk.Now })

		eng.Cache().Put(models.CacheKey(models.KindHomework, scope), []models.Homework{hw("cached")})
		clk.Advance(240000 * time.Millisecond)

		resp, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if !resp.FromCache {
			t.Error("expected FromCache")
		}
		if resp.Age != 240000*time.Millisecond {
			t.Errorf("Age = %v, want 240000ms", resp.Age)
		}
		if len(resp.Data) != 1 || resp.Data[0].ID != "cached" {
			t.Errorf("Data = %+v", resp.Data)
		}
		if calls.Load() != 0 {
			t.Errorf("expected no fetch, got %d", calls.Load())
		}
	})

	t.Run("miss fetches and fills the cache", func(t *testing.T) {
		calls, units := staticFetcher(hw("a"), hw("b"))
		rec := &fakeRecorder{}
		eng := newTestEngine(t, units, func(o *EngineOpts) { o.Recorder = rec })

		resp, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if resp.FromCache || len(resp.Data) != 2 || resp.Token == fence.NoToken {
			t.Errorf("unexpected response %+v", resp)
		}

		again, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if !again.FromCache || calls.Load() != 1 {
			t.Errorf("second get should hit the cache: fromCache=%v calls=%d", again.FromCache, calls.Load())
		}
		if got := rec.statuses(); len(got) != 1 || got[0] != models.RunSucceeded {
			t.Errorf("recorded runs = %v", got)
		}
	})

	t.Run("skip cache is idempotent", func(t *testing.T) {
		clk := &testClock{now: time.Now()}
		_, units := staticFetcher(hw("a"), hw("b"), hw("c"))
		eng := newTestEngine(t, units, func(o *EngineOpts) { o.Clock = clk.Now })

		first, err := eng.Homework.Get(ctx, scope, GetOpts{SkipCache: true})
		if err != nil {
			t.Fatal(err)
		}
		second, err := eng.Homework.Get(ctx, scope, GetOpts{SkipCache: true})
		if err != nil {
			t.Fatal(err)
		}

		a, _ := json.Marshal(first.Data)
		b, _ := json.Marshal(second.Data)
		if string(a) != string(b) || first.Fingerprint != second.Fingerprint {
			t.Errorf("data differs between identical fetches:\n%s\n%s", a, b)
		}

		clk.Advance(time.Minute)
		later, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if second.Age > later.Age {
			t.Errorf("fresh fetch age %v should not exceed later read age %v", second.Age, later.Age)
		}
	})

	t.Run("concurrent misses share one fetch", func(t *testing.T) {
		units := newBlockingFetcher([]models.Homework{hw("x")}, nil)
		eng := newTestEngine(t, units)

		var wg sync.WaitGroup
		results := make(chan *Response[models.Homework], 5)
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := eng.Homework.Get(ctx, scope, GetOpts{})
				if err != nil {
					t.Error(err)
					return
				}
				results <- resp
			}()
		}

		<-units.started
		time.Sleep(10 * time.Millisecond)
		close(units.release)
		wg.Wait()
		close(results)

		if units.calls.Load() != 1 {
			t.Errorf("expected one fetch, got %d", units.calls.Load())
		}
		for resp := range results {
			if len(resp.Data) != 1 || resp.Data[0].ID != "x" {
				t.Errorf("unexpected data %+v", resp.Data)
			}
		}
	})

	t.Run("structural failure is returned", func(t *testing.T) {
		_, units := staticFetcher()
		auth := newFakeAuth()
		auth.ok.Store(false)
		eng := newTestEngine(t, units, func(o *EngineOpts) { o.Auth = auth })

		if _, err := eng.Homework.Get(ctx, scope, GetOpts{}); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
		if eng.Cache().Len() != 0 {
			t.Error("failed fetch must not write the cache")
		}
	})

	t.Run("call after session expiry starts its own fetch", func(t *testing.T) {
		units := newBlockingFetcher([]models.Homework{hw("old-identity")}, []models.Homework{hw("new-identity")})
		eng := newTestEngine(t, units)

		done := make(chan *Response[models.Homework], 1)
		go func() {
			resp, err := eng.Homework.Get(ctx, scope, GetOpts{})
			if err != nil {
				t.Error(err)
			}
			done <- resp
		}()

		<-units.started
		eng.HandleSessionExpired()

		resp, err := eng.Homework.Get(ctx, scope, GetOpts{SkipCache: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Data) != 1 || resp.Data[0].ID != "new-identity" {
			t.Errorf("expected data of the new session, got %+v", resp.Data)
		}
		if units.calls.Load() != 2 {
			t.Errorf("expected 2 fetches, got %d", units.calls.Load())
		}

		close(units.release)
		<-done

		cached, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if !cached.FromCache || len(cached.Data) != 1 || cached.Data[0].ID != "new-identity" {
			t.Errorf("earlier flight must not overwrite the cache, got %+v", cached.Data)
		}
	})

	t.Run("callers cannot modify cached data", func(t *testing.T) {
		_, units := staticFetcher(hw("a"))
		eng := newTestEngine(t, units)

		fetched, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		fetched.Data[0].Title = "changed by caller"

		hit, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if hit.Data[0].Title != "Assignment a" {
			t.Errorf("cache was modified through a returned slice: %q", hit.Data[0].Title)
		}
		if hit.Fingerprint != fetched.Fingerprint {
			t.Errorf("fingerprint changed: %s vs %s", hit.Fingerprint, fetched.Fingerprint)
		}
	})
}

func TestResource_Refresh(t *testing.T) {
	ctx := context.Background()
	scope := models.Scope{CourseCode: "CS101"}

	t.Run("double refresh keeps only the latest", func(t *testing.T) {
		units := newBlockingFetcher([]models.Homework{hw("old")}, []models.Homework{hw("new")})
		rec := &fakeRecorder{}
		eng := newTestEngine(t, units, func(o *EngineOpts) { o.Recorder = rec })
		log := newEventLog()

		type result struct {
			resp *Response[models.Homework]
			err  error
		}
		firstDone := make(chan result, 1)
		go func() {
			resp, err := eng.Homework.Refresh(ctx, scope, log.sink)
			firstDone <- result{resp, err}
		}()

		<-units.started
		second, err := eng.Homework.Refresh(ctx, scope, log.sink)
		if err != nil {
			t.Fatal(err)
		}
		close(units.release)
		first := <-firstDone
		if first.err != nil {
			t.Fatal(first.err)
		}

		if !first.resp.Superseded || second.Superseded {
			t.Errorf("superseded flags: first=%v second=%v", first.resp.Superseded, second.Superseded)
		}

		events := log.snapshot()
		var secondStart = -1
		for i, ev := range events {
			if ev.Kind == tasks.EventRefreshStart && ev.Token == second.Token {
				secondStart = i
			}
			if ev.Token == first.resp.Token && ev.Kind != tasks.EventRefreshStart {
				t.Errorf("event %s of the superseded refresh reached the sink", ev.Kind)
			}
		}
		if secondStart < 0 {
			t.Fatal("second refresh-start not delivered")
		}

		snap := log.ws.Snapshot()
		if snap.Token != second.Token {
			t.Errorf("working set token = %q, want %q", snap.Token, second.Token)
		}
		if len(snap.Items) != 1 || snap.Items[0].ID != "new" {
			t.Errorf("working set items = %+v", snap.Items)
		}
		if snap.Loading {
			t.Error("working set should have completed")
		}

		cached, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if !cached.FromCache || cached.Data[0].ID != "new" {
			t.Errorf("cache holds %+v", cached.Data)
		}
		if eng.State(eng.Homework.StreamID(scope)) != StateSuccess {
			t.Errorf("state = %s", eng.State(eng.Homework.StreamID(scope)))
		}

		statuses := rec.statuses()
		if len(statuses) != 2 || statuses[0] != models.RunSucceeded || statuses[1] != models.RunSuperseded {
			t.Errorf("recorded statuses = %v", statuses)
		}
	})

	t.Run("refresh-start precedes data", func(t *testing.T) {
		_, units := staticFetcher(hw("a"))
		eng := newTestEngine(t, units)
		log := newEventLog()

		if _, err := eng.Homework.Refresh(ctx, scope, log.sink); err != nil {
			t.Fatal(err)
		}

		events := log.snapshot()
		want := []tasks.EventKind{tasks.EventRefreshStart, tasks.EventProgress, tasks.EventChunk, tasks.EventComplete}
		if len(events) != len(want) {
			t.Fatalf("got %d events, want %d", len(events), len(want))
		}
		for i, k := range want {
			if events[i].Kind != k {
				t.Errorf("event %d = %s, want %s", i, events[i].Kind, k)
			}
		}
	})

	t.Run("error keeps cached data", func(t *testing.T) {
		calls, units := staticFetcher(hw("a"))
		auth := newFakeAuth()
		eng := newTestEngine(t, units, func(o *EngineOpts) { o.Auth = auth })

		if _, err := eng.Homework.Get(ctx, scope, GetOpts{}); err != nil {
			t.Fatal(err)
		}
		auth.ok.Store(false)

		log := newEventLog()
		if _, err := eng.Homework.Refresh(ctx, scope, log.sink); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
		if eng.State(eng.Homework.StreamID(scope)) != StateError {
			t.Errorf("state = %s", eng.State(eng.Homework.StreamID(scope)))
		}
		if snap := log.ws.Snapshot(); snap.Err == "" || snap.Loading {
			t.Errorf("working set should carry the error: %+v", snap)
		}

		cached, _ := eng.Homework.Get(ctx, scope, GetOpts{})
		if !cached.FromCache || len(cached.Data) != 1 || calls.Load() != 1 {
			t.Errorf("cached data should be untouched: %+v", cached)
		}
	})

	t.Run("refresh result is a copy of the cache entry", func(t *testing.T) {
		_, units := staticFetcher(hw("a"), hw("b"))
		eng := newTestEngine(t, units)

		resp, err := eng.Homework.Refresh(ctx, scope, nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Data[0].Title = "changed by caller"

		hit, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if !hit.FromCache || hit.Data[0].Title != "Assignment a" {
			t.Errorf("cached title = %q", hit.Data[0].Title)
		}
		if hit.Fingerprint != resp.Fingerprint {
			t.Errorf("fingerprint changed: %s vs %s", hit.Fingerprint, resp.Fingerprint)
		}
	})
}

func TestResource_Stream(t *testing.T) {
	ctx := context.Background()
	scope := models.AllCourses

	t.Run("returns cache then merges live data", func(t *testing.T) {
		_, units := staticFetcher(hw("a"), hw("b"))
		eng := newTestEngine(t, units)
		eng.Cache().Put(models.CacheKey(models.KindHomework, scope), []models.Homework{hw("a")})

		log := newEventLog()
		resp, err := eng.Homework.Stream(ctx, scope, log.sink)
		if err != nil {
			t.Fatal(err)
		}
		if !resp.FromCache || len(resp.Data) != 1 {
			t.Errorf("initial response = %+v", resp)
		}

		eng.Wait()

		events := log.snapshot()
		if events[0].Kind != tasks.EventStreamStart || events[0].Token != resp.Token {
			t.Errorf("first event = %+v", events[0])
		}
		if events[1].Kind != tasks.EventChunk || !events[1].FromCache {
			t.Errorf("second event should replay the cache: %+v", events[1])
		}
		if last := events[len(events)-1]; last.Kind != tasks.EventComplete {
			t.Errorf("last event = %s", last.Kind)
		}

		snap := log.ws.Snapshot()
		if len(snap.Items) != 2 {
			t.Errorf("working set should de-duplicate by id, got %+v", snap.Items)
		}

		cached, _ := eng.Homework.Get(ctx, scope, GetOpts{})
		if len(cached.Data) != 2 {
			t.Errorf("cache should hold the fresh result, got %+v", cached.Data)
		}
	})

	t.Run("cold stream", func(t *testing.T) {
		_, units := staticFetcher(hw("a"))
		eng := newTestEngine(t, units)

		resp, err := eng.Homework.Stream(ctx, scope, nil)
		if err != nil {
			t.Fatal(err)
		}
		if resp.FromCache || resp.Data == nil || len(resp.Data) != 0 {
			t.Errorf("cold response = %+v", resp)
		}
		eng.Wait()
	})

	t.Run("session expiry mid-stream", func(t *testing.T) {
		units := newBlockingFetcher([]models.Homework{hw("stale")}, []models.Homework{hw("fresh")})
		eng := newTestEngine(t, units)
		eng.Cache().Put(models.CacheKey(models.KindHomework, models.Scope{CourseCode: "CS101"}), []models.Homework{hw("x")})

		expired := 0
		eng.OnSessionExpired(func() { expired++ })

		log := newEventLog()
		resp, err := eng.Homework.Stream(ctx, scope, log.sink)
		if err != nil {
			t.Fatal(err)
		}

		<-units.started
		eng.HandleSessionExpired()
		close(units.release)
		eng.Wait()

		for _, ev := range log.snapshot() {
			if ev.Token == resp.Token && ev.Kind != tasks.EventStreamStart {
				t.Errorf("event %s delivered after expiry", ev.Kind)
			}
		}
		if eng.Cache().Len() != 0 {
			t.Errorf("cache should be empty, has %v", eng.Cache().Keys())
		}
		if eng.State(eng.Homework.StreamID(scope)) != StateIdle {
			t.Errorf("state = %s", eng.State(eng.Homework.StreamID(scope)))
		}
		if expired != 1 {
			t.Errorf("expiry hooks ran %d times", expired)
		}

		later, err := eng.Homework.Get(ctx, scope, GetOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if later.FromCache || later.Data[0].ID != "fresh" {
			t.Errorf("get after expiry should miss, got %+v", later)
		}
	})
}

func TestEngine_WatchSession(t *testing.T) {
	auth := newFakeAuth()
	_, units := staticFetcher(hw("a"))
	eng := newTestEngine(t, units, func(o *EngineOpts) { o.Auth = auth })
	eng.Cache().Put("homework:all", []models.Homework{hw("a")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.WatchSession(ctx)
		close(done)
	}()

	auth.expired <- struct{}{}
	deadline := time.Now().Add(time.Second)
	for eng.Cache().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("cache was not invalidated")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]models.Homework{hw("1"), hw("2")})
	b := Fingerprint([]models.Homework{hw("1"), hw("2")})
	c := Fingerprint([]models.Homework{hw("2"), hw("1")})
	if a != b {
		t.Error("identical data should hash the same")
	}
	if a == c {
		t.Error("order is part of the fingerprint")
	}
	if Fingerprint[models.Homework](nil) != Fingerprint([]models.Homework{}) {
		t.Error("nil and empty data should hash the same")
	}
}

func TestResponse_MarshalJSON(t *testing.T) {
	resp := Response[models.Homework]{FromCache: true, Age: 1500 * time.Millisecond, Token: "tok"}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["age"] != float64(1500) || got["responseId"] != "tok" || got["fromCache"] != true {
		t.Errorf("unexpected encoding %s", b)
	}
	if data, ok := got["data"].([]any); !ok || len(data) != 0 {
		t.Errorf("data should encode as an empty array: %s", b)
	}
}
