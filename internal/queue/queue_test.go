package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 4: 4} {
		if got := New(in).Limit(); got != want {
			t.Errorf("New(%d).Limit() = %d, want %d", in, got, want)
		}
	}
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	for _, limit := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			ctx := context.Background()
			q := New(limit)

			var running, peak, completed atomic.Int32
			futures := make([]*Future[int], 0, 25)
			for i := range 25 {
				futures = append(futures, Submit(ctx, q, func(context.Context) (int, error) {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					running.Add(-1)
					completed.Add(1)
					return i, nil
				}))
			}

			for i, f := range futures {
				got, err := f.Wait(ctx)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != i {
					t.Errorf("future %d returned %d", i, got)
				}
			}

			if p := peak.Load(); p > int32(limit) {
				t.Errorf("peak concurrency %d exceeds limit %d", p, limit)
			}
			if c := completed.Load(); c != 25 {
				t.Errorf("expected 25 completions, got %d", c)
			}
			if q.InFlight() != 0 || q.Pending() != 0 {
				t.Errorf("queue not drained: inFlight=%d pending=%d", q.InFlight(), q.Pending())
			}
		})
	}
}

func TestQueue_StartOrder(t *testing.T) {
	ctx := context.Background()
	q := New(1)

	release := make(chan struct{})
	blocker := Submit(ctx, q, func(context.Context) (struct{}, error) {
		<-release
		return struct{}{}, nil
	})

	var mu sync.Mutex
	var order []int
	futures := make([]*Future[struct{}], 0, 10)
	for i := range 10 {
		futures = append(futures, Submit(ctx, q, func(context.Context) (struct{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return struct{}{}, nil
		}))
	}

	if got := q.Pending(); got != 10 {
		t.Errorf("expected 10 pending operations, got %d", got)
	}
	close(release)

	if _, err := blocker.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	for _, f := range futures {
		if _, err := f.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("start order = %v, want ascending", order)
		}
	}
}

func TestQueue_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	q := New(2)
	boom := errors.New("boom")

	failing := Submit(ctx, q, func(context.Context) (string, error) { return "", boom })
	panicking := Submit(ctx, q, func(context.Context) (string, error) { panic("kaboom") })
	ok := Submit(ctx, q, func(context.Context) (string, error) { return "fine", nil })

	if _, err := failing.Wait(ctx); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if _, err := panicking.Wait(ctx); !errors.Is(err, ErrPanic) {
		t.Errorf("expected ErrPanic, got %v", err)
	}
	if got, err := ok.Wait(ctx); err != nil || got != "fine" {
		t.Errorf("healthy op = %q, %v", got, err)
	}

	got, err := Do(ctx, q, func(context.Context) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("queue unusable after failures: %d, %v", got, err)
	}
}

func TestFuture_WaitContext(t *testing.T) {
	q := New(1)
	release := make(chan struct{})
	f := Submit(context.Background(), q, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	close(release)
	<-f.Done()
	if got, err := f.Wait(context.Background()); err != nil || got != 1 {
		t.Errorf("Wait after completion = %d, %v", got, err)
	}
}
