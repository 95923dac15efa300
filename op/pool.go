package op

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/loomworks/loom/pkg/slogx"
)

// The shared worker pool bounding synchronous fan-out. All sync Parallel
// composites and SubmitTask callers draw from the same budget so a deep tree
// cannot multiply unbounded goroutines.
var (
	poolMu   sync.Mutex
	poolSem  *semaphore.Weighted
	poolSize = int64(runtime.GOMAXPROCS(0)) * 4
)

// SetPoolSize resizes the shared worker pool. It affects tasks submitted
// after the call; tasks already running keep their slot.
func SetPoolSize(n int) {
	if n < 1 {
		n = 1
	}
	poolMu.Lock()
	defer poolMu.Unlock()
	poolSize = int64(n)
	poolSem = semaphore.NewWeighted(poolSize)
}

func pool() *semaphore.Weighted {
	poolMu.Lock()
	defer poolMu.Unlock()
	if poolSem == nil {
		poolSem = semaphore.NewWeighted(poolSize)
	}
	return poolSem
}

// Future is the handle to one pool task.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the task finishes and returns its outcome.
func (f *Future) Wait() (any, error) {
	<-f.done
	return f.result, f.err
}

// Done returns a channel closed when the task finishes.
func (f *Future) Done() <-chan struct{} { return f.done }

func submit(fn func() (any, error)) *Future {
	f := &Future{done: make(chan struct{})}
	sem := pool()
	go func() {
		defer close(f.done)
		if err := sem.Acquire(context.Background(), 1); err != nil {
			f.err = err
			return
		}
		defer sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		f.result, f.err = fn()
	}()
	return f
}

// Go schedules fn on the shared worker pool and returns its future without
// tracking it on any operation. Callers that need to drive a blocking
// operation from context-aware code borrow a worker this way.
func Go(fn func() (any, error)) *Future {
	return submit(fn)
}

// SubmitTask schedules fn on the shared worker pool and tracks it for the
// next JoinTasks. This is the synchronous analog of SubmitAsyncTask.
func (b *Base) SubmitTask(fn func() (any, error)) *Future {
	f := submit(fn)
	b.mu.Lock()
	b.futures = append(b.futures, f)
	b.mu.Unlock()
	return f
}

// JoinTasks waits for every tracked task in submission order, flattening
// list-typed results into one collected list. The join is all-or-nothing: it
// waits for every task before returning, and returns the first failure when
// any task failed.
func (b *Base) JoinTasks() ([]any, error) {
	b.mu.Lock()
	futures := b.futures
	b.futures = nil
	b.mu.Unlock()

	results := make([]any, 0, len(futures))
	var firstErr error
	for i, f := range futures {
		result, err := f.Wait()
		if err != nil {
			slog.Warn("task failed",
				slogx.Op(b.name), slog.Int("task", i), slogx.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = flattenInto(results, result)
		slog.Debug("task joined",
			slogx.Op(b.name), slog.Int("completed", i+1), slog.Int("total", len(futures)))
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// flattenInto appends result to acc, splicing slices and dropping nils.
func flattenInto(acc []any, result any) []any {
	if result == nil {
		return acc
	}
	if list, ok := result.([]any); ok {
		return append(acc, list...)
	}
	rv := reflect.ValueOf(result)
	if rv.Kind() == reflect.Slice {
		for i := 0; i < rv.Len(); i++ {
			acc = append(acc, rv.Index(i).Interface())
		}
		return acc
	}
	return append(acc, result)
}
