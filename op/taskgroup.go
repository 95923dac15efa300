package op

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/pkg/slogx"
)

// TaskGroup is the fan-out/fan-in utility for asynchronous sub-work. Tasks
// are tracked from Submit until the next Join, which either collects every
// result or cancels all outstanding work.
type TaskGroup struct {
	mu    sync.Mutex
	tasks []*asyncTask
}

type asyncTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	result any
	err    error
}

// Submit schedules fn as a cancellable task derived from ctx and tracks it.
func (g *TaskGroup) Submit(ctx context.Context, fn func(context.Context) (any, error)) {
	tctx, cancel := context.WithCancel(ctx)
	t := &asyncTask{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.result, t.err = fn(tctx)
	}()

	g.mu.Lock()
	g.tasks = append(g.tasks, t)
	g.mu.Unlock()
}

// Len returns the number of tracked tasks.
func (g *TaskGroup) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// Join awaits every tracked task, flattening list-typed results into one
// collected list and clearing the tracked set.
//
// A task failure is logged; with returnExceptions it is swallowed and the
// join continues, otherwise every sibling is cancelled, awaited to
// completion, and the failure is returned. A timeout of zero means no
// deadline; on expiry all outstanding tasks are cancelled and awaited and
// ErrJoinTimeout is returned. No caller ever observes a partial result list.
func (g *TaskGroup) Join(timeout time.Duration, returnExceptions bool) ([]any, error) {
	g.mu.Lock()
	tasks := g.tasks
	g.tasks = nil
	g.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	results := make([]any, 0, len(tasks))
	for i, t := range tasks {
		select {
		case <-t.done:
			t.cancel()
			if t.err != nil {
				slog.Warn("async task failed",
					slog.Int("task", i), slog.Int("total", len(tasks)), slogx.Error(t.err))
				if returnExceptions {
					continue
				}
				cancelAndAwait(tasks)
				return nil, t.err
			}
			results = flattenInto(results, t.result)

		case <-deadline:
			cancelAndAwait(tasks)
			return nil, fmt.Errorf("%w after %s", ErrJoinTimeout, timeout)
		}
	}
	return results, nil
}

// cancelAndAwait cancels every task and waits for each to wind down.
// Failures during cancellation are deliberately dropped; the original error
// is what the caller sees.
func cancelAndAwait(tasks []*asyncTask) {
	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// SubmitAsyncTask schedules fn as a tracked cancellable task, the
// asynchronous analog of SubmitTask.
func (b *Base) SubmitAsyncTask(ctx context.Context, fn func(context.Context) (any, error)) {
	b.tasks.Submit(ctx, fn)
}

// JoinAsyncTasks awaits every task submitted through SubmitAsyncTask. See
// TaskGroup.Join for the timeout and exception semantics.
func (b *Base) JoinAsyncTasks(timeout time.Duration, returnExceptions bool) ([]any, error) {
	return b.tasks.Join(timeout, returnExceptions)
}
