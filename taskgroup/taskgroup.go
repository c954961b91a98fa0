// Package taskgroup provides a structured-concurrency primitive: a
// scoped group of at-most-N-in-flight tasks whose results and errors
// are collected for the caller to inspect per task. It generalizes the
// teacher's named-queue worker pool into an ad-hoc group any workflow
// can spawn for the duration of one call.
package taskgroup

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Result pairs one spawned task's return value with its error. Both
// may be the zero value if the task never ran because the group's
// context was cancelled first.
type Result[T any] struct {
	Value T
	Err   error
}

// Group runs up to N tasks at a time and collects every result,
// best-effort: one task failing does not stop the others.
type Group[T any] struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	results []Result[T]
}

// New creates a Group that runs at most max tasks concurrently.
func New[T any](max int64) *Group[T] {
	if max <= 0 {
		max = 1
	}
	return &Group[T]{sem: semaphore.NewWeighted(max)}
}

// Spawn schedules task to run when a slot is available. If ctx is
// cancelled before a slot opens, the task is skipped and recorded with
// ctx.Err(). Spawn does not block past acquiring the slot; the task
// itself runs in its own goroutine.
func (g *Group[T]) Spawn(ctx context.Context, task func(ctx context.Context) (T, error)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		if err := g.sem.Acquire(ctx, 1); err != nil {
			var zero T
			g.record(Result[T]{Value: zero, Err: err})
			return
		}
		defer g.sem.Release(1)

		value, err := task(ctx)
		g.record(Result[T]{Value: value, Err: err})
	}()
}

func (g *Group[T]) record(r Result[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results = append(g.results, r)
}

// Wait blocks until every spawned task has finished or been skipped,
// then returns all results in completion order.
func (g *Group[T]) Wait() []Result[T] {
	g.wg.Wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.results
}
