package parallel

import (
	"context"
	"fmt"
	"sync"
)

// ErrTaskPanicked is reported by ForEach when a task panicked instead of returning.
var ErrTaskPanicked = fmt.Errorf("task panicked")

// ForEach runs fn for every index in [0, n) on a pool of the given size.
// The first error cancels the context handed to the remaining tasks and is
// returned once every submitted task has finished. Tasks not yet started when
// the context is cancelled are skipped.
func ForEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error, opts ...PoolOption) error {
	if n <= 0 {
		return ctx.Err()
	}
	if workers > n {
		workers = n
	}

	pool, err := NewWorkerPool(workers, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		i := i
		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			done := false
			defer func() {
				if !done {
					fail(fmt.Errorf("%w: index %d", ErrTaskPanicked, i))
				}
			}()
			if err := fn(ctx, i); err != nil {
				fail(err)
			}
			done = true
		})
	}
	pool.Close()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
