// Package workpool runs independent tasks on a bounded number of goroutines.
package workpool

import (
	"context"
	"sync"
)

// Result pairs a task's output with its error.
type Result[R any] struct {
	Value R
	Err   error
}

// Map applies fn to every task with at most workers running at once and
// returns results in task order. A failing task never stops its siblings;
// callers decide what a per-task error means. Once ctx is cancelled no new
// tasks start and the remaining slots report ctx.Err().
func Map[T, R any](ctx context.Context, workers int, tasks []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(tasks))
	if len(tasks) == 0 {
		return results
	}
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	cancelRest := func(from int) []Result[R] {
		for j := from; j < len(tasks); j++ {
			results[j].Err = ctx.Err()
		}
		wg.Wait()
		return results
	}

	for i, task := range tasks {
		if ctx.Err() != nil {
			return cancelRest(i)
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return cancelRest(i)
		}

		wg.Add(1)
		go func(i int, task T) {
			defer wg.Done()
			defer func() { <-sem }()

			v, err := fn(ctx, task)
			results[i] = Result[R]{Value: v, Err: err}
		}(i, task)
	}

	wg.Wait()
	return results
}
