package resolve

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// DefaultProbeConcurrency is the probe budget when none is configured.
const DefaultProbeConcurrency = 12

// Task is one unit of limited work. Tasks report failure through their
// result value; the limiter never sees errors.
type Task[R any] func(ctx context.Context) R

// Run executes tasks with at most limit in flight and returns their results
// in input order. Tasks start in FIFO order. Once ctx is done no further task
// starts, and the slots of tasks that never ran keep the zero value of R.
func Run[R any](ctx context.Context, limit int, tasks []Task[R]) []R {
	if limit < 1 {
		limit = 1
	}
	results := make([]R, len(tasks))

	p := pool.New().WithMaxGoroutines(limit)
	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		// Go blocks while all workers are busy.
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			results[i] = task(ctx)
		})
	}
	p.Wait()

	return results
}
