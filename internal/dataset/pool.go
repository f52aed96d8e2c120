package dataset

import (
	"context"
	"sync"
)

type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunInPool starts up to maxWorkers goroutines that consume queue until it is
// closed or ctx is done, and closes completed once every worker has returned.
func RunInPool[In any, Out any](ctx context.Context, worker func(context.Context, In) (Out, error), queue <-chan In, completed chan<- CompletedTask[Out], maxWorkers int) {
	workers := maxWorkers
	if n := len(queue); n > 0 && n < workers {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for {
					var next In
					var ok bool
					select {
					case <-ctx.Done():
						return
					case next, ok = <-queue:
						if !ok {
							return
						}
					}

					res, err := worker(ctx, next)
					task := CompletedTask[Out]{Result: res, Error: err}
					if err != nil {
						task = CompletedTask[Out]{Error: err}
					}

					select {
					case completed <- task:
					case <-ctx.Done():
						return
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}
