package nn

import (
	"runtime"
	"sync"
)

// parallelFor runs fn(i) for i in [0, n) across at most GOMAXPROCS goroutines.
// Callers guarantee that distinct i never write the same memory.
func parallelFor(n int, fn func(i int)) {
	workers := min(n, runtime.GOMAXPROCS(0))
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	next := make(chan int, n)
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)

	wg := sync.WaitGroup{}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				fn(i)
			}
		}()
	}
	wg.Wait()
}
