package testutil

import (
	"errors"
	"sync"

	dErrors "tripkey/pkg/domain-errors"
	"tripkey/pkg/platform/sentinel"
)

// ConcurrentResult counts outcomes of a concurrent run.
type ConcurrentResult struct {
	Successes int32
	// Conflicts are duplicate writes: sentinel.ErrConflict, sentinel.ErrAlreadyUsed
	// or a domain validation error.
	Conflicts int32
	NotFounds int32
	Errors    int32
	// Errs holds every non-nil error in completion order.
	Errs []error
}

func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.NotFounds + r.Errors
}

// RunConcurrent starts goroutines that all block on a shared gate, then
// releases them together so fn calls overlap as much as the scheduler allows.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var (
		ready sync.WaitGroup
		done  sync.WaitGroup
		mu    sync.Mutex
		res   ConcurrentResult
	)
	gate := make(chan struct{})

	for i := range goroutines {
		ready.Add(1)
		done.Add(1)
		go func() {
			defer done.Done()
			ready.Done()
			<-gate
			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			res.record(err)
		}()
	}

	ready.Wait()
	close(gate)
	done.Wait()
	return &res
}

func (r *ConcurrentResult) record(err error) {
	switch {
	case err == nil:
		r.Successes++
		return
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyUsed),
		dErrors.HasCode(err, dErrors.CodeValidation), dErrors.HasCode(err, dErrors.CodeConflict):
		r.Conflicts++
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		r.NotFounds++
	default:
		r.Errors++
	}
	r.Errs = append(r.Errs, err)
}
