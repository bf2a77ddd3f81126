package async

import (
	"context"
	"sync"
)

// Each runs fn for every item with at most limit goroutines in flight and
// waits for all of them. The returned slice has one entry per item, in
// input order; a nil entry means that item succeeded. Items are never
// skipped on sibling failure.
//
// A limit below one runs items sequentially. Context cancellation is
// observed between claims: items not yet started are recorded as failed
// with ctx.Err().
func Each[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) []error {
	errs := make([]error, len(items))
	if len(items) == 0 {
		return errs
	}
	if limit < 1 {
		limit = 1
	}
	if limit > len(items) {
		limit = len(items)
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = fn(ctx, item)
		}(i, item)
	}

	wg.Wait()
	return errs
}

// Failed counts the non-nil entries of an Each result.
func Failed(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
