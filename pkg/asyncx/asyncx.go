// Package asyncx provides small concurrency helpers with first-class context
// support: fan-out over heterogeneous functions and concurrent iteration over
// slices. Helpers always wait for every goroutine they start.
package asyncx

import (
	"context"
	"errors"
	"sync"
)

// All runs a set of functions concurrently and collects every result in the
// original order. It returns the first error encountered but still waits for
// all goroutines to finish.
func All[T any](ctx context.Context, fns ...func(context.Context) (T, error)) ([]T, error) {
	results := make([]T, len(fns))
	errs := make([]error, len(fns))

	var wg sync.WaitGroup
	wg.Add(len(fns))

	for i, fn := range fns {
		go func(i int, fn func(context.Context) (T, error)) {
			defer wg.Done()
			results[i], errs[i] = fn(ctx)
		}(i, fn)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// ForEach applies fn to every element of items concurrently, discarding
// return values. All errors are joined so callers see every failure.
func ForEach[T any](ctx context.Context, items []T, fn func(context.Context, T) error) error {
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	wg.Add(len(items))

	for i, item := range items {
		go func(i int, item T) {
			defer wg.Done()
			errs[i] = fn(ctx, item)
		}(i, item)
	}

	wg.Wait()
	return errors.Join(errs...)
}
