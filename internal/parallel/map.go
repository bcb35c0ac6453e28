package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result of one mapFunc call.
type Result[D any] struct {
	Value D
	Err   error
}

// Map calls mapFunc for every element of input with at most limit calls in
// flight and waits for all of them. The i-th result belongs to input[i]. A
// failed call does not stop the others; once ctx is done the remaining
// elements are not mapped and their results carry ctx.Err(). A limit lower
// than 1 means no limit.
func Map[E, D any](ctx context.Context, limit int, input []E, mapFunc func(context.Context, E) (D, error)) []Result[D] {
	results := make([]Result[D], len(input))
	if limit < 1 {
		limit = -1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i, e := range input {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			d, err := mapFunc(ctx, e)
			results[i] = Result[D]{Value: d, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
