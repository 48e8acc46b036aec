package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/storage"
)

// Ensemble runs one program over several data sets, typically parameter
// variations of one scenario. Every run has its own state, so results
// are the same as running the sets one after another.
type Ensemble struct {
	prog    *Program
	workers int
	// Options returns the options of run i. Observers must not be shared
	// between runs.
	Options func(i int) []Option
}

// NewEnsemble runs at most workers runs at once; 0 means no limit.
func NewEnsemble(prog *Program, workers int) *Ensemble {
	return &Ensemble{prog: prog, workers: workers}
}

// Run executes every set and returns the results in order. The first
// failure cancels the runs still in progress.
func (e *Ensemble) Run(ctx context.Context, sets []*storage.DataSet, cfg dynamo.Config) ([]*Result, error) {
	results := make([]*Result, len(sets))

	g, ctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i, ds := range sets {
		var opts []Option
		if e.Options != nil {
			opts = e.Options(i)
		}
		g.Go(func() error {
			res, err := RunModel(ctx, e.prog, ds, cfg, opts...)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	return results, err
}
