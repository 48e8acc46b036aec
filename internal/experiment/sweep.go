package experiment

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/san-kum/ecosim/internal/engine"
	"github.com/san-kum/ecosim/internal/metrics"
	"github.com/san-kum/ecosim/internal/storage"
)

// Trial is one point of a grid search.
type Trial struct {
	Params  map[string]float64
	Metrics map[string]float64
	Result  *engine.Result
}

// GridSearch runs a demo over every combination of parameter values and
// picks the combination minimising one metric.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Workers bounds concurrent runs; 0 means no limit.
	Workers int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Points enumerates the grid, first parameter slowest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.searchRecursive(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) searchRecursive(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, maps.Clone(current))
		return
	}
	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[name] = val
		g.searchRecursive(depth+1, current, out)
	}
	delete(current, name)
}

// Search runs every grid point as one ensemble sharing a single built
// program, and returns the best trial along with all of them.
func (g *GridSearch) Search(ctx context.Context, reg *Registry, cfg Config, metric string) (*Trial, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, nil, fmt.Errorf("grid search: %d parameters for %d ranges", len(g.paramNames), len(g.ranges))
	}
	demo, err := reg.GetModel(cfg.Model)
	if err != nil {
		return nil, nil, err
	}
	prog, err := engine.Build(demo.Model())
	if err != nil {
		return nil, nil, err
	}

	points := g.Points()
	sets := make([]*storage.DataSet, len(points))
	observed := make([][]metrics.Metric, len(points))
	for i, p := range points {
		ds := prog.NewDataSet(cfg.Run.Steps)
		if err := demo.Drive(ds, cfg.Run); err != nil {
			return nil, nil, err
		}
		if err := ApplyOverrides(prog.Model, ds, cfg.Overrides); err != nil {
			return nil, nil, err
		}
		if err := ApplyOverrides(prog.Model, ds, p); err != nil {
			return nil, nil, err
		}
		sets[i] = ds
		observed[i] = reg.DefaultMetrics(cfg.Model, demo, cfg.Run)
	}

	ens := engine.NewEnsemble(prog, g.Workers)
	ens.Options = func(i int) []engine.Option {
		obs := make([]engine.Observer, len(observed[i]))
		for j, m := range observed[i] {
			obs[j] = m
		}
		return []engine.Option{engine.WithObservers(obs...)}
	}
	results, err := ens.Run(ctx, sets, cfg.Run)
	if err != nil {
		return nil, nil, err
	}

	trials := make([]Trial, len(points))
	best := -1
	bestVal := math.Inf(1)
	for i, p := range points {
		values := metrics.Values(observed[i])
		trials[i] = Trial{Params: p, Metrics: values, Result: results[i]}
		v, ok := values[metric]
		if !ok {
			return nil, trials, fmt.Errorf("model %s has no metric %q", cfg.Model, metric)
		}
		if v < bestVal {
			best, bestVal = i, v
		}
	}
	if best < 0 {
		return nil, trials, fmt.Errorf("grid search: no finite value of %q", metric)
	}
	return &trials[best], trials, nil
}
