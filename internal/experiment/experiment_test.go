package experiment

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/engine"
)

func runConfig(model string, steps int) Config {
	cfg := dynamo.DefaultConfig()
	cfg.Steps = steps
	return Config{Model: model, Run: cfg}
}

func TestRegistryListsModels(t *testing.T) {
	r := NewRegistry()
	if got := r.ListModels(); !slices.Equal(got, []string{"lake", "magic", "reservoir"}) {
		t.Errorf("unexpected models %v", got)
	}
	if _, err := r.GetModel("pendulum"); err == nil {
		t.Error("expected unknown model to fail")
	}
	if !slices.Contains(r.ListSolvers(), "rk45") {
		t.Errorf("expected rk45 among solvers, got %v", r.ListSolvers())
	}
}

func TestExperimentRun(t *testing.T) {
	r := NewRegistry()
	for _, name := range r.ListModels() {
		t.Run(name, func(t *testing.T) {
			cfg := runConfig(name, 30)
			demo, err := r.GetModel(name)
			if err != nil {
				t.Fatal(err)
			}
			exp := New(cfg)
			if err := exp.Setup(demo, r.DefaultMetrics(name, demo, cfg.Run)); err != nil {
				t.Fatalf("setup: %v", err)
			}
			res, err := exp.Run(context.Background())
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.Phase != engine.PhaseCompleted || res.Steps != 30 {
				t.Errorf("expected 30 completed steps, got %d (%s)", res.Steps, res.Phase)
			}
			if len(res.Metrics) == 0 {
				t.Error("expected default metrics")
			}
			if exp.Recorder().Len() != 30 {
				t.Errorf("expected 30 recorded steps, got %d", exp.Recorder().Len())
			}
		})
	}
}

func TestRunBeforeSetup(t *testing.T) {
	if _, err := New(runConfig("lake", 1)).Run(context.Background()); err == nil {
		t.Error("expected run without setup to fail")
	}
}

func TestOverrides(t *testing.T) {
	r := NewRegistry()
	demo, _ := r.GetModel("lake")
	cfg := runConfig("lake", 5)
	cfg.Overrides = map[string]float64{"Initial water level": 12}

	exp := New(cfg)
	if err := exp.Setup(demo, nil); err != nil {
		t.Fatalf("setup: %v", err)
	}
	p, _ := exp.Program().Model.GetParameterHandle("Initial water level")
	if v, _ := exp.DataSet().Parameter(p, nil); v != 12 {
		t.Errorf("expected override 12, got %f", v)
	}

	cfg.Overrides = map[string]float64{"Lake depth": 3}
	demo, _ = r.GetModel("lake")
	if err := New(cfg).Setup(demo, nil); !errors.Is(err, dynamo.ErrUnknownSymbol) {
		t.Errorf("expected unknown parameter, got %v", err)
	}

	cfg.Overrides = map[string]float64{"Lake shore slope": 10}
	demo, _ = r.GetModel("lake")
	if err := New(cfg).Setup(demo, nil); !errors.Is(err, dynamo.ErrParameterBounds) {
		t.Errorf("expected out of range parameter, got %v", err)
	}
}

func TestGridPoints(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {10, 20, 30}})
	points := g.Points()
	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}
	if points[0]["a"] != 1 || points[0]["b"] != 10 || points[5]["a"] != 2 || points[5]["b"] != 30 {
		t.Errorf("unexpected order %v", points)
	}
}

func TestGridSearchPicksFastestDrain(t *testing.T) {
	g := NewGridSearch([]string{"Residence time"}, [][]float64{{80, 5, 20}})
	g.Workers = 2

	best, trials, err := g.Search(context.Background(), NewRegistry(), runConfig("reservoir", 60), "peak_storage")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(trials) != 3 {
		t.Fatalf("expected 3 trials, got %d", len(trials))
	}
	if best.Params["Residence time"] != 5 {
		t.Errorf("expected residence time 5 to keep storage lowest, got %v", best.Params)
	}
	for _, tr := range trials {
		if tr.Result.Phase != engine.PhaseCompleted {
			t.Errorf("trial %v ended %s", tr.Params, tr.Result.Phase)
		}
	}
}

func TestGridSearchUnknownMetric(t *testing.T) {
	g := NewGridSearch(nil, nil)
	if _, _, err := g.Search(context.Background(), NewRegistry(), runConfig("lake", 3), "energy"); err == nil {
		t.Error("expected unknown metric to fail")
	}
}
