package experiment

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/engine"
	"github.com/san-kum/ecosim/internal/metrics"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/models"
	"github.com/san-kum/ecosim/internal/storage"
)

type Config struct {
	Model string
	Run   dynamo.Config
	// Overrides sets every instance of a parameter, by name.
	Overrides map[string]float64
}

// Experiment is one demo run: a built program, a driven data set and
// the observers recording it.
type Experiment struct {
	cfg      Config
	demo     models.Demo
	prog     *engine.Program
	ds       *storage.DataSet
	recorder *engine.Recorder
	metrics  []metrics.Metric
}

type Result struct {
	*engine.Result
	Metrics map[string]float64
}

func New(cfg Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Setup builds the demo's program, allocates and drives its data set
// and applies the parameter overrides.
func (e *Experiment) Setup(demo models.Demo, ms []metrics.Metric) error {
	prog, err := engine.Build(demo.Model())
	if err != nil {
		return fmt.Errorf("build %s: %w", e.cfg.Model, err)
	}
	ds := prog.NewDataSet(e.cfg.Run.Steps)
	if err := demo.Drive(ds, e.cfg.Run); err != nil {
		return fmt.Errorf("drive %s: %w", e.cfg.Model, err)
	}
	if err := ApplyOverrides(prog.Model, ds, e.cfg.Overrides); err != nil {
		return err
	}

	e.demo = demo
	e.prog = prog
	e.ds = ds
	e.recorder = engine.NewRecorder(prog)
	e.metrics = ms
	return nil
}

func (e *Experiment) Run(ctx context.Context, opts ...engine.Option) (*Result, error) {
	if e.prog == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	obs := []engine.Observer{e.recorder}
	for _, m := range e.metrics {
		obs = append(obs, m)
	}
	opts = append([]engine.Option{engine.WithObservers(obs...)}, opts...)

	res, err := engine.RunModel(ctx, e.prog, e.ds, e.cfg.Run, opts...)
	if res == nil {
		return nil, err
	}
	return &Result{Result: res, Metrics: metrics.Values(e.metrics)}, err
}

func (e *Experiment) Program() *engine.Program { return e.prog }

func (e *Experiment) DataSet() *storage.DataSet { return e.ds }

func (e *Experiment) Recorder() *engine.Recorder { return e.recorder }

func (e *Experiment) Config() Config { return e.cfg }

// ApplyOverrides sets every instance of each named parameter. Names are
// applied in sorted order so the first failure is reproducible.
func ApplyOverrides(m *model.Model, ds *storage.DataSet, overrides map[string]float64) error {
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		p, err := m.GetParameterHandle(name)
		if err != nil {
			return err
		}
		if err := ds.SetParameterAll(p, overrides[name]); err != nil {
			return err
		}
	}
	return nil
}
