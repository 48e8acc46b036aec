package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/schedule"
	"github.com/san-kum/ecosim/internal/storage"
	"github.com/san-kum/ecosim/internal/telemetry"
)

type Phase int

const (
	PhaseBuilt Phase = iota
	PhaseInitialized
	PhaseRunning
	PhaseCompleted
	PhaseFailed
)

var phaseNames = [...]string{"built", "initialized", "running", "completed", "failed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Observer is notified after every step, before the data set rotates,
// so the current generation holds the step's results.
type Observer interface {
	OnStep(step int, t float64, ds *storage.DataSet)
}

type ObserverFunc func(step int, t float64, ds *storage.DataSet)

func (f ObserverFunc) OnStep(step int, t float64, ds *storage.DataSet) { f(step, t, ds) }

type Option func(*Run)

func WithObservers(obs ...Observer) Option {
	return func(r *Run) { r.observers = append(r.observers, obs...) }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Run) { r.metrics = m }
}

type EquationProfile struct {
	Equation    string
	Evaluations int
	Time        time.Duration
}

type Stats struct {
	Evaluations int
	Substeps    int
	Rejections  int
	// Profile is filled when profiling is enabled, in equation order.
	Profile []EquationProfile
}

type Result struct {
	Model string
	Phase Phase
	// Steps is the number of completed steps.
	Steps       int
	Err         error
	FailureKind error
	Stats       Stats
	Elapsed     time.Duration
}

// Run is one execution of a program over a data set. It moves through
// the phases Built, Initialized, Running and then Completed or Failed;
// a failed run keeps its partial results in the data set.
type Run struct {
	prog *Program
	ds   *storage.DataSet
	cfg  dynamo.Config

	phase  Phase
	step   int
	err    error
	locked bool

	view   *view
	blocks []*blockSystem

	observers []Observer
	metrics   *telemetry.Metrics

	evals   []int
	profile []time.Duration
	elapsed time.Duration
}

// NewRun prepares a run. The data set must come from prog and hold at
// least cfg.Steps steps of inputs.
func NewRun(prog *Program, ds *storage.DataSet, cfg dynamo.Config, opts ...Option) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ds.Space() != prog.Model.Space() {
		return nil, fmt.Errorf("%w: data set was allocated for another model", dynamo.ErrInvalidConfig)
	}
	if ds.Steps() < cfg.Steps {
		return nil, fmt.Errorf("%w: data set holds %d steps, run needs %d", dynamo.ErrInvalidConfig, ds.Steps(), cfg.Steps)
	}

	n := len(prog.eqs)
	r := &Run{
		prog:    prog,
		ds:      ds,
		cfg:     cfg,
		phase:   PhaseBuilt,
		blocks:  make([]*blockSystem, len(prog.Schedule.Units)),
		evals:   make([]int, n),
		profile: make([]time.Duration, n),
	}
	r.view = &view{r: r}
	for i, u := range prog.Schedule.Units {
		if u.Kind != schedule.UnitBlock {
			continue
		}
		b, err := newBlockSystem(r, u)
		if err != nil {
			return nil, err
		}
		r.blocks[i] = b
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Run) AddObserver(o Observer) { r.observers = append(r.observers, o) }

func (r *Run) Phase() Phase { return r.phase }

// Step returns the number of completed steps.
func (r *Run) Step() int { return r.step }

func (r *Run) Err() error { return r.err }

func (r *Run) DataSet() *storage.DataSet { return r.ds }

func (r *Run) logger() *zap.Logger {
	return dynamo.Logger().With(zap.String("model", r.prog.Model.Name))
}

// Initialize locks the data set, clears old results and evaluates every
// initial value once. Initial values end up in the current generation.
func (r *Run) Initialize() error {
	if r.phase != PhaseBuilt {
		return fmt.Errorf("%w: initialize in phase %s", dynamo.ErrPhase, r.phase)
	}
	if err := r.ds.Reset(); err != nil {
		return r.fail(err)
	}
	if err := r.ds.Lock(); err != nil {
		return r.fail(err)
	}
	r.locked = true
	r.ds.BoundsCheck = r.cfg.BoundsCheck
	r.step = 0
	r.ds.BeginStep()

	for _, c := range r.prog.eqs {
		p := c.eq.InitialParameter
		if p == model.NoParameter {
			continue
		}
		if err := r.seed(c, func(off int) float64 { return r.ds.ParameterSlot(p, off) }); err != nil {
			return r.fail(stamp(err, 0, 0))
		}
	}

	for _, id := range r.prog.Schedule.Init {
		c := r.prog.eqs[id]
		for off := 0; off < c.shape.Size(); off++ {
			v, err := r.eval(c, off, 0, nil)
			if err == nil {
				err = r.write(c, off, v)
			}
			if err != nil {
				return r.fail(stamp(err, 0, 0))
			}
		}
		for _, d := range r.prog.eqs {
			if d.eq.InitialEquation != id {
				continue
			}
			if err := r.seed(d, func(off int) float64 { return r.ds.ResultSlot(id, storage.Current, off) }); err != nil {
				return r.fail(stamp(err, 0, 0))
			}
		}
	}

	r.phase = PhaseInitialized
	r.logger().Debug("run initialized", zap.Int("initial_values", len(r.prog.Schedule.Init)))
	return nil
}

// seed writes every instance of c from the slot of its initial value.
func (r *Run) seed(c *compiled, source func(off int) float64) error {
	members := make([]int, c.shape.Rank())
	for off := 0; off < c.shape.Size(); off++ {
		c.shape.Decode(off, members)
		if err := r.write(c, off, source(c.seed.Offset(members))); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs every step. The context is checked between steps.
func (r *Run) Execute(ctx context.Context) error {
	if r.phase != PhaseInitialized {
		return fmt.Errorf("%w: execute in phase %s", dynamo.ErrPhase, r.phase)
	}
	r.phase = PhaseRunning
	log := r.logger()
	log.Info("run started", zap.Int("steps", r.cfg.Steps), zap.Float64("dt", r.cfg.Dt))

	started := time.Now()
	for r.step < r.cfg.Steps {
		select {
		case <-ctx.Done():
			return r.fail(ctx.Err())
		default:
		}

		stepStart := time.Now()
		t := float64(r.step) * r.cfg.Dt
		r.ds.Rotate()

		for i, u := range r.prog.Schedule.Units {
			if err := r.runUnit(i, u, t); err != nil {
				return r.fail(stamp(err, r.step, t))
			}
		}
		for _, o := range r.observers {
			o.OnStep(r.step, t, r.ds)
		}

		r.step++
		r.metrics.Step(time.Since(stepStart))
	}
	r.elapsed = time.Since(started)

	r.phase = PhaseCompleted
	r.unlock()
	log.Info("run completed",
		zap.Int("steps", r.step),
		zap.Int("evaluations", r.totalEvaluations()),
		zap.Duration("elapsed", r.elapsed),
	)
	return nil
}

func (r *Run) runUnit(i int, u *schedule.Unit, t float64) error {
	if b := r.blocks[i]; b != nil {
		return b.advance(t, r.cfg.Dt)
	}
	c := r.prog.eqs[u.Equation]
	for off := 0; off < c.shape.Size(); off++ {
		v, err := r.eval(c, off, t, nil)
		if err != nil {
			return err
		}
		if err := r.write(c, off, v); err != nil {
			return err
		}
	}
	return nil
}

// eval runs the body of c for one instance.
func (r *Run) eval(c *compiled, off int, t float64, stage *blockSystem) (float64, error) {
	v := r.view
	v.bind(c, off, t, stage)
	v.err = nil

	var start time.Time
	if r.cfg.Profile {
		start = time.Now()
	}
	x, err := call(c, off, v)
	if r.cfg.Profile {
		r.profile[c.eq.ID] += time.Since(start)
	}
	r.evals[c.eq.ID]++

	if err != nil {
		v.err = nil
		return 0, err
	}
	if v.err != nil {
		err := v.err
		v.err = nil
		if err.Index == "" {
			err.Index = r.instance(c, off)
		}
		return 0, err
	}
	return x, nil
}

// call runs one body, turning a panic into an error so the run fails
// and releases its data set.
func call(c *compiled, off int, v *view) (x float64, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &dynamo.Error{Kind: dynamo.ErrEquationPanic, Symbol: c.eq.Name, Index: v.r.instance(c, off), Step: -1,
				Detail: fmt.Sprint(p)}
		}
	}()
	return c.eq.Body(v), nil
}

func (r *Run) write(c *compiled, off int, v float64) error {
	if r.cfg.TestForNaN && (math.IsNaN(v) || math.IsInf(v, 0)) {
		return &dynamo.Error{Kind: dynamo.ErrInvalidState, Symbol: c.eq.Name, Index: r.instance(c, off), Step: -1,
			Detail: fmt.Sprintf("value %g", v)}
	}
	if !r.ds.WriteSlot(c.eq.ID, off, v) {
		return &dynamo.Error{Kind: dynamo.ErrWriteConflict, Symbol: c.eq.Name, Index: r.instance(c, off), Step: -1,
			Detail: "slot already written this step"}
	}
	return nil
}

func (r *Run) instance(c *compiled, off int) string {
	if c.shape.Rank() == 0 {
		return ""
	}
	return r.ds.Space().FormatTuple(c.shape.Tuple(off))
}

// stamp attaches the step and time to engine errors.
func stamp(err error, step int, t float64) error {
	var de *dynamo.Error
	if errors.As(err, &de) {
		return de.At(step, t)
	}
	if kind := dynamo.KindOf(err); kind != nil {
		return &dynamo.Error{Kind: kind, Step: step, Time: t, Wrapped: err}
	}
	return fmt.Errorf("step %d: %w", step, err)
}

func (r *Run) fail(err error) error {
	r.phase = PhaseFailed
	r.err = err
	r.unlock()

	kind := dynamo.KindOf(err)
	kindName := "other"
	if kind != nil {
		kindName = kind.Error()
	}
	r.metrics.Error(kindName)
	r.logger().Error("run failed", zap.Int("step", r.step), zap.String("kind", kindName), zap.Error(err))
	return err
}

func (r *Run) unlock() {
	if r.locked {
		r.ds.Unlock()
		r.locked = false
	}
}

func (r *Run) totalEvaluations() int {
	n := 0
	for _, e := range r.evals {
		n += e
	}
	return n
}

// Result summarizes the run so far.
func (r *Run) Result() *Result {
	res := &Result{
		Model:       r.prog.Model.Name,
		Phase:       r.phase,
		Steps:       r.step,
		Err:         r.err,
		FailureKind: dynamo.KindOf(r.err),
		Elapsed:     r.elapsed,
	}
	res.Stats.Evaluations = r.totalEvaluations()
	for _, b := range r.blocks {
		if b != nil {
			res.Stats.Substeps += b.accepted
			res.Stats.Rejections += b.rejected
		}
	}
	if r.cfg.Profile {
		for i, c := range r.prog.eqs {
			res.Stats.Profile = append(res.Stats.Profile, EquationProfile{
				Equation:    c.eq.Name,
				Evaluations: r.evals[i],
				Time:        r.profile[i],
			})
		}
	}
	return res
}

// report pushes the run's counters to the metrics collector.
func (r *Run) report() {
	if r.metrics == nil {
		return
	}
	for i, c := range r.prog.eqs {
		r.metrics.Evaluations(c.eq.Name, r.evals[i])
	}
	for _, b := range r.blocks {
		if b != nil {
			r.metrics.Substeps(b.solver.Name, b.solver.Method, b.accepted, b.rejected)
		}
	}
}

// RunModel initializes and executes a run to the end. The returned
// result is never nil; its error is also returned.
func RunModel(ctx context.Context, prog *Program, ds *storage.DataSet, cfg dynamo.Config, opts ...Option) (*Result, error) {
	r, err := NewRun(prog, ds, cfg, opts...)
	if err != nil {
		return &Result{Model: prog.Model.Name, Phase: PhaseFailed, Err: err, FailureKind: dynamo.KindOf(err)}, err
	}

	start := time.Now()
	r.metrics.RunStarted(prog.Model.Name)
	if err = r.Initialize(); err == nil {
		err = r.Execute(ctx)
	}
	r.report()
	r.metrics.RunFinished(prog.Model.Name, r.phase.String(), time.Since(start))
	return r.Result(), err
}
