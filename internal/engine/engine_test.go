package engine_test

import (
	"bytes"
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/engine"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
	"github.com/san-kum/ecosim/internal/telemetry"
)

func read(ds *storage.DataSet, eq model.EquationID, names ...string) float64 {
	GinkgoHelper()
	t, err := ds.Space().Tuple(names...)
	Expect(err).NotTo(HaveOccurred())
	v, err := ds.Read(eq, t, storage.Current)
	Expect(err).NotTo(HaveOccurred())
	return v
}

func build(m *model.Model) *engine.Program {
	GinkgoHelper()
	prog, err := engine.Build(m)
	Expect(err).NotTo(HaveOccurred())
	return prog
}

func config(steps int, dt float64) dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.Steps = steps
	cfg.Dt = dt
	return cfg
}

// decayModel is y' = -k*y with y(0) = 2 and k = 0.5.
func decayModel(method string) (*model.Model, model.EquationID) {
	m := model.New("decay")
	k := m.RegisterParameterDouble(model.NoGroup, "k", model.NoUnit, 0.5, 0, 10, "")
	y0 := m.RegisterParameterDouble(model.NoGroup, "y0", model.NoUnit, 2, 0, 10, "")
	s := m.RegisterSolver("Decay", method, 1)

	var y model.EquationID
	y = m.RegisterEquationODE("y", model.NoUnit, func(v model.View) float64 {
		return -v.Parameter(k) * v.Result(y)
	})
	m.SetSolver(y, s)
	m.SetInitialValueParameter(y, y0)
	return m, y
}

// compartments registers Compartment {A, B} and a parameter P over it
// with default 1.
func compartments(m *model.Model) (index.SetID, model.ParameterID) {
	comp := m.RegisterIndexSet("Compartment", "A", "B")
	soil := m.RegisterParameterGroup("Soil", comp)
	p := m.RegisterParameterDouble(soil, "P", model.NoUnit, 1, 0, 10, "")
	return comp, p
}

var _ = Describe("Build", func() {
	It("reports registration errors before anything else", func() {
		m := model.New("dup")
		m.RegisterEquation("A", model.NoUnit, func(model.View) float64 { return 0 })
		m.RegisterEquation("A", model.NoUnit, func(model.View) float64 { return 0 })

		_, err := engine.Build(m)
		Expect(err).To(MatchError(dynamo.ErrNameCollision))
	})

	It("rejects unknown integration methods", func() {
		m, _ := decayModel("leapfrog")
		_, err := engine.Build(m)
		Expect(err).To(MatchError(dynamo.ErrUnknownSymbol))
	})

	It("rejects same-step cycles", func() {
		m := model.New("cycle")
		var a, b model.EquationID
		a = m.RegisterEquation("A", model.NoUnit, func(v model.View) float64 { return v.Result(b) })
		b = m.RegisterEquation("B", model.NoUnit, func(v model.View) float64 { return v.Result(a) })

		_, err := engine.Build(m)
		Expect(err).To(MatchError(dynamo.ErrCyclicDependency))
	})

	It("freezes the model", func() {
		m, _ := decayModel("rk4")
		build(m)
		Expect(m.Frozen()).To(BeTrue())
	})

	It("describes the result structure", func() {
		m := model.New("describe")
		comp, p := compartments(m)
		m.RegisterEquation("E", model.NoUnit, func(v model.View) float64 { return 2 * v.Parameter(p) })
		prog := build(m)
		Expect(prog.Signature(0)).To(Equal(index.Signature{comp}))

		var buf bytes.Buffer
		Expect(prog.Describe(&buf)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("Compartment (2): A B"))
		Expect(buf.String()).To(MatchRegexp(`\{Compartment\}\s+E\s+algebraic`))
	})
})

var _ = Describe("Run", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("indexing", func() {
		var (
			m    *model.Model
			comp index.SetID
			p    model.ParameterID
			e    model.EquationID
		)

		BeforeEach(func() {
			m = model.New("index")
			comp, p = compartments(m)
			e = m.RegisterEquation("E", model.NoUnit, func(v model.View) float64 { return 2 * v.Parameter(p) })
		})

		It("replicates an equation over the sets of what it reads", func() {
			prog := build(m)
			ds := prog.NewDataSet(1)
			res, err := engine.RunModel(ctx, prog, ds, config(1, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Phase).To(Equal(engine.PhaseCompleted))

			Expect(prog.Signature(e)).To(Equal(index.Signature{comp}))
			Expect(read(ds, e, "Compartment", "A")).To(Equal(2.0))
			Expect(read(ds, e, "Compartment", "B")).To(Equal(2.0))
		})

		It("broadcasts scalars over indexed readers", func() {
			k := m.RegisterParameterDouble(model.NoGroup, "K", model.NoUnit, 3, 0, 10, "")
			s := m.RegisterEquation("S", model.NoUnit, func(v model.View) float64 { return v.Parameter(k) })
			f := m.RegisterEquation("F", model.NoUnit, func(v model.View) float64 { return v.Result(s) + v.Parameter(p) })
			prog := build(m)

			ds := prog.NewDataSet(1)
			b, _ := ds.Space().Tuple("Compartment", "B")
			Expect(ds.SetParameter(p, b, 5)).To(Succeed())
			_, err := engine.RunModel(ctx, prog, ds, config(1, 1))
			Expect(err).NotTo(HaveOccurred())

			Expect(prog.Signature(s)).To(BeEmpty())
			Expect(read(ds, s)).To(Equal(3.0))
			Expect(read(ds, f, "Compartment", "A")).To(Equal(4.0))
			Expect(read(ds, f, "Compartment", "B")).To(Equal(8.0))
		})

		It("aggregates with explicit indices", func() {
			total := m.RegisterEquation("Total", model.NoUnit, func(v model.View) float64 {
				sum := 0.0
				for i := 0; i < v.IndexCount(comp); i++ {
					sum += v.ResultAt(e, model.At(comp, i))
				}
				return sum
			})
			pos := m.RegisterEquation("Pos", model.NoUnit, func(v model.View) float64 { return float64(v.Index(comp)) })
			prog := build(m)

			ds := prog.NewDataSet(1)
			b, _ := ds.Space().Tuple("Compartment", "B")
			Expect(ds.SetParameter(p, b, 5)).To(Succeed())
			_, err := engine.RunModel(ctx, prog, ds, config(1, 1))
			Expect(err).NotTo(HaveOccurred())

			Expect(prog.Signature(total)).To(BeEmpty())
			Expect(read(ds, total)).To(Equal(12.0))
			Expect(read(ds, pos, "Compartment", "A")).To(Equal(0.0))
			Expect(read(ds, pos, "Compartment", "B")).To(Equal(1.0))
		})

		It("fails on an explicit index outside the set", func() {
			m.RegisterEquation("Past", model.NoUnit, func(v model.View) float64 {
				return v.ResultAt(e, model.At(comp, v.IndexCount(comp)))
			})
			prog := build(m)

			res, err := engine.RunModel(ctx, prog, prog.NewDataSet(1), config(1, 1))
			Expect(err).To(MatchError(dynamo.ErrIndexOutOfRange))
			Expect(res.Phase).To(Equal(engine.PhaseFailed))

			var de *dynamo.Error
			Expect(errors.As(err, &de)).To(BeTrue())
			Expect(de.Symbol).To(Equal("E"))
			Expect(de.Index).To(Equal("{Compartment:2}"))
			Expect(de.Step).To(Equal(0))
		})

		It("keeps nested members apart when their names repeat", func() {
			reach := m.RegisterIndexSet("Reach", "R1", "R2")
			layer := m.RegisterSubIndexSet("Layer", reach, map[string][]string{
				"R1": {"top", "bottom"},
				"R2": {"top", "bottom"},
			})
			depth := m.RegisterParameterDouble(m.RegisterParameterGroup("Layers", layer), "Depth", model.NoUnit, 1, 0, 10, "")
			d := m.RegisterEquation("D", model.NoUnit, func(v model.View) float64 { return 2 * v.Parameter(depth) })
			prog := build(m)

			ds := prog.NewDataSet(1)
			t, err := ds.Space().Tuple("Layer", "R2/bottom")
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.SetParameter(depth, t, 5)).To(Succeed())
			_, err = engine.RunModel(ctx, prog, ds, config(1, 1))
			Expect(err).NotTo(HaveOccurred())

			Expect(prog.Signature(d)).To(Equal(index.Signature{layer}))
			Expect(read(ds, d, "Layer", "R1/bottom")).To(Equal(2.0))
			Expect(read(ds, d, "Layer", "R2/bottom")).To(Equal(10.0))
		})
	})

	Describe("integration", func() {
		const (
			h     = 0.1
			steps = 10
		)
		exact := 2 * math.Exp(-0.5*h*steps)

		DescribeTable("linear decay",
			func(method string, bound float64) {
				m, y := decayModel(method)
				prog := build(m)
				ds := prog.NewDataSet(steps)
				_, err := engine.RunModel(ctx, prog, ds, config(steps, h))
				Expect(err).NotTo(HaveOccurred())
				Expect(math.Abs(read(ds, y) - exact)).To(BeNumerically("<", bound))
			},
			Entry("heun", "heun", h*h),
			Entry("rk4", "rk4", h*h*h*h),
			Entry("rk45", "rk45", 1e-5),
			Entry("implicit-euler", "implicit-euler", 2e-3),
		)

		It("splits a timestep into solver substeps", func() {
			m := model.New("substeps")
			k := m.RegisterParameterDouble(model.NoGroup, "k", model.NoUnit, 0.5, 0, 10, "")
			y0 := m.RegisterParameterDouble(model.NoGroup, "y0", model.NoUnit, 2, 0, 10, "")
			s := m.RegisterSolver("Fine", "euler", 0.25)
			var y model.EquationID
			y = m.RegisterEquationODE("y", model.NoUnit, func(v model.View) float64 { return -v.Parameter(k) * v.Result(y) })
			m.SetSolver(y, s)
			m.SetInitialValueParameter(y, y0)
			prog := build(m)

			ds := prog.NewDataSet(1)
			res, err := engine.RunModel(ctx, prog, ds, config(1, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Stats.Substeps).To(Equal(4))
			Expect(read(ds, y)).To(BeNumerically("~", 2*math.Pow(1-0.125, 4), 1e-12))
		})

		It("evaluates algebraic block members at every stage", func() {
			m := model.New("block")
			k := m.RegisterParameterDouble(model.NoGroup, "k", model.NoUnit, 0.5, 0, 10, "")
			y0 := m.RegisterParameterDouble(model.NoGroup, "y0", model.NoUnit, 2, 0, 10, "")
			s := m.RegisterSolver("Decay", "rk4", 1)
			var y, rate model.EquationID
			rate = m.RegisterEquation("rate", model.NoUnit, func(v model.View) float64 { return v.Parameter(k) * v.Result(y) })
			y = m.RegisterEquationODE("y", model.NoUnit, func(v model.View) float64 { return -v.Result(rate) })
			m.SetSolver(rate, s)
			m.SetSolver(y, s)
			m.SetInitialValueParameter(y, y0)
			prog := build(m)

			ds := prog.NewDataSet(steps)
			_, err := engine.RunModel(ctx, prog, ds, config(steps, h))
			Expect(err).NotTo(HaveOccurred())
			Expect(read(ds, y)).To(BeNumerically("~", exact, 1e-6))
			Expect(read(ds, rate)).To(Equal(0.5 * read(ds, y)))
		})

		It("fails when an adaptive solver runs out of retries", func() {
			m := model.New("strict")
			y0 := m.RegisterParameterDouble(model.NoGroup, "y0", model.NoUnit, 1, 0, 10, "")
			s := m.RegisterSolver("Strict", "rk45", 1, model.WithTolerance(1e-300), model.WithMaxRetries(3))
			var y model.EquationID
			y = m.RegisterEquationODE("y", model.NoUnit, func(v model.View) float64 { return -v.Result(y) })
			m.SetSolver(y, s)
			m.SetInitialValueParameter(y, y0)
			prog := build(m)

			res, err := engine.RunModel(ctx, prog, prog.NewDataSet(5), config(5, 1))
			Expect(err).To(MatchError(dynamo.ErrIntegrationDivergence))
			Expect(res.FailureKind).To(Equal(dynamo.ErrIntegrationDivergence))
			Expect(res.Stats.Rejections).To(Equal(4))
			Expect(res.Steps).To(Equal(0))
		})
	})

	Describe("dependencies across steps", func() {
		It("allows cycles made only of previous-step reads", func() {
			m := model.New("lag")
			var a, b model.EquationID
			a = m.RegisterEquation("A", model.NoUnit, func(v model.View) float64 { return v.LastResult(b) + 1 })
			b = m.RegisterEquation("B", model.NoUnit, func(v model.View) float64 { return 2 * v.LastResult(a) })
			prog := build(m)

			ds := prog.NewDataSet(3)
			_, err := engine.RunModel(ctx, prog, ds, config(3, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(read(ds, a)).To(Equal(3.0))
			Expect(read(ds, b)).To(Equal(2.0))
		})

		It("rejects a previous-step cycle closed by a same-step read", func() {
			m := model.New("lag")
			var a, b model.EquationID
			a = m.RegisterEquation("A", model.NoUnit, func(v model.View) float64 { return v.LastResult(b) + 1 })
			b = m.RegisterEquation("B", model.NoUnit, func(v model.View) float64 { return 2 * v.Result(a) })

			_, err := engine.Build(m)
			Expect(err).To(MatchError(dynamo.ErrCyclicDependency))
			Expect(err.Error()).To(ContainSubstring("A -> B -> A"))
		})

		It("seeds initial values from parameters and initial-value equations", func() {
			m := model.New("init")
			p0 := m.RegisterParameterDouble(model.NoGroup, "p0", model.NoUnit, 3, 0, 10, "")
			q := m.RegisterParameterDouble(model.NoGroup, "q", model.NoUnit, 10, 0, 100, "")
			s := m.RegisterSolver("Main", "rk4", 1)

			x0 := m.RegisterEquationInitialValue("x0", model.NoUnit, func(v model.View) float64 { return 2 * v.Parameter(p0) })
			x := m.RegisterEquationODE("x", model.NoUnit, func(model.View) float64 { return 0 })
			y := m.RegisterEquationODE("y", model.NoUnit, func(model.View) float64 { return 0 })
			y0 := m.RegisterEquationInitialValue("y0", model.NoUnit, func(v model.View) float64 { return v.Result(x) + 1 })
			var c model.EquationID
			c = m.RegisterEquation("c", model.NoUnit, func(v model.View) float64 { return v.LastResult(c) + 1 })

			m.SetSolver(x, s)
			m.SetSolver(y, s)
			m.SetInitialValue(x, x0)
			m.SetInitialValue(y, y0)
			m.SetInitialValueParameter(c, q)
			prog := build(m)

			ds := prog.NewDataSet(3)
			_, err := engine.RunModel(ctx, prog, ds, config(3, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(read(ds, x)).To(Equal(6.0))
			Expect(read(ds, y)).To(Equal(7.0))
			Expect(read(ds, c)).To(Equal(13.0))
		})

		It("rejects reads that were not recorded at build time", func() {
			m := model.New("hidden")
			p := m.RegisterParameterDouble(model.NoGroup, "p", model.NoUnit, 1, 0, 10, "")
			m.RegisterEquation("Hidden", model.NoUnit, func(v model.View) float64 {
				if v.Timestep() > 0 {
					return v.Parameter(p)
				}
				return 0
			})
			prog := build(m)

			res, err := engine.RunModel(ctx, prog, prog.NewDataSet(3), config(3, 1))
			Expect(err).To(MatchError(dynamo.ErrIncompleteModel))
			Expect(res.Phase).To(Equal(engine.PhaseFailed))
			Expect(res.Steps).To(Equal(1))

			var de *dynamo.Error
			Expect(errors.As(err, &de)).To(BeTrue())
			Expect(de.Step).To(Equal(1))
			Expect(de.Symbol).To(Equal("Hidden"))
		})
	})

	Describe("values and storage", func() {
		It("feeds inputs per step and records time series", func() {
			m := model.New("inputs")
			rain := m.RegisterInput("Rain", model.NoUnit)
			r := m.RegisterEquation("R", model.NoUnit, func(v model.View) float64 { return 2 * v.Input(rain) })
			d := m.RegisterEquation("Day", model.NoUnit, func(v model.View) float64 { return float64(v.Date().YearDay()) })
			prog := build(m)

			ds := prog.NewDataSet(3)
			Expect(ds.SetInput(rain, nil, []float64{1, 2, 3})).To(Succeed())
			rec := engine.NewRecorder(prog)
			_, err := engine.RunModel(ctx, prog, ds, config(3, 1), engine.WithObservers(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.Len()).To(Equal(3))
			Expect(rec.Times()).To(Equal([]float64{0, 1, 2}))
			Expect(rec.Series(r, 0)).To(Equal([]float64{2, 4, 6}))
			Expect(rec.Series(d, 0)).To(Equal([]float64{1, 2, 3}))
		})

		It("tests for NaN only when asked to", func() {
			m := model.New("nan")
			m.RegisterEquation("Bad", model.NoUnit, func(model.View) float64 { return math.NaN() })
			prog := build(m)

			_, err := engine.RunModel(ctx, prog, prog.NewDataSet(2), config(2, 1))
			Expect(err).NotTo(HaveOccurred())

			cfg := config(2, 1)
			cfg.TestForNaN = true
			res, err := engine.RunModel(ctx, prog, prog.NewDataSet(2), cfg)
			Expect(err).To(MatchError(dynamo.ErrInvalidState))
			Expect(res.FailureKind).To(Equal(dynamo.ErrInvalidState))
		})

		It("conflicts on a second write of a slot within a step", func() {
			m := model.New("conflict")
			_, p := compartments(m)
			e := m.RegisterEquation("E", model.NoUnit, func(v model.View) float64 { return 2 * v.Parameter(p) })
			prog := build(m)

			ds := prog.NewDataSet(1)
			var writeErr error
			observe := engine.ObserverFunc(func(step int, t float64, ds *storage.DataSet) {
				a, _ := ds.Space().Tuple("Compartment", "A")
				writeErr = ds.Write(e, a, 1)
			})
			_, err := engine.RunModel(ctx, prog, ds, config(1, 1), engine.WithObservers(observe))
			Expect(err).NotTo(HaveOccurred())
			Expect(writeErr).To(MatchError(dynamo.ErrWriteConflict))
			Expect(read(ds, e, "Compartment", "A")).To(Equal(2.0))
		})

		It("locks parameters while running", func() {
			m, _ := decayModel("rk4")
			prog := build(m)
			k, err := m.GetParameterHandle("k")
			Expect(err).NotTo(HaveOccurred())

			ds := prog.NewDataSet(2)
			var setErr error
			observe := engine.ObserverFunc(func(int, float64, *storage.DataSet) {
				setErr = ds.SetParameterAll(k, 1)
			})
			_, err = engine.RunModel(ctx, prog, ds, config(2, 1), engine.WithObservers(observe))
			Expect(err).NotTo(HaveOccurred())
			Expect(setErr).To(MatchError(dynamo.ErrLocked))
			Expect(ds.SetParameterAll(k, 1)).To(Succeed())
		})

		It("reproduces a run bit for bit", func() {
			m := model.New("determinism")
			comp, p := compartments(m)
			rain := m.RegisterInput("Rain", model.NoUnit)
			s := m.RegisterSolver("Hydro", "rk45", 0.5)
			var store, flow model.EquationID
			flow = m.RegisterEquation("Flow", model.NoUnit, func(v model.View) float64 {
				return v.Parameter(p) * math.Sqrt(math.Max(v.Result(store), 0))
			})
			store = m.RegisterEquationODE("Store", model.NoUnit, func(v model.View) float64 {
				return v.Input(rain) - v.Result(flow)
			})
			m.SetSolver(flow, s)
			m.SetSolver(store, s)
			m.SetInitialValueParameter(store, p)
			prog := build(m)
			Expect(prog.Signature(store)).To(Equal(index.Signature{comp}))

			ds := prog.NewDataSet(20)
			series := make([]float64, 20)
			for i := range series {
				series[i] = math.Abs(math.Sin(float64(i)))
			}
			Expect(ds.SetInput(rain, nil, series)).To(Succeed())

			_, err := engine.RunModel(ctx, prog, ds, config(20, 1))
			Expect(err).NotTo(HaveOccurred())
			first := ds.Snapshot(storage.Current)

			_, err = engine.RunModel(ctx, prog, ds, config(20, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.Snapshot(storage.Current)).To(Equal(first))
		})
	})

	Describe("phases", func() {
		var (
			prog *engine.Program
			ds   *storage.DataSet
		)

		BeforeEach(func() {
			m, _ := decayModel("rk4")
			prog = build(m)
			ds = prog.NewDataSet(5)
		})

		It("moves through the phases in order", func() {
			r, err := engine.NewRun(prog, ds, config(5, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Phase()).To(Equal(engine.PhaseBuilt))

			Expect(r.Execute(ctx)).To(MatchError(dynamo.ErrPhase))
			Expect(r.Initialize()).To(Succeed())
			Expect(r.Phase()).To(Equal(engine.PhaseInitialized))
			Expect(ds.Locked()).To(BeTrue())
			Expect(r.Initialize()).To(MatchError(dynamo.ErrPhase))

			Expect(r.Execute(ctx)).To(Succeed())
			Expect(r.Phase()).To(Equal(engine.PhaseCompleted))
			Expect(r.Step()).To(Equal(5))
			Expect(ds.Locked()).To(BeFalse())
		})

		It("refuses a data set owned by another run", func() {
			first, err := engine.NewRun(prog, ds, config(5, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Initialize()).To(Succeed())

			second, err := engine.NewRun(prog, ds, config(5, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Initialize()).To(MatchError(dynamo.ErrLocked))
			Expect(second.Phase()).To(Equal(engine.PhaseFailed))
			Expect(ds.Locked()).To(BeTrue())

			Expect(first.Execute(ctx)).To(Succeed())
		})

		It("stops between steps when cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			res, err := engine.RunModel(cctx, prog, ds, config(5, 1))
			Expect(err).To(MatchError(context.Canceled))
			Expect(res.Phase).To(Equal(engine.PhaseFailed))
			Expect(res.Steps).To(Equal(0))
			Expect(ds.Locked()).To(BeFalse())
		})

		It("fails the run when an equation body panics", func() {
			m := model.New("broken")
			var empty []float64
			m.RegisterEquation("Broken", model.NoUnit, func(v model.View) float64 {
				if v.Timestep() == 1 {
					return empty[0]
				}
				return 1
			})
			prog := build(m)
			ds := prog.NewDataSet(3)

			res, err := engine.RunModel(ctx, prog, ds, config(3, 1))
			Expect(err).To(MatchError(dynamo.ErrEquationPanic))
			Expect(err.Error()).To(ContainSubstring("index out of range"))
			Expect(res.Phase).To(Equal(engine.PhaseFailed))
			Expect(ds.Locked()).To(BeFalse())

			var de *dynamo.Error
			Expect(errors.As(err, &de)).To(BeTrue())
			Expect(de.Symbol).To(Equal("Broken"))
			Expect(de.Step).To(Equal(1))

			_, err = engine.RunModel(ctx, prog, ds, config(1, 1))
			Expect(err).NotTo(HaveOccurred())
		})

		It("validates the configuration against the data set", func() {
			_, err := engine.NewRun(prog, ds, config(6, 1))
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))

			other, _ := decayModel("rk4")
			_, err = engine.NewRun(prog, build(other).NewDataSet(5), config(5, 1))
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))

			_, err = engine.NewRun(prog, ds, config(0, 1))
			Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
		})
	})

	Describe("diagnostics", func() {
		It("profiles equations and reports telemetry", func() {
			m, y := decayModel("rk4")
			prog := build(m)
			metrics := telemetry.New(telemetry.DefaultConfig())

			cfg := config(4, 1)
			cfg.Profile = true
			res, err := engine.RunModel(ctx, prog, prog.NewDataSet(4), cfg, engine.WithMetrics(metrics))
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Stats.Profile).To(HaveLen(1))
			Expect(res.Stats.Profile[0].Equation).To(Equal(m.Equation(y).Name))
			Expect(res.Stats.Profile[0].Evaluations).To(Equal(16))
			Expect(res.Stats.Evaluations).To(Equal(16))
			Expect(res.Stats.Substeps).To(Equal(4))

			families, err := metrics.Gatherer().Gather()
			Expect(err).NotTo(HaveOccurred())
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			Expect(names).To(ContainElements("ecosim_steps_total", "ecosim_equation_evaluations_total"))
		})
	})
})

var _ = Describe("Ensemble", func() {
	It("matches sequential runs", func() {
		m := model.New("ensemble")
		_, p := compartments(m)
		s := m.RegisterSolver("Main", "bs32", 1)
		var y model.EquationID
		y = m.RegisterEquationODE("y", model.NoUnit, func(v model.View) float64 { return -v.Parameter(p) * v.Result(y) })
		m.SetSolver(y, s)
		m.SetInitialValueParameter(y, p)
		prog := build(m)

		sets := make([]*storage.DataSet, 3)
		for i := range sets {
			sets[i] = prog.NewDataSet(10)
			Expect(sets[i].SetParameterAll(p, float64(i+1))).To(Succeed())
		}
		results, err := engine.NewEnsemble(prog, 2).Run(context.Background(), sets, config(10, 0.1))
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(3))

		for i, ds := range sets {
			Expect(results[i].Phase).To(Equal(engine.PhaseCompleted))
			alone := prog.NewDataSet(10)
			Expect(alone.SetParameterAll(p, float64(i+1))).To(Succeed())
			_, err := engine.RunModel(context.Background(), prog, alone, config(10, 0.1))
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.Snapshot(storage.Current)).To(Equal(alone.Snapshot(storage.Current)))
		}
	})
})
