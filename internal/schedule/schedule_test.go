package schedule_test

import (
	"bytes"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/ecosim/internal/graph"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/schedule"
)

func build(m *model.Model) *schedule.Schedule {
	GinkgoHelper()
	Expect(m.Err()).NotTo(HaveOccurred())
	g, err := graph.Build(m)
	Expect(err).NotTo(HaveOccurred())
	s, err := schedule.New(g)
	Expect(err).NotTo(HaveOccurred())
	return s
}

func flatten(s *schedule.Schedule) []model.EquationID {
	var out []model.EquationID
	for _, u := range s.Units {
		out = append(out, u.Members()...)
	}
	return out
}

// diamond registers D before its dependencies so that registration
// order and dependency order disagree.
func diamond() (*model.Model, [4]model.EquationID) {
	m := model.New("diamond")
	d := m.RegisterEquation("D", model.NoUnit, nil)
	c := m.RegisterEquation("C", model.NoUnit, nil)
	b := m.RegisterEquation("B", model.NoUnit, nil)
	a := m.RegisterEquation("A", model.NoUnit, func(model.View) float64 { return 1 })
	m.SetEquation(b, func(v model.View) float64 { return v.Result(a) + 1 })
	m.SetEquation(c, func(v model.View) float64 { return v.Result(a) * 2 })
	m.SetEquation(d, func(v model.View) float64 { return v.Result(b) + v.Result(c) + v.LastResult(d) })
	return m, [4]model.EquationID{a, b, c, d}
}

var _ = Describe("Schedule", func() {
	It("respects every same-step edge", func() {
		m, _ := diamond()
		s := build(m)

		order := flatten(s)
		for _, e := range s.Graph.Edges {
			if e.Last {
				continue
			}
			Expect(slices.Index(order, e.From)).To(BeNumerically("<", slices.Index(order, e.To)),
				"%s must come before %s", m.Equation(e.From).Name, m.Equation(e.To).Name)
		}
	})

	It("breaks ties by registration order and reports Kahn levels", func() {
		m, eq := diamond()
		a, b, c, d := eq[0], eq[1], eq[2], eq[3]
		s := build(m)

		Expect(flatten(s)).To(Equal([]model.EquationID{a, c, b, d}))

		batches := map[model.EquationID]int{}
		for _, u := range s.Units {
			batches[u.Equation] = u.Batch
		}
		Expect(batches).To(Equal(map[model.EquationID]int{a: 0, c: 1, b: 1, d: 2}))
	})

	It("keeps independent equations in registration order", func() {
		m := model.New("flat")
		var ids []model.EquationID
		for _, name := range []string{"Z", "Y", "X"} {
			ids = append(ids, m.RegisterEquation(name, model.NoUnit, func(model.View) float64 { return 0 }))
		}
		Expect(flatten(build(m))).To(Equal(ids))
	})

	It("is deterministic across builds", func() {
		m1, _ := diamond()
		m2, _ := diamond()
		Expect(build(m1).Entries()).To(Equal(build(m2).Entries()))
	})

	Describe("solver blocks", func() {
		It("schedules a block as one unit with its algebraic members ordered", func() {
			m := model.New("block")
			s := m.RegisterSolver("Main", "rk4", 0.5)
			k := m.RegisterParameterDouble(model.NoGroup, "k", model.NoUnit, 0.5, 0, 1, "")

			drive := m.RegisterEquation("Drive", model.NoUnit, func(v model.View) float64 { return v.Parameter(k) })
			y := m.RegisterEquationODE("Y", model.NoUnit, nil)
			outflow := m.RegisterEquation("Outflow", model.NoUnit, nil)
			rate := m.RegisterEquation("Rate", model.NoUnit, func(v model.View) float64 { return v.Result(drive) })
			report := m.RegisterEquation("Report", model.NoUnit, nil)

			m.SetEquation(y, func(v model.View) float64 { return v.Result(drive) - v.Result(outflow) })
			m.SetEquation(outflow, func(v model.View) float64 { return v.Result(rate) * v.Result(y) })
			m.SetEquation(report, func(v model.View) float64 { return v.Result(y) })
			for _, eq := range []model.EquationID{y, outflow, rate} {
				m.SetSolver(eq, s)
			}
			m.SetInitialValueParameter(y, k)

			sched := build(m)
			Expect(sched.Units).To(HaveLen(3))

			block := sched.Units[1]
			Expect(block.Kind).To(Equal(schedule.UnitBlock))
			Expect(block.Solver).To(Equal(s))
			Expect(block.Algebraic).To(Equal([]model.EquationID{rate, outflow}))
			Expect(block.ODEs).To(Equal([]model.EquationID{y}))

			Expect(sched.Units[0].Equation).To(Equal(drive))
			Expect(sched.Units[2].Equation).To(Equal(report))
			Expect(sched.Units[2].Batch).To(Equal(2))
		})
	})

	Describe("initial values", func() {
		It("orders initial-value equations after what they read", func() {
			m := model.New("init")
			s := m.RegisterSolver("Main", "euler", 1)
			x := m.RegisterEquationODE("X", model.NoUnit, func(model.View) float64 { return 0 })
			y := m.RegisterEquationODE("Y", model.NoUnit, func(model.View) float64 { return 0 })
			y0 := m.RegisterEquationInitialValue("Y0", model.NoUnit, func(v model.View) float64 { return 2 * v.Result(x) })
			x0 := m.RegisterEquationInitialValue("X0", model.NoUnit, func(model.View) float64 { return 1 })
			m.SetSolver(x, s)
			m.SetSolver(y, s)
			m.SetInitialValue(x, x0)
			m.SetInitialValue(y, y0)

			Expect(build(m).Init).To(Equal([]model.EquationID{x0, y0}))
		})
	})

	It("dumps the order", func() {
		m, _ := diamond()
		var buf bytes.Buffer
		Expect(build(m).Dump(&buf)).To(Succeed())

		out := buf.String()
		Expect(out).To(ContainSubstring("BATCH"))
		Expect(out).To(MatchRegexp(`(?m)^2\s+D\s+algebraic`))
	})
})
