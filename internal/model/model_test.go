package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
)

var _ = Describe("Model", func() {
	var m *model.Model

	BeforeEach(func() {
		m = model.New("test")
	})

	Describe("registration", func() {
		It("hands out handles in registration order", func() {
			comp := m.RegisterIndexSet("Compartment", "A", "B")
			g := m.RegisterParameterGroup("Soil", comp)
			p := m.RegisterParameterDouble(g, "P", model.NoUnit, 1, 0, 10, "")
			q := m.RegisterParameterDouble(g, "Q", model.NoUnit, 2, 0, 10, "")

			Expect(m.Err()).NotTo(HaveOccurred())
			Expect(p).To(Equal(model.ParameterID(0)))
			Expect(q).To(Equal(model.ParameterID(1)))
			Expect(m.Parameter(q).Sig).To(Equal(index.Signature{comp}))
		})

		It("reports name collisions within a category", func() {
			m.RegisterEquation("Flow", model.NoUnit, nil)
			m.RegisterEquation("Flow", model.NoUnit, nil)

			Expect(m.Err()).To(MatchError(dynamo.ErrNameCollision))
		})

		It("allows one name in different categories", func() {
			m.RegisterParameterDouble(model.NoGroup, "Nitrification", model.NoUnit, 0, 0, 1, "")
			m.RegisterEquation("Nitrification", model.NoUnit, nil)

			Expect(m.Err()).NotTo(HaveOccurred())
		})

		It("rejects defaults outside the declared range", func() {
			m.RegisterParameterDouble(model.NoGroup, "Porosity", model.NoUnit, 1.5, 0, 1, "")
			Expect(m.Err()).To(MatchError(dynamo.ErrParameterBounds))
		})

		It("encodes bool and enum parameters as numbers", func() {
			b := m.RegisterParameterBool(model.NoGroup, "Frozen", true, "")
			e := m.RegisterParameterEnum(model.NoGroup, "Mode", []string{"off", "fast", "slow"}, "slow", "")

			Expect(m.Parameter(b).Default).To(Equal(1.0))
			Expect(m.Parameter(e).Default).To(Equal(2.0))
			Expect(m.Parameter(e).Validate(3)).To(BeFalse())
		})

		It("validates solver steps", func() {
			m.RegisterSolver("Bad", "rk4", 1.5)
			Expect(m.Err()).To(MatchError(dynamo.ErrInvalidConfig))
		})

		It("tags symbols with the open module", func() {
			mod := m.BeginModule("Lake", "0.1")
			eq := m.RegisterEquation("Level", model.NoUnit, nil)
			m.EndModule()
			other := m.RegisterEquation("Outflow", model.NoUnit, nil)

			Expect(m.Equation(eq).Module).To(Equal(mod))
			Expect(m.Equation(other).Module).To(Equal(model.NoModule))
			Expect(m.ModuleName(mod)).To(Equal("Lake"))
		})
	})

	Describe("equation wiring", func() {
		It("accepts initial-value equations and parameters", func() {
			s := m.RegisterSolver("Main", "rk4", 0.1)
			y := m.RegisterEquationODE("Y", model.NoUnit, nil)
			iv := m.RegisterEquationInitialValue("Y0", model.NoUnit, nil)
			m.SetSolver(y, s)
			m.SetInitialValue(y, iv)

			Expect(m.Err()).NotTo(HaveOccurred())
			Expect(m.Equation(y).Solver).To(Equal(s))
			Expect(m.Equation(y).InitialEquation).To(Equal(iv))
			Expect(m.Equation(y).HasInitialValue()).To(BeTrue())

			p := m.RegisterParameterDouble(model.NoGroup, "Y init", model.NoUnit, 3, 0, 10, "")
			m.SetInitialValueParameter(y, p)
			Expect(m.Equation(y).InitialEquation).To(Equal(model.NoEquation))
			Expect(m.Equation(y).InitialParameter).To(Equal(p))
		})

		It("refuses a non initial-value equation as initial value", func() {
			y := m.RegisterEquationODE("Y", model.NoUnit, nil)
			z := m.RegisterEquation("Z", model.NoUnit, nil)
			m.SetInitialValue(y, z)

			Expect(m.Err()).To(MatchError(dynamo.ErrIncompleteModel))
		})

		It("records unknown handles", func() {
			m.SetSolver(model.EquationID(42), model.NoSolver)
			Expect(m.Err()).To(MatchError(dynamo.ErrUnknownSymbol))
		})

		It("declares explicit signatures", func() {
			comp := m.RegisterIndexSet("Compartment", "A", "B")
			eq := m.RegisterEquation("E", model.NoUnit, nil)
			m.SetIndexSets(eq, comp)

			Expect(m.Equation(eq).Declared).To(BeTrue())
			Expect(m.Equation(eq).Sig).To(Equal(index.Signature{comp}))
		})
	})

	Describe("lookup", func() {
		It("resolves symbols registered earlier", func() {
			eq := m.RegisterEquation("Runoff", model.NoUnit, nil)
			comp := m.RegisterIndexSet("Reach", "R1")

			got, err := m.GetEquationHandle("Runoff")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(eq))

			set, err := m.GetIndexSetHandle("Reach")
			Expect(err).NotTo(HaveOccurred())
			Expect(set).To(Equal(comp))

			h, err := m.Resolve(model.KindEquation, "Runoff")
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(Equal(model.Handle{Kind: model.KindEquation, ID: int(eq)}))
		})

		It("fails on unknown names and keeps the error for the build", func() {
			_, err := m.GetParameterHandle("Missing")
			Expect(err).To(MatchError(dynamo.ErrUnknownSymbol))
			Expect(m.Err()).To(MatchError(dynamo.ErrUnknownSymbol))
		})
	})

	It("refuses registration once frozen", func() {
		m.Freeze()
		Expect(m.RegisterEquation("Late", model.NoUnit, nil)).To(Equal(model.NoEquation))
		Expect(m.RegisterIndexSet("Late", "x")).To(Equal(index.None))
		Expect(m.Err()).To(MatchError(dynamo.ErrPhase))
	})
})
