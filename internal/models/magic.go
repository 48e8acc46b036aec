package models

import (
	"time"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

// CarbonNitrogen is a monthly soil carbon and nitrogen model after the
// simple MAGIC C/N module. Nitrogen process rates are given per year and
// scaled to the month; a negative rate means a percentage of the inputs
// instead. Immobilisation depends on the C/N ratio of the organic pools,
// so it is solved together with them.
type CarbonNitrogen struct {
	m *model.Model

	Compartment index.SetID

	Nitrification     model.ParameterID
	Denitrification   model.ParameterID
	NO3Immobilisation model.ParameterID
	NH4Immobilisation model.ParameterID
	Mineralisation    model.ParameterID
	OrganicCInput     model.ParameterID
	OrganicCDecomp    model.ParameterID
	InputCN           model.ParameterID
	InitialOrganicC   model.ParameterID
	InitialOrganicN   model.ParameterID
	LowerCNThreshold  model.ParameterID
	UpperCNThreshold  model.ParameterID

	NO3Deposition model.InputID
	NH4Deposition model.InputID

	FractionOfYear    model.EquationID
	NO3BasicInputs    model.EquationID
	NH4BasicInputs    model.EquationID
	NO3Inputs         model.EquationID
	NH4Inputs         model.EquationID
	NitrificationEq   model.EquationID
	DenitrificationEq model.EquationID
	NO3ImmobEq        model.EquationID
	NH4ImmobEq        model.EquationID
	NO3ProcessesLoss  model.EquationID
	NH4ProcessesLoss  model.EquationID
	ImmobFraction     model.EquationID

	OrganicC  model.EquationID
	OrganicN  model.EquationID
	CNRatio   model.EquationID
	InitialCN model.EquationID
}

// NewCarbonNitrogen builds the model over the given compartments,
// "Soil" when none are given.
func NewCarbonNitrogen(compartments ...string) *CarbonNitrogen {
	if len(compartments) == 0 {
		compartments = []string{"Soil"}
	}
	c := &CarbonNitrogen{m: model.New("MAGIC carbon and nitrogen")}
	m := c.m

	m.BeginModule("MAGIC drivers", "0.1")
	dimless := m.RegisterUnit("1")
	perYear := m.RegisterUnit("mmol/m2/year")
	perMonth := m.RegisterUnit("mmol/m2/month")
	pool := m.RegisterUnit("mmol/m2")

	c.Compartment = m.RegisterIndexSet("Compartment", compartments...)
	c.NO3Deposition = m.RegisterInput("NO3 deposition", perYear)
	c.NH4Deposition = m.RegisterInput("NH4 deposition", perYear)

	c.FractionOfYear = m.RegisterEquation("Fraction of year", dimless, func(v model.View) float64 {
		date := v.Date()
		return float64(daysInMonth(date)) / float64(daysInYear(date.Year()))
	})
	c.NO3BasicInputs = m.RegisterEquation("NO3 basic inputs", perMonth, func(v model.View) float64 {
		return v.Input(c.NO3Deposition) * v.Result(c.FractionOfYear)
	})
	c.NH4BasicInputs = m.RegisterEquation("NH4 basic inputs", perMonth, func(v model.View) float64 {
		return v.Input(c.NH4Deposition) * v.Result(c.FractionOfYear)
	})
	m.EndModule()

	m.BeginModule("MAGIC simple carbon and nitrogen", "0.1")
	cn := m.RegisterParameterGroup("Carbon and Nitrogen by subcatchment", c.Compartment)
	const pct = "Negative rate sets value as % of inputs"
	c.Nitrification = m.RegisterParameterDouble(cn, "Nitrification", perYear, 0, -100, 500, pct)
	c.Denitrification = m.RegisterParameterDouble(cn, "Denitrification", perYear, 0, -100, 500, pct)
	c.NO3Immobilisation = m.RegisterParameterDouble(cn, "NO3 immobilisation", perYear, 0, -100, 500, pct)
	c.NH4Immobilisation = m.RegisterParameterDouble(cn, "NH4 immobilisation", perYear, 0, -100, 500, pct)
	c.Mineralisation = m.RegisterParameterDouble(cn, "Mineralisation", perYear, 0, 0, 500, "")

	c.NO3Inputs = m.RegisterEquation("NO3 inputs", perMonth, func(v model.View) float64 {
		return v.Result(c.NO3BasicInputs) + v.Result(c.NitrificationEq)
	})
	c.NH4Inputs = m.RegisterEquation("NH4 inputs", perMonth, func(v model.View) float64 {
		return v.Result(c.NH4BasicInputs) + v.Result(c.FractionOfYear)*v.Parameter(c.Mineralisation)
	})

	c.NitrificationEq = m.RegisterEquation("Nitrification", perMonth, func(v model.View) float64 {
		return processRate(v.Parameter(c.Nitrification), v.Result(c.FractionOfYear), v.Result(c.NH4Inputs))
	})
	c.DenitrificationEq = m.RegisterEquation("Denitrification", perMonth, func(v model.View) float64 {
		return processRate(v.Parameter(c.Denitrification), v.Result(c.FractionOfYear), v.Result(c.NO3Inputs))
	})
	c.NO3ImmobEq = m.RegisterEquation("NO3 immobilisation", perMonth, func(v model.View) float64 {
		rate := processRate(v.Parameter(c.NO3Immobilisation), v.Result(c.FractionOfYear), v.Result(c.NO3Inputs))
		return rate * v.Result(c.ImmobFraction)
	})
	c.NH4ImmobEq = m.RegisterEquation("NH4 immobilisation", perMonth, func(v model.View) float64 {
		rate := processRate(v.Parameter(c.NH4Immobilisation), v.Result(c.FractionOfYear), v.Result(c.NH4Inputs))
		return rate * v.Result(c.ImmobFraction)
	})

	c.NO3ProcessesLoss = m.RegisterEquation("NO3 processes loss", perMonth, func(v model.View) float64 {
		return v.Result(c.DenitrificationEq) + v.Result(c.NO3ImmobEq)
	})
	c.NH4ProcessesLoss = m.RegisterEquation("NH4 processes loss", perMonth, func(v model.View) float64 {
		return v.Result(c.NitrificationEq) + v.Result(c.NH4ImmobEq)
	})
	m.EndModule()

	c.addOrganicPools(cn, dimless, perYear, pool)
	return c
}

func (c *CarbonNitrogen) addOrganicPools(cn model.GroupID, dimless, perYear, pool model.UnitID) {
	m := c.m
	m.BeginModule("MAGIC organic pools", "0.1")

	// Failed lookups are recorded as build errors of m.
	compartment, _ := m.GetIndexSetHandle("Compartment")
	fraction, _ := m.GetEquationHandle("Fraction of year")
	no3Immob, _ := m.GetEquationHandle("NO3 immobilisation")
	nh4Immob, _ := m.GetEquationHandle("NH4 immobilisation")
	mineralisation, _ := m.GetParameterHandle("Mineralisation")

	c.OrganicCInput = m.RegisterParameterDouble(cn, "Organic C input", perYear, 0, 0, 1e6, "Litter and other organic C input")
	c.OrganicCDecomp = m.RegisterParameterDouble(cn, "Organic C decomposition", perYear, 0, 0, 1e6, "")
	c.InputCN = m.RegisterParameterDouble(cn, "Organic C/N input ratio", dimless, 25, 0.01, 1000, "")
	c.InitialOrganicC = m.RegisterParameterDouble(cn, "Initial organic C", pool, 0, 0, 1e8, "")
	c.InitialOrganicN = m.RegisterParameterDouble(cn, "Initial organic N", pool, 0, 0, 1e8, "")
	c.LowerCNThreshold = m.RegisterParameterDouble(cn, "Lower C/N threshold for immobilisation", dimless, 15, 0, 100, "C/N below this value gives no immobilisation")
	c.UpperCNThreshold = m.RegisterParameterDouble(cn, "Upper C/N threshold for immobilisation", dimless, 30, 0, 100, "C/N above this value gives full immobilisation")

	solver := m.RegisterSolver("Compartment solver", "euler", 1)

	c.OrganicC = m.RegisterEquationODE("Organic C", pool, func(v model.View) float64 {
		return v.Result(fraction) * (v.Parameter(c.OrganicCInput) - v.Parameter(c.OrganicCDecomp))
	})
	m.SetSolver(c.OrganicC, solver)
	m.SetInitialValueParameter(c.OrganicC, c.InitialOrganicC)

	// Mineralisation releases N as NH4; immobilisation ties inorganic N
	// back into the pool.
	c.OrganicN = m.RegisterEquationODE("Organic N", pool, func(v model.View) float64 {
		litter := v.Result(fraction) * v.Parameter(c.OrganicCInput) / v.Parameter(c.InputCN)
		mineral := v.Result(fraction) * v.Parameter(mineralisation)
		return litter + v.Result(no3Immob) + v.Result(nh4Immob) - mineral
	})
	m.SetSolver(c.OrganicN, solver)
	m.SetInitialValueParameter(c.OrganicN, c.InitialOrganicN)

	c.CNRatio = m.RegisterEquation("Pool C/N", dimless, func(v model.View) float64 {
		return safeDivide(v.Result(c.OrganicC), v.Result(c.OrganicN))
	})
	m.SetSolver(c.CNRatio, solver)

	c.InitialCN = m.RegisterEquationInitialValue("Initial pool C/N", dimless, func(v model.View) float64 {
		return safeDivide(v.Parameter(c.InitialOrganicC), v.Parameter(c.InitialOrganicN))
	})
	m.SetInitialValue(c.CNRatio, c.InitialCN)

	c.ImmobFraction = m.RegisterEquation("Immobilisation fraction", dimless, func(v model.View) float64 {
		return linearResponse(v.Result(c.CNRatio), v.Parameter(c.LowerCNThreshold), v.Parameter(c.UpperCNThreshold), 0, 1)
	})
	m.SetIndexSets(c.ImmobFraction, compartment)
	for _, eq := range []model.EquationID{c.ImmobFraction, no3Immob, nh4Immob} {
		m.SetSolver(eq, solver)
	}
	m.EndModule()
}

// processRate scales a yearly rate to the step, or takes -rate percent
// of in when the rate is negative.
func processRate(rate, fraction, in float64) float64 {
	if rate < 0 {
		return -rate * 0.01 * in
	}
	return rate * fraction
}

func safeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func (c *CarbonNitrogen) Model() *model.Model { return c.m }

// Drive applies deposition peaking in late spring.
func (c *CarbonNitrogen) Drive(ds *storage.DataSet, cfg dynamo.Config) error {
	if err := series(ds, c.NO3Deposition, nil, cfg, func(d time.Time) float64 {
		return seasonal(d, 60, 15, 140)
	}); err != nil {
		return err
	}
	return series(ds, c.NH4Deposition, nil, cfg, func(d time.Time) float64 {
		return seasonal(d, 50, 10, 140)
	})
}
