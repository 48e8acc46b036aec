package models

import (
	"time"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

// Reservoirs is a cascade of linear reservoirs. Each one drains through
// a regulated release proportional to storage and spills sharply above
// capacity; the release and spill of one reservoir flow into the next.
type Reservoirs struct {
	m *model.Model

	Reservoir index.SetID

	ResidenceTime   model.ParameterID
	Capacity        model.ParameterID
	SpillRate       model.ParameterID
	InitialStorage  model.ParameterID
	AbstractionRate model.ParameterID

	Runoff model.InputID

	Storage      model.EquationID
	Release      model.EquationID
	Spill        model.EquationID
	Inflow       model.EquationID
	Outflow      model.EquationID
	Abstraction  model.EquationID
	FillFraction model.EquationID
	TotalStorage model.EquationID
}

// NewReservoirs builds a cascade in the given order, upstream first.
func NewReservoirs(names ...string) *Reservoirs {
	if len(names) == 0 {
		names = []string{"Upper", "Middle", "Lower"}
	}
	r := &Reservoirs{m: model.New("Reservoir cascade")}
	m := r.m

	m.BeginModule("Reservoir cascade", "0.1")
	dimless := m.RegisterUnit("1")
	days := m.RegisterUnit("day")
	perDay := m.RegisterUnit("1/day")
	m3 := m.RegisterUnit("m3")
	m3s := m.RegisterUnit("m3/s")

	r.Reservoir = m.RegisterIndexSet("Reservoir", names...)
	res := m.RegisterParameterGroup("Reservoirs", r.Reservoir)
	r.ResidenceTime = m.RegisterParameterDouble(res, "Residence time", days, 20, 0.1, 1e4, "Storage divided by regulated release")
	r.Capacity = m.RegisterParameterDouble(res, "Capacity", m3, 5e7, 0, 1e12, "")
	r.SpillRate = m.RegisterParameterDouble(res, "Spill rate", perDay, 50, 0, 1e4, "Fraction of the excess over capacity spilled per day")
	r.InitialStorage = m.RegisterParameterDouble(res, "Initial storage", m3, 2e7, 0, 1e12, "")
	r.AbstractionRate = m.RegisterParameterDouble(res, "Abstraction", m3s, 0, 0, 1e4, "Water supply taken from storage")

	r.Runoff = m.RegisterInput("Catchment runoff", m3s, r.Reservoir)

	// Spilling makes the system stiff.
	solver := m.RegisterSolver("Reservoir solver", "implicit-euler", 0.5, model.WithTolerance(1e-4))

	r.Storage = m.RegisterEquationODE("Storage", m3, func(v model.View) float64 {
		return (v.Result(r.Inflow) - v.Result(r.Outflow) - v.Result(r.Abstraction)) * secondsPerDay
	})
	m.SetSolver(r.Storage, solver)
	m.SetInitialValueParameter(r.Storage, r.InitialStorage)

	r.Release = m.RegisterEquation("Regulated release", m3s, func(v model.View) float64 {
		s := max(0, v.Result(r.Storage))
		return s / (v.Parameter(r.ResidenceTime) * secondsPerDay)
	})
	m.SetSolver(r.Release, solver)

	r.Spill = m.RegisterEquation("Spill", m3s, func(v model.View) float64 {
		excess := max(0, v.Result(r.Storage)-v.Parameter(r.Capacity))
		return v.Parameter(r.SpillRate) * excess / secondsPerDay
	})
	m.SetSolver(r.Spill, solver)

	r.Outflow = m.RegisterEquation("Outflow", m3s, func(v model.View) float64 {
		return v.Result(r.Release) + v.Result(r.Spill)
	})
	m.SetSolver(r.Outflow, solver)

	r.Abstraction = m.RegisterEquation("Abstraction", m3s, func(v model.View) float64 {
		want := v.Parameter(r.AbstractionRate)
		if v.Result(r.Storage) <= 0 {
			return 0
		}
		return want
	})
	m.SetSolver(r.Abstraction, solver)

	r.Inflow = m.RegisterEquation("Inflow", m3s, func(v model.View) float64 {
		i := v.Index(r.Reservoir)
		upstream := v.ResultAt(r.Outflow, model.At(r.Reservoir, max(i-1, 0)))
		if i == 0 {
			upstream = 0
		}
		return v.Input(r.Runoff) + upstream
	})
	m.SetSolver(r.Inflow, solver)

	r.FillFraction = m.RegisterEquation("Fill fraction", dimless, func(v model.View) float64 {
		return safeDivide(v.Result(r.Storage), v.Parameter(r.Capacity))
	})

	r.TotalStorage = m.RegisterEquation("Total storage", m3, func(v model.View) float64 {
		total := 0.0
		for i := range v.IndexCount(r.Reservoir) {
			total += v.ResultAt(r.Storage, model.At(r.Reservoir, i))
		}
		return total
	})
	m.SetIndexSets(r.TotalStorage)

	m.EndModule()
	return r
}

func (r *Reservoirs) Model() *model.Model { return r.m }

// Drive gives every reservoir its own runoff, larger downstream.
func (r *Reservoirs) Drive(ds *storage.DataSet, cfg dynamo.Config) error {
	set := ds.Space().Set(r.Reservoir)
	for i := range set.Count() {
		t := index.Tuple{{Set: r.Reservoir, Member: i}}
		scale := float64(i + 1)
		err := series(ds, r.Runoff, t, cfg, func(d time.Time) float64 {
			return scale * seasonal(d, 8, 6, 110)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
