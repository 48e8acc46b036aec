// Package model is the build-time API for defining a model: index sets,
// parameters, inputs, equations and solvers, all addressed by typed
// handles.
//
// Registration never fails immediately. Errors such as name collisions
// or references to unknown handles are collected and reported together
// by Err, which the program builder checks before doing anything else.
// A Model is frozen once a program has been built from it.
package model

import (
	"errors"
	"math"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
)

const (
	DefaultTolerance  = 1e-6
	DefaultMaxRetries = 20
)

type Model struct {
	Name string

	space     *index.Space
	modules   []*Module
	units     []*Unit
	groups    []*Group
	params    []*Parameter
	inputs    []*Input
	equations []*Equation
	solvers   []*Solver

	names  map[Kind]map[string]int
	module ModuleID
	errs   []error
	frozen bool
}

func New(name string) *Model {
	return &Model{
		Name:   name,
		space:  index.NewSpace(),
		names:  make(map[Kind]map[string]int),
		module: NoModule,
	}
}

func (m *Model) Space() *index.Space { return m.space }

// Err returns every registration error so far, joined.
func (m *Model) Err() error { return errors.Join(m.errs...) }

func (m *Model) fail(err error) { m.errs = append(m.errs, err) }

// Freeze forbids further registration.
func (m *Model) Freeze() {
	m.frozen = true
	m.space.Freeze()
}

func (m *Model) Frozen() bool { return m.frozen }

// claim reserves a name in a category. It reports false after recording
// the error.
func (m *Model) claim(kind Kind, name string, id int) bool {
	if m.frozen {
		m.fail(dynamo.Errorf(dynamo.ErrPhase, name, "model is frozen"))
		return false
	}
	byName := m.names[kind]
	if byName == nil {
		byName = make(map[string]int)
		m.names[kind] = byName
	}
	if _, dup := byName[name]; dup {
		m.fail(dynamo.Errorf(dynamo.ErrNameCollision, name, "%s already registered", kind))
		return false
	}
	byName[name] = id
	return true
}

// BeginModule tags every following registration with a module until
// EndModule.
func (m *Model) BeginModule(name, version string) ModuleID {
	id := ModuleID(len(m.modules))
	if !m.claim(KindModule, name, int(id)) {
		return NoModule
	}
	m.modules = append(m.modules, &Module{ID: id, Name: name, Version: version})
	m.module = id
	return id
}

func (m *Model) EndModule() { m.module = NoModule }

func (m *Model) RegisterIndexSet(name string, members ...string) index.SetID {
	if m.frozen {
		m.fail(dynamo.Errorf(dynamo.ErrPhase, name, "model is frozen"))
		return index.None
	}
	id, err := m.space.Register(name, members...)
	if err != nil {
		m.fail(err)
	}
	return id
}

// RegisterIndexSetCount registers a set with members "0".."n-1".
func (m *Model) RegisterIndexSetCount(name string, n int) index.SetID {
	if m.frozen {
		m.fail(dynamo.Errorf(dynamo.ErrPhase, name, "model is frozen"))
		return index.None
	}
	id, err := m.space.RegisterCount(name, n)
	if err != nil {
		m.fail(err)
	}
	return id
}

// RegisterSubIndexSet registers a set nested under parent, with members
// listed per parent member.
func (m *Model) RegisterSubIndexSet(name string, parent index.SetID, byParent map[string][]string) index.SetID {
	if m.frozen {
		m.fail(dynamo.Errorf(dynamo.ErrPhase, name, "model is frozen"))
		return index.None
	}
	id, err := m.space.RegisterSub(name, parent, byParent)
	if err != nil {
		m.fail(err)
	}
	return id
}

func (m *Model) RegisterUnit(name string) UnitID {
	id := UnitID(len(m.units))
	if !m.claim(KindUnit, name, int(id)) {
		return NoUnit
	}
	m.units = append(m.units, &Unit{ID: id, Name: name})
	return id
}

// RegisterParameterGroup registers a group whose parameters vary over
// the given sets.
func (m *Model) RegisterParameterGroup(name string, sets ...index.SetID) GroupID {
	if !m.checkSets(name, sets) {
		return NoGroup
	}
	id := GroupID(len(m.groups))
	if !m.claim(KindGroup, name, int(id)) {
		return NoGroup
	}
	m.groups = append(m.groups, &Group{ID: id, Name: name, Sig: m.space.Normalize(sets...), Module: m.module})
	return id
}

func (m *Model) RegisterParameterDouble(group GroupID, name string, unit UnitID, def, lo, hi float64, desc string) ParameterID {
	return m.addParameter(&Parameter{
		Name: name, Type: ParamDouble, Unit: unit, Group: group,
		Default: def, Min: lo, Max: hi, Description: desc,
	})
}

func (m *Model) RegisterParameterUInt(group GroupID, name string, unit UnitID, def, lo, hi uint64, desc string) ParameterID {
	return m.addParameter(&Parameter{
		Name: name, Type: ParamUInt, Unit: unit, Group: group,
		Default: float64(def), Min: float64(lo), Max: float64(hi), Description: desc,
	})
}

func (m *Model) RegisterParameterBool(group GroupID, name string, def bool, desc string) ParameterID {
	d := 0.0
	if def {
		d = 1
	}
	return m.addParameter(&Parameter{
		Name: name, Type: ParamBool, Unit: NoUnit, Group: group,
		Default: d, Min: 0, Max: 1, Description: desc,
	})
}

// RegisterParameterEnum registers a parameter choosing one of options.
func (m *Model) RegisterParameterEnum(group GroupID, name string, options []string, def string, desc string) ParameterID {
	d := -1
	for i, o := range options {
		if o == def {
			d = i
		}
	}
	if d < 0 {
		m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, name, "default %q is not an option", def))
		return NoParameter
	}
	return m.addParameter(&Parameter{
		Name: name, Type: ParamEnum, Unit: NoUnit, Group: group,
		Default: float64(d), Min: 0, Max: float64(len(options) - 1),
		Options: append([]string(nil), options...), Description: desc,
	})
}

func (m *Model) addParameter(p *Parameter) ParameterID {
	if p.Unit != NoUnit && m.Unit(p.Unit) == nil {
		m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, p.Name, "unit handle %d", p.Unit))
		return NoParameter
	}
	if p.Group != NoGroup {
		g := m.Group(p.Group)
		if g == nil {
			m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, p.Name, "parameter group handle %d", p.Group))
			return NoParameter
		}
		p.Sig = g.Sig
	}
	if math.IsNaN(p.Default) || p.Min > p.Max || !p.Validate(p.Default) {
		m.fail(dynamo.Errorf(dynamo.ErrParameterBounds, p.Name, "default %g outside [%g, %g]", p.Default, p.Min, p.Max))
		return NoParameter
	}

	p.ID = ParameterID(len(m.params))
	if !m.claim(KindParameter, p.Name, int(p.ID)) {
		return NoParameter
	}
	p.Module = m.module
	m.params = append(m.params, p)
	return p.ID
}

// RegisterInput registers an externally supplied time series.
func (m *Model) RegisterInput(name string, unit UnitID, sets ...index.SetID) InputID {
	if !m.checkSets(name, sets) || !m.checkUnit(name, unit) {
		return NoInput
	}
	id := InputID(len(m.inputs))
	if !m.claim(KindInput, name, int(id)) {
		return NoInput
	}
	m.inputs = append(m.inputs, &Input{ID: id, Name: name, Unit: unit, Sig: m.space.Normalize(sets...), Module: m.module})
	return id
}

// RegisterSolver registers a solver running method with a base step
// given as a fraction of the model timestep, in (0, 1].
func (m *Model) RegisterSolver(name, method string, baseStep float64, opts ...SolverOption) SolverID {
	s := &Solver{
		Name:       name,
		Method:     method,
		Step:       baseStep,
		Tolerance:  DefaultTolerance,
		MaxRetries: DefaultMaxRetries,
		Module:     m.module,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !(s.Step > 0 && s.Step <= 1) || !(s.Tolerance > 0) || s.MaxRetries < 0 {
		m.fail(dynamo.Errorf(dynamo.ErrInvalidConfig, name, "solver step %g must be in (0, 1], tolerance %g positive", s.Step, s.Tolerance))
		return NoSolver
	}

	s.ID = SolverID(len(m.solvers))
	if !m.claim(KindSolver, name, int(s.ID)) {
		return NoSolver
	}
	m.solvers = append(m.solvers, s)
	return s.ID
}

func (m *Model) checkSets(name string, sets []index.SetID) bool {
	for _, s := range sets {
		if m.space.Set(s) == nil {
			m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, name, "index set handle %d", s))
			return false
		}
	}
	return true
}

func (m *Model) checkUnit(name string, unit UnitID) bool {
	if unit != NoUnit && m.Unit(unit) == nil {
		m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, name, "unit handle %d", unit))
		return false
	}
	return true
}
