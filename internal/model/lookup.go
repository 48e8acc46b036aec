package model

import (
	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
)

// Resolve looks up a symbol of any category by name. A failed lookup
// before the model is frozen is also recorded as a build error.
func (m *Model) Resolve(kind Kind, name string) (Handle, error) {
	if kind == KindIndexSet {
		id, ok := m.space.Lookup(name)
		if !ok {
			return Handle{}, m.unknown(kind, name)
		}
		return Handle{Kind: kind, ID: int(id)}, nil
	}
	id, ok := m.names[kind][name]
	if !ok {
		return Handle{}, m.unknown(kind, name)
	}
	return Handle{Kind: kind, ID: id}, nil
}

func (m *Model) unknown(kind Kind, name string) error {
	err := dynamo.Errorf(dynamo.ErrUnknownSymbol, name, "no %s with this name", kind)
	if !m.frozen {
		m.fail(err)
	}
	return err
}

func (m *Model) GetIndexSetHandle(name string) (index.SetID, error) {
	h, err := m.Resolve(KindIndexSet, name)
	if err != nil {
		return index.None, err
	}
	return index.SetID(h.ID), nil
}

// GetEquationHandle finds an equation registered by another module. The
// equation's body may still be unset.
func (m *Model) GetEquationHandle(name string) (EquationID, error) {
	h, err := m.Resolve(KindEquation, name)
	if err != nil {
		return NoEquation, err
	}
	return EquationID(h.ID), nil
}

func (m *Model) GetParameterHandle(name string) (ParameterID, error) {
	h, err := m.Resolve(KindParameter, name)
	if err != nil {
		return NoParameter, err
	}
	return ParameterID(h.ID), nil
}

func (m *Model) GetInputHandle(name string) (InputID, error) {
	h, err := m.Resolve(KindInput, name)
	if err != nil {
		return NoInput, err
	}
	return InputID(h.ID), nil
}

func (m *Model) GetSolverHandle(name string) (SolverID, error) {
	h, err := m.Resolve(KindSolver, name)
	if err != nil {
		return NoSolver, err
	}
	return SolverID(h.ID), nil
}

func (m *Model) GetUnitHandle(name string) (UnitID, error) {
	h, err := m.Resolve(KindUnit, name)
	if err != nil {
		return NoUnit, err
	}
	return UnitID(h.ID), nil
}

func (m *Model) Parameter(id ParameterID) *Parameter { return at(m.params, int(id)) }

func (m *Model) Input(id InputID) *Input { return at(m.inputs, int(id)) }

func (m *Model) Equation(id EquationID) *Equation { return at(m.equations, int(id)) }

func (m *Model) Solver(id SolverID) *Solver { return at(m.solvers, int(id)) }

func (m *Model) Unit(id UnitID) *Unit { return at(m.units, int(id)) }

func (m *Model) Group(id GroupID) *Group { return at(m.groups, int(id)) }

func (m *Model) Module(id ModuleID) *Module { return at(m.modules, int(id)) }

// Parameters returns all parameters in registration order. The slice
// must not be modified.
func (m *Model) Parameters() []*Parameter { return m.params }

func (m *Model) Inputs() []*Input { return m.inputs }

func (m *Model) Equations() []*Equation { return m.equations }

func (m *Model) Solvers() []*Solver { return m.solvers }

func (m *Model) Units() []*Unit { return m.units }

func (m *Model) Groups() []*Group { return m.groups }

func (m *Model) Modules() []*Module { return m.modules }

// UnitName returns the label of a unit, or "" for NoUnit.
func (m *Model) UnitName(id UnitID) string {
	if u := m.Unit(id); u != nil {
		return u.Name
	}
	return ""
}

// ModuleName returns the name of a module, or "" for NoModule.
func (m *Model) ModuleName(id ModuleID) string {
	if mod := m.Module(id); mod != nil {
		return mod.Name
	}
	return ""
}

func at[T any](s []*T, i int) *T {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}
