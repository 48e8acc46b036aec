package model

import (
	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
)

// RegisterEquation registers an algebraic equation. The body may be nil
// and set later with SetEquation.
func (m *Model) RegisterEquation(name string, unit UnitID, body Body) EquationID {
	return m.addEquation(name, Algebraic, unit, body)
}

// RegisterEquationODE registers an equation whose body is a time
// derivative. It needs a solver and an initial value before the model
// can be built.
func (m *Model) RegisterEquationODE(name string, unit UnitID, body Body) EquationID {
	return m.addEquation(name, ODE, unit, body)
}

// RegisterEquationInitialValue registers an equation evaluated once at
// run start to seed another equation.
func (m *Model) RegisterEquationInitialValue(name string, unit UnitID, body Body) EquationID {
	return m.addEquation(name, InitialValue, unit, body)
}

func (m *Model) addEquation(name string, kind EquationKind, unit UnitID, body Body) EquationID {
	if !m.checkUnit(name, unit) {
		return NoEquation
	}
	id := EquationID(len(m.equations))
	if !m.claim(KindEquation, name, int(id)) {
		return NoEquation
	}
	m.equations = append(m.equations, &Equation{
		ID:               id,
		Name:             name,
		Kind:             kind,
		Unit:             unit,
		Module:           m.module,
		Body:             body,
		Solver:           NoSolver,
		InitialEquation:  NoEquation,
		InitialParameter: NoParameter,
	})
	return id
}

// editable returns the equation if it exists and the model is not
// frozen, recording an error otherwise.
func (m *Model) editable(eq EquationID, op string) *Equation {
	e := m.Equation(eq)
	if e == nil {
		m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, "", "%s: equation handle %d", op, eq))
		return nil
	}
	if m.frozen {
		m.fail(dynamo.Errorf(dynamo.ErrPhase, e.Name, "%s: model is frozen", op))
		return nil
	}
	return e
}

// SetEquation sets or replaces the body of an equation.
func (m *Model) SetEquation(eq EquationID, body Body) {
	if e := m.editable(eq, "SetEquation"); e != nil {
		e.Body = body
	}
}

// SetIndexSets declares the signature of an equation instead of letting
// it be inferred. Calling it with no sets declares a scalar.
func (m *Model) SetIndexSets(eq EquationID, sets ...index.SetID) {
	e := m.editable(eq, "SetIndexSets")
	if e == nil || !m.checkSets(e.Name, sets) {
		return
	}
	e.Sig = m.space.Normalize(sets...)
	e.Declared = true
}

// SetSolver assigns an ODE or algebraic equation to a solver. Algebraic
// equations in a solver are evaluated at every stage of the solver's
// method.
func (m *Model) SetSolver(eq EquationID, solver SolverID) {
	e := m.editable(eq, "SetSolver")
	if e == nil {
		return
	}
	if m.Solver(solver) == nil {
		m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, e.Name, "solver handle %d", solver))
		return
	}
	if e.Kind == InitialValue {
		m.fail(dynamo.Errorf(dynamo.ErrIncompleteModel, e.Name, "initial-value equations cannot be assigned to a solver"))
		return
	}
	e.Solver = solver
}

// SetInitialValue seeds eq from an initial-value equation at run start.
func (m *Model) SetInitialValue(eq, initial EquationID) {
	e := m.editable(eq, "SetInitialValue")
	if e == nil {
		return
	}
	iv := m.Equation(initial)
	if iv == nil {
		m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, e.Name, "initial value equation handle %d", initial))
		return
	}
	if iv.Kind != InitialValue {
		m.fail(dynamo.Errorf(dynamo.ErrIncompleteModel, e.Name, "%q is not an initial-value equation", iv.Name))
		return
	}
	e.InitialEquation = initial
	e.InitialParameter = NoParameter
}

// SetInitialValueParameter seeds eq from a parameter at run start.
func (m *Model) SetInitialValueParameter(eq EquationID, p ParameterID) {
	e := m.editable(eq, "SetInitialValueParameter")
	if e == nil {
		return
	}
	if m.Parameter(p) == nil {
		m.fail(dynamo.Errorf(dynamo.ErrUnknownSymbol, e.Name, "parameter handle %d", p))
		return
	}
	e.InitialParameter = p
	e.InitialEquation = NoEquation
}
