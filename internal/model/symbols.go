package model

import (
	"fmt"

	"github.com/san-kum/ecosim/internal/index"
)

type (
	ParameterID int
	InputID     int
	EquationID  int
	SolverID    int
	UnitID      int
	GroupID     int
	ModuleID    int
)

// Zero-value handles that mean "none".
const (
	NoUnit      UnitID      = -1
	NoGroup     GroupID     = -1
	NoSolver    SolverID    = -1
	NoEquation  EquationID  = -1
	NoParameter ParameterID = -1
	NoInput     InputID     = -1
	NoModule    ModuleID    = -1
)

// Kind is a symbol category. Names are unique within a category.
type Kind int

const (
	KindIndexSet Kind = iota
	KindUnit
	KindGroup
	KindParameter
	KindInput
	KindEquation
	KindSolver
	KindModule
)

var kindNames = [...]string{"index set", "unit", "parameter group", "parameter", "input", "equation", "solver", "module"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Handle is a typed reference returned by Resolve.
type Handle struct {
	Kind Kind
	ID   int
}

type ParamType int

const (
	ParamDouble ParamType = iota
	ParamUInt
	ParamBool
	ParamEnum
)

func (t ParamType) String() string {
	switch t {
	case ParamDouble:
		return "double"
	case ParamUInt:
		return "uint"
	case ParamBool:
		return "bool"
	case ParamEnum:
		return "enum"
	}
	return "unknown"
}

type EquationKind int

const (
	Algebraic EquationKind = iota
	ODE
	InitialValue
)

func (k EquationKind) String() string {
	switch k {
	case Algebraic:
		return "algebraic"
	case ODE:
		return "ode"
	case InitialValue:
		return "initial-value"
	}
	return "unknown"
}

type Module struct {
	ID      ModuleID
	Name    string
	Version string
}

type Unit struct {
	ID   UnitID
	Name string
}

// Group bundles parameters that share an index signature.
type Group struct {
	ID     GroupID
	Name   string
	Sig    index.Signature
	Module ModuleID
}

// Parameter values are stored as float64 regardless of Type. Bool is 0
// or 1 and Enum is the position of the option.
type Parameter struct {
	ID          ParameterID
	Name        string
	Type        ParamType
	Unit        UnitID
	Group       GroupID
	Sig         index.Signature
	Default     float64
	Min         float64
	Max         float64
	Options     []string
	Description string
	Module      ModuleID
}

// Validate checks a value against the declared range and type.
func (p *Parameter) Validate(v float64) bool {
	switch p.Type {
	case ParamBool:
		return v == 0 || v == 1
	case ParamEnum:
		return v == float64(int(v)) && v >= 0 && int(v) < len(p.Options)
	case ParamUInt:
		if v != float64(uint64(v)) {
			return false
		}
	}
	return v >= p.Min && v <= p.Max
}

type Input struct {
	ID     InputID
	Name   string
	Unit   UnitID
	Sig    index.Signature
	Module ModuleID
}

// Body computes one instance of an equation. It must only read through
// the view and must not keep it.
type Body func(View) float64

type Equation struct {
	ID     EquationID
	Name   string
	Kind   EquationKind
	Unit   UnitID
	Module ModuleID
	Body   Body

	// Sig is meaningful when Declared is set; otherwise it is inferred
	// when the program is built.
	Sig      index.Signature
	Declared bool

	Solver           SolverID
	InitialEquation  EquationID
	InitialParameter ParameterID
}

// HasInitialValue reports whether an initial value was assigned.
func (e *Equation) HasInitialValue() bool {
	return e.InitialEquation != NoEquation || e.InitialParameter != NoParameter
}

type Solver struct {
	ID     SolverID
	Name   string
	Method string
	// Step is the base step as a fraction of the model timestep.
	Step       float64
	Tolerance  float64
	MaxRetries int
	Module     ModuleID
}

type SolverOption func(*Solver)

// WithTolerance sets the local error tolerance of adaptive methods.
func WithTolerance(tol float64) SolverOption {
	return func(s *Solver) { s.Tolerance = tol }
}

// WithMaxRetries bounds step rejections per substep of adaptive methods.
func WithMaxRetries(n int) SolverOption {
	return func(s *Solver) { s.MaxRetries = n }
}
