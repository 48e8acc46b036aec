package dynamo

import (
	"errors"
	"fmt"
	"strings"
)

// Build-time errors. They stop a model definition from completing.
var (
	// ErrNameCollision indicates two symbols of one category share a name.
	ErrNameCollision = errors.New("dynamo: name collision")

	// ErrUnknownSymbol indicates a lookup of a name or handle that was never registered.
	ErrUnknownSymbol = errors.New("dynamo: unknown symbol")

	// ErrSignatureMismatch indicates an index signature that would need an implicit reduction.
	ErrSignatureMismatch = errors.New("dynamo: index signature mismatch")

	// ErrCyclicDependency indicates a dependency cycle through at least one same-step read.
	ErrCyclicDependency = errors.New("dynamo: cyclic dependency")

	// ErrIncompleteModel indicates a structural omission such as an ODE without a solver.
	ErrIncompleteModel = errors.New("dynamo: incomplete model")
)

// Run-time errors. They move a run to the failed phase.
var (
	// ErrIndexOutOfRange indicates an index tuple that does not fit a symbol's signature.
	ErrIndexOutOfRange = errors.New("dynamo: index out of range")

	// ErrWriteConflict indicates a second write of one slot within a step.
	ErrWriteConflict = errors.New("dynamo: write conflict")

	// ErrIntegrationDivergence indicates an adaptive solver exhausted its retry budget.
	ErrIntegrationDivergence = errors.New("dynamo: integration divergence")

	// ErrInvalidState indicates a NaN or Inf value when NaN testing is on.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrEquationPanic indicates an equation body that panicked.
	ErrEquationPanic = errors.New("dynamo: equation body panicked")
)

// Usage errors.
var (
	// ErrInvalidConfig indicates a run configuration that cannot be executed.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrParameterBounds indicates a parameter value outside its declared range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrPhase indicates an operation that is not allowed in the current run phase.
	ErrPhase = errors.New("dynamo: operation not allowed in current phase")

	// ErrLocked indicates mutation of a data set owned by a run.
	ErrLocked = errors.New("dynamo: data set is locked by a run")
)

// Error wraps a failure kind with the context needed to reproduce it.
// Step is -1 for build-time errors.
type Error struct {
	Kind    error
	Symbol  string
	Index   string
	Step    int
	Time    float64
	Cycle   []string
	Detail  string
	Wrapped error
}

// Errorf builds a build-time error of the given kind.
func Errorf(kind error, symbol string, format string, args ...any) *Error {
	return &Error{Kind: kind, Symbol: symbol, Step: -1, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Symbol != "" {
		fmt.Fprintf(&b, " (symbol=%q", e.Symbol)
		if e.Index != "" {
			fmt.Fprintf(&b, ", index=%s", e.Index)
		}
		b.WriteByte(')')
	}
	if e.Step >= 0 {
		fmt.Fprintf(&b, " at step %d (t=%.4f)", e.Step, e.Time)
	}
	if len(e.Cycle) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Cycle, " -> "))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Wrapped != nil {
		return []error{e.Kind, e.Wrapped}
	}
	return []error{e.Kind}
}

// At returns a copy of e stamped with the step and time, unless it
// already carries them.
func (e *Error) At(step int, t float64) *Error {
	c := *e
	if c.Step < 0 {
		c.Step = step
		c.Time = t
	}
	return &c
}

// KindOf reports which of the engine's failure kinds err matches, or nil.
func KindOf(err error) error {
	for _, k := range []error{
		ErrNameCollision, ErrUnknownSymbol, ErrSignatureMismatch, ErrCyclicDependency,
		ErrIncompleteModel, ErrIndexOutOfRange, ErrWriteConflict, ErrIntegrationDivergence,
		ErrInvalidState, ErrEquationPanic, ErrInvalidConfig, ErrParameterBounds, ErrPhase, ErrLocked,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
