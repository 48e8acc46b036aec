package model

import (
	"time"

	"github.com/san-kum/ecosim/internal/index"
)

// View is everything an equation body may read. Each body is evaluated
// once per instance of its equation's signature; the plain accessors
// read the instance of the target matching the one being evaluated,
// repeating lower-dimensional values (broadcast). The At variants
// address sets the evaluated instance does not carry, typically inside
// an explicit aggregation loop over IndexCount.
//
// Result reads the current step and orders the target before the
// reader. LastResult reads the previous step and imposes no order.
type View interface {
	Parameter(p ParameterID) float64
	ParameterBool(p ParameterID) bool
	ParameterUInt(p ParameterID) uint64
	ParameterEnum(p ParameterID) string
	Input(in InputID) float64
	Result(eq EquationID) float64
	LastResult(eq EquationID) float64

	ParameterAt(p ParameterID, at ...index.Pair) float64
	InputAt(in InputID, at ...index.Pair) float64
	ResultAt(eq EquationID, at ...index.Pair) float64
	LastResultAt(eq EquationID, at ...index.Pair) float64

	// Index returns the member of set in the evaluated instance.
	Index(set index.SetID) int
	IndexCount(set index.SetID) int

	Timestep() int
	Time() float64
	Date() time.Time
}

// At is shorthand for an explicit index pair.
func At(set index.SetID, member int) index.Pair {
	return index.Pair{Set: set, Member: member}
}
