// Package storage holds the values of a model run: parameters, input
// series and two generations of equation results, each replicated over
// the symbol's index signature.
package storage

import (
	"fmt"
	"slices"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
)

type Generation int

const (
	Current Generation = iota
	Previous
)

func (g Generation) String() string {
	if g == Previous {
		return "previous"
	}
	return "current"
}

// Layout describes what a data set stores. EquationSigs holds the
// final signature of every equation of Model, indexed by EquationID.
type Layout struct {
	Model        *model.Model
	EquationSigs []index.Signature
}

type DataSet struct {
	layout Layout
	space  *index.Space
	steps  int

	// BoundsCheck validates tuples passed to the tuple-based accessors.
	BoundsCheck bool

	paramShapes []index.Shape
	params      [][]float64

	inputShapes []index.Shape
	inputs      [][]float64

	resultShapes []index.Shape
	resultBase   []int
	gens         [2][]float64
	written      []bool
	cur          int

	locked bool
}

// New allocates a data set for steps timesteps. Parameters start at
// their defaults, inputs and results at zero.
func New(layout Layout, steps int) *DataSet {
	m := layout.Model
	ds := &DataSet{
		layout:      layout,
		space:       m.Space(),
		steps:       steps,
		BoundsCheck: true,
	}

	for _, p := range m.Parameters() {
		sh := ds.space.Shape(p.Sig)
		values := make([]float64, sh.Size())
		for i := range values {
			values[i] = p.Default
		}
		ds.paramShapes = append(ds.paramShapes, sh)
		ds.params = append(ds.params, values)
	}

	for _, in := range m.Inputs() {
		sh := ds.space.Shape(in.Sig)
		ds.inputShapes = append(ds.inputShapes, sh)
		ds.inputs = append(ds.inputs, make([]float64, steps*sh.Size()))
	}

	total := 0
	for _, sig := range layout.EquationSigs {
		sh := ds.space.Shape(sig)
		ds.resultShapes = append(ds.resultShapes, sh)
		ds.resultBase = append(ds.resultBase, total)
		total += sh.Size()
	}
	ds.gens[0] = make([]float64, total)
	ds.gens[1] = make([]float64, total)
	ds.written = make([]bool, total)
	return ds
}

func (ds *DataSet) Steps() int { return ds.steps }

func (ds *DataSet) Space() *index.Space { return ds.space }

// Lock marks the data set as owned by a run. Parameters and inputs
// cannot be changed until Unlock.
func (ds *DataSet) Lock() error {
	if ds.locked {
		return dynamo.ErrLocked
	}
	ds.locked = true
	return nil
}

func (ds *DataSet) Unlock() { ds.locked = false }

func (ds *DataSet) Locked() bool { return ds.locked }

func (ds *DataSet) ParameterShape(p model.ParameterID) index.Shape { return ds.paramShapes[p] }

func (ds *DataSet) InputShape(in model.InputID) index.Shape { return ds.inputShapes[in] }

func (ds *DataSet) ResultShape(eq model.EquationID) index.Shape { return ds.resultShapes[eq] }

func (ds *DataSet) tupleErr(kind error, name string, t index.Tuple, format string, args ...any) error {
	err := dynamo.Errorf(kind, name, format, args...)
	if len(t) > 0 {
		err.Index = ds.space.FormatTuple(t)
	}
	return err
}

func (ds *DataSet) offset(sh index.Shape, name string, t index.Tuple) (int, error) {
	off, err := sh.TupleOffset(t, ds.BoundsCheck)
	if err != nil {
		return 0, ds.tupleErr(dynamo.ErrIndexOutOfRange, name, t, "tuple does not match signature %s", ds.space.Format(sh.Sig))
	}
	return off, nil
}

// SetParameter sets one instance of a parameter.
func (ds *DataSet) SetParameter(p model.ParameterID, t index.Tuple, v float64) error {
	par := ds.layout.Model.Parameter(p)
	if par == nil {
		return dynamo.Errorf(dynamo.ErrUnknownSymbol, "", "parameter handle %d", p)
	}
	if ds.locked {
		return dynamo.Errorf(dynamo.ErrLocked, par.Name, "parameters are read-only during a run")
	}
	if !par.Validate(v) {
		return ds.tupleErr(dynamo.ErrParameterBounds, par.Name, t, "%g outside [%g, %g]", v, par.Min, par.Max)
	}
	off, err := ds.offset(ds.paramShapes[p], par.Name, t)
	if err != nil {
		return err
	}
	ds.params[p][off] = v
	return nil
}

// SetParameterAll sets every instance of a parameter.
func (ds *DataSet) SetParameterAll(p model.ParameterID, v float64) error {
	par := ds.layout.Model.Parameter(p)
	if par == nil {
		return dynamo.Errorf(dynamo.ErrUnknownSymbol, "", "parameter handle %d", p)
	}
	if ds.locked {
		return dynamo.Errorf(dynamo.ErrLocked, par.Name, "parameters are read-only during a run")
	}
	if !par.Validate(v) {
		return dynamo.Errorf(dynamo.ErrParameterBounds, par.Name, "%g outside [%g, %g]", v, par.Min, par.Max)
	}
	for i := range ds.params[p] {
		ds.params[p][i] = v
	}
	return nil
}

func (ds *DataSet) Parameter(p model.ParameterID, t index.Tuple) (float64, error) {
	par := ds.layout.Model.Parameter(p)
	if par == nil {
		return 0, dynamo.Errorf(dynamo.ErrUnknownSymbol, "", "parameter handle %d", p)
	}
	off, err := ds.offset(ds.paramShapes[p], par.Name, t)
	if err != nil {
		return 0, err
	}
	return ds.params[p][off], nil
}

// SetInput copies a series of one value per step into one instance of
// an input.
func (ds *DataSet) SetInput(in model.InputID, t index.Tuple, series []float64) error {
	input := ds.layout.Model.Input(in)
	if input == nil {
		return dynamo.Errorf(dynamo.ErrUnknownSymbol, "", "input handle %d", in)
	}
	if ds.locked {
		return dynamo.Errorf(dynamo.ErrLocked, input.Name, "inputs are read-only during a run")
	}
	if len(series) != ds.steps {
		return fmt.Errorf("%w: input %q has %d values for %d steps", dynamo.ErrInvalidConfig, input.Name, len(series), ds.steps)
	}
	sh := ds.inputShapes[in]
	off, err := ds.offset(sh, input.Name, t)
	if err != nil {
		return err
	}
	for step, v := range series {
		ds.inputs[in][step*sh.Size()+off] = v
	}
	return nil
}

// Input returns one instance of an input at a step.
func (ds *DataSet) Input(in model.InputID, t index.Tuple, step int) (float64, error) {
	input := ds.layout.Model.Input(in)
	if input == nil {
		return 0, dynamo.Errorf(dynamo.ErrUnknownSymbol, "", "input handle %d", in)
	}
	if step < 0 || step >= ds.steps {
		return 0, ds.tupleErr(dynamo.ErrIndexOutOfRange, input.Name, t, "step %d outside [0, %d)", step, ds.steps)
	}
	sh := ds.inputShapes[in]
	off, err := ds.offset(sh, input.Name, t)
	if err != nil {
		return 0, err
	}
	return ds.inputs[in][step*sh.Size()+off], nil
}

// Read returns one instance of an equation result.
func (ds *DataSet) Read(eq model.EquationID, t index.Tuple, gen Generation) (float64, error) {
	e := ds.layout.Model.Equation(eq)
	if e == nil {
		return 0, dynamo.Errorf(dynamo.ErrUnknownSymbol, "", "equation handle %d", eq)
	}
	off, err := ds.offset(ds.resultShapes[eq], e.Name, t)
	if err != nil {
		return 0, err
	}
	return ds.ResultSlot(eq, gen, off), nil
}

// Write stores one instance of an equation result into the current
// generation. Each slot may be written once per step.
func (ds *DataSet) Write(eq model.EquationID, t index.Tuple, v float64) error {
	e := ds.layout.Model.Equation(eq)
	if e == nil {
		return dynamo.Errorf(dynamo.ErrUnknownSymbol, "", "equation handle %d", eq)
	}
	off, err := ds.offset(ds.resultShapes[eq], e.Name, t)
	if err != nil {
		return err
	}
	if !ds.WriteSlot(eq, off, v) {
		return ds.tupleErr(dynamo.ErrWriteConflict, e.Name, t, "slot already written this step")
	}
	return nil
}

// BeginStep clears the written flags.
func (ds *DataSet) BeginStep() { clear(ds.written) }

// Rotate makes the current generation the previous one and clears the
// written flags. The new current generation keeps stale values until
// overwritten.
func (ds *DataSet) Rotate() {
	ds.cur ^= 1
	clear(ds.written)
}

func (ds *DataSet) gen(g Generation) []float64 {
	if g == Previous {
		return ds.gens[ds.cur^1]
	}
	return ds.gens[ds.cur]
}

// ParameterSlot, InputSlot and ResultSlot read by precomputed slot
// offset without validation.
func (ds *DataSet) ParameterSlot(p model.ParameterID, off int) float64 { return ds.params[p][off] }

func (ds *DataSet) InputSlot(in model.InputID, step, off int) float64 {
	return ds.inputs[in][step*ds.inputShapes[in].Size()+off]
}

func (ds *DataSet) ResultSlot(eq model.EquationID, gen Generation, off int) float64 {
	return ds.gen(gen)[ds.resultBase[eq]+off]
}

// WriteSlot writes by slot offset. It reports false, writing nothing,
// when the slot was already written this step.
func (ds *DataSet) WriteSlot(eq model.EquationID, off int, v float64) bool {
	i := ds.resultBase[eq] + off
	if ds.written[i] {
		return false
	}
	ds.written[i] = true
	ds.gen(Current)[i] = v
	return true
}

// Results returns a copy of every instance of an equation.
func (ds *DataSet) Results(eq model.EquationID, gen Generation) []float64 {
	base := ds.resultBase[eq]
	return slices.Clone(ds.gen(gen)[base : base+ds.resultShapes[eq].Size()])
}

// Snapshot returns a copy of one whole generation.
func (ds *DataSet) Snapshot(gen Generation) []float64 {
	return slices.Clone(ds.gen(gen))
}

// Reset zeroes both result generations and the written flags, keeping
// parameters and inputs.
func (ds *DataSet) Reset() error {
	if ds.locked {
		return dynamo.ErrLocked
	}
	clear(ds.gens[0])
	clear(ds.gens[1])
	clear(ds.written)
	ds.cur = 0
	return nil
}
