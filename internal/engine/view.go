package engine

import (
	"fmt"
	"time"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

// view is the model.View of one evaluated instance. Reads that fail
// return 0 and keep the first error, which the caller checks after the
// body returns.
type view struct {
	r       *Run
	c       *compiled
	members []int
	t       float64
	// stage is set while a solver block evaluates its right-hand side.
	stage *blockSystem
	err   *dynamo.Error
}

var _ model.View = (*view)(nil)

// bind points the view at instance off of c.
func (v *view) bind(c *compiled, off int, t float64, stage *blockSystem) {
	v.c = c
	v.t = t
	v.stage = stage
	if cap(v.members) < c.shape.Rank() {
		v.members = make([]int, c.shape.Rank())
	}
	v.members = v.members[:c.shape.Rank()]
	c.shape.Decode(off, v.members)
}

func (v *view) fail(kind error, symbol string, format string, args ...any) {
	if v.err != nil {
		return
	}
	v.err = &dynamo.Error{Kind: kind, Symbol: symbol, Step: -1, Detail: fmt.Sprintf(format, args...)}
}

// slot resolves a read to the target slot.
func (v *view) slot(kind model.Kind, id int, last bool, name string, at []index.Pair) (int, bool) {
	proj, ok := v.c.reads[readKey{kind: kind, id: id, last: last}]
	if !ok {
		v.fail(dynamo.ErrIncompleteModel, v.c.eq.Name,
			"read of %s %q was not recorded when dependencies were built", kind, name)
		return 0, false
	}
	if len(at) == 0 {
		return proj.Offset(v.members), true
	}
	off, err := proj.OffsetWith(v.members, at)
	if err != nil {
		if v.err == nil {
			sp := v.r.ds.Space()
			v.fail(dynamo.ErrIndexOutOfRange, name, "read from %q, signature %s", v.c.eq.Name, sp.Format(proj.Target().Sig))
			v.err.Index = sp.FormatTuple(at)
		}
		return 0, false
	}
	return off, true
}

func (v *view) Parameter(id model.ParameterID) float64 { return v.ParameterAt(id) }

func (v *view) ParameterAt(id model.ParameterID, at ...index.Pair) float64 {
	par := v.r.prog.Model.Parameter(id)
	if par == nil {
		v.fail(dynamo.ErrUnknownSymbol, v.c.eq.Name, "parameter handle %d", id)
		return 0
	}
	off, ok := v.slot(model.KindParameter, int(id), false, par.Name, at)
	if !ok {
		return 0
	}
	return v.r.ds.ParameterSlot(id, off)
}

func (v *view) ParameterBool(id model.ParameterID) bool { return v.Parameter(id) != 0 }

func (v *view) ParameterUInt(id model.ParameterID) uint64 { return uint64(v.Parameter(id)) }

func (v *view) ParameterEnum(id model.ParameterID) string {
	par := v.r.prog.Model.Parameter(id)
	i := int(v.Parameter(id))
	if par == nil || par.Type != model.ParamEnum || i < 0 || i >= len(par.Options) {
		return ""
	}
	return par.Options[i]
}

func (v *view) Input(id model.InputID) float64 { return v.InputAt(id) }

func (v *view) InputAt(id model.InputID, at ...index.Pair) float64 {
	in := v.r.prog.Model.Input(id)
	if in == nil {
		v.fail(dynamo.ErrUnknownSymbol, v.c.eq.Name, "input handle %d", id)
		return 0
	}
	off, ok := v.slot(model.KindInput, int(id), false, in.Name, at)
	if !ok {
		return 0
	}
	return v.r.ds.InputSlot(id, v.r.step, off)
}

func (v *view) Result(id model.EquationID) float64 { return v.ResultAt(id) }

func (v *view) ResultAt(id model.EquationID, at ...index.Pair) float64 {
	return v.result(id, false, at)
}

func (v *view) LastResult(id model.EquationID) float64 { return v.LastResultAt(id) }

func (v *view) LastResultAt(id model.EquationID, at ...index.Pair) float64 {
	return v.result(id, true, at)
}

func (v *view) result(id model.EquationID, last bool, at []index.Pair) float64 {
	eq := v.r.prog.Model.Equation(id)
	if eq == nil {
		v.fail(dynamo.ErrUnknownSymbol, v.c.eq.Name, "equation handle %d", id)
		return 0
	}
	off, ok := v.slot(model.KindEquation, int(id), last, eq.Name, at)
	if !ok {
		return 0
	}
	if last {
		return v.r.ds.ResultSlot(id, storage.Previous, off)
	}
	if v.stage != nil {
		if x, ok := v.stage.value(id, off); ok {
			return x
		}
	}
	return v.r.ds.ResultSlot(id, storage.Current, off)
}

func (v *view) Index(set index.SetID) int {
	proj, ok := v.c.index[set]
	if !ok {
		name := fmt.Sprintf("#%d", set)
		if s := v.r.ds.Space().Set(set); s != nil {
			name = s.Name
		}
		v.fail(dynamo.ErrIncompleteModel, v.c.eq.Name,
			"index of set %s was not requested when dependencies were built", name)
		return 0
	}
	return proj.Offset(v.members)
}

func (v *view) IndexCount(set index.SetID) int {
	s := v.r.ds.Space().Set(set)
	if s == nil {
		v.fail(dynamo.ErrUnknownSymbol, v.c.eq.Name, "index set handle %d", set)
		return 0
	}
	return s.Count()
}

func (v *view) Timestep() int { return v.r.step }

func (v *view) Time() float64 { return v.t }

func (v *view) Date() time.Time { return v.r.cfg.DateAt(v.r.step) }
