package graph

import (
	"fmt"
	"slices"
	"time"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
)

// Read is one symbol an equation body reads.
type Read struct {
	Kind model.Kind
	ID   int
	// Last marks a previous-step read of an equation.
	Last bool
	// Plain is set when the symbol is read without explicit members;
	// Explicit lists the sets addressed through At pairs.
	Plain    bool
	Explicit []index.SetID
}

// probe is the view a body sees while its dependencies are recorded.
// Parameters read as their defaults and everything else as zero.
type probe struct {
	m     *model.Model
	reads []Read
	index []index.SetID
	err   *dynamo.Error
}

func (p *probe) record(kind model.Kind, id int, last bool, at []index.Pair) {
	var explicit []index.SetID
	for _, pair := range at {
		if p.m.Space().Set(pair.Set) == nil {
			p.fail(dynamo.ErrUnknownSymbol, "index set handle %d", pair.Set)
			return
		}
		explicit = append(explicit, pair.Set)
	}

	for i := range p.reads {
		r := &p.reads[i]
		if r.Kind != kind || r.ID != id || r.Last != last {
			continue
		}
		if len(at) == 0 {
			r.Plain = true
		}
		for _, s := range explicit {
			if !slices.Contains(r.Explicit, s) {
				r.Explicit = append(r.Explicit, s)
			}
		}
		return
	}
	p.reads = append(p.reads, Read{Kind: kind, ID: id, Last: last, Plain: len(at) == 0, Explicit: explicit})
}

func (p *probe) fail(kind error, format string, args ...any) {
	if p.err == nil {
		p.err = &dynamo.Error{Kind: kind, Step: -1, Detail: fmt.Sprintf(format, args...)}
	}
}

func (p *probe) param(id model.ParameterID, at []index.Pair) *model.Parameter {
	par := p.m.Parameter(id)
	if par == nil {
		p.fail(dynamo.ErrUnknownSymbol, "parameter handle %d", id)
		return nil
	}
	p.record(model.KindParameter, int(id), false, at)
	return par
}

func (p *probe) Parameter(id model.ParameterID) float64 { return p.ParameterAt(id) }

func (p *probe) ParameterAt(id model.ParameterID, at ...index.Pair) float64 {
	if par := p.param(id, at); par != nil {
		return par.Default
	}
	return 0
}

func (p *probe) ParameterBool(id model.ParameterID) bool {
	if par := p.param(id, nil); par != nil {
		return par.Default != 0
	}
	return false
}

func (p *probe) ParameterUInt(id model.ParameterID) uint64 {
	if par := p.param(id, nil); par != nil {
		return uint64(par.Default)
	}
	return 0
}

func (p *probe) ParameterEnum(id model.ParameterID) string {
	if par := p.param(id, nil); par != nil && par.Type == model.ParamEnum {
		return par.Options[int(par.Default)]
	}
	return ""
}

func (p *probe) Input(id model.InputID) float64 { return p.InputAt(id) }

func (p *probe) InputAt(id model.InputID, at ...index.Pair) float64 {
	if p.m.Input(id) == nil {
		p.fail(dynamo.ErrUnknownSymbol, "input handle %d", id)
		return 0
	}
	p.record(model.KindInput, int(id), false, at)
	return 0
}

func (p *probe) Result(id model.EquationID) float64 { return p.ResultAt(id) }

func (p *probe) ResultAt(id model.EquationID, at ...index.Pair) float64 {
	return p.result(id, false, at)
}

func (p *probe) LastResult(id model.EquationID) float64 { return p.LastResultAt(id) }

func (p *probe) LastResultAt(id model.EquationID, at ...index.Pair) float64 {
	return p.result(id, true, at)
}

func (p *probe) result(id model.EquationID, last bool, at []index.Pair) float64 {
	if p.m.Equation(id) == nil {
		p.fail(dynamo.ErrUnknownSymbol, "equation handle %d", id)
		return 0
	}
	p.record(model.KindEquation, int(id), last, at)
	return 0
}

func (p *probe) Index(set index.SetID) int {
	if p.m.Space().Set(set) == nil {
		p.fail(dynamo.ErrUnknownSymbol, "index set handle %d", set)
		return 0
	}
	if !slices.Contains(p.index, set) {
		p.index = append(p.index, set)
	}
	return 0
}

func (p *probe) IndexCount(set index.SetID) int {
	s := p.m.Space().Set(set)
	if s == nil {
		p.fail(dynamo.ErrUnknownSymbol, "index set handle %d", set)
		return 0
	}
	return s.Count()
}

func (p *probe) Timestep() int { return 0 }

func (p *probe) Time() float64 { return 0 }

func (p *probe) Date() time.Time { return dynamo.DefaultConfig().StartDate }

// probeBody runs a body once against a recording view.
func probeBody(m *model.Model, eq *model.Equation) (reads []Read, idx []index.SetID, err error) {
	p := &probe{m: m}
	defer func() {
		if r := recover(); r != nil {
			err = dynamo.Errorf(dynamo.ErrIncompleteModel, eq.Name, "body panicked while its dependencies were recorded: %v", r)
		}
	}()
	eq.Body(p)
	if p.err != nil {
		p.err.Symbol = eq.Name
		return nil, nil, p.err
	}
	return p.reads, p.index, nil
}
