package metrics

import (
	"math"

	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

// Mean is the average of every instance of an equation over the run.
type Mean struct {
	name    string
	eq      model.EquationID
	total   float64
	samples int
}

func NewMean(name string, eq model.EquationID) *Mean {
	return &Mean{name: name, eq: eq}
}

func (m *Mean) Name() string { return m.name }

func (m *Mean) OnStep(step int, t float64, ds *storage.DataSet) {
	for _, v := range ds.Results(m.eq, storage.Current) {
		m.total += v
		m.samples++
	}
}

func (m *Mean) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.total / float64(m.samples)
}

func (m *Mean) Reset() {
	m.total = 0
	m.samples = 0
}

// Peak is the largest value any instance of an equation reached.
type Peak struct {
	name string
	eq   model.EquationID
	max  float64
}

func NewPeak(name string, eq model.EquationID) *Peak {
	return &Peak{name: name, eq: eq, max: math.Inf(-1)}
}

func (p *Peak) Name() string { return p.name }

func (p *Peak) OnStep(step int, t float64, ds *storage.DataSet) {
	for _, v := range ds.Results(p.eq, storage.Current) {
		p.max = math.Max(p.max, v)
	}
}

func (p *Peak) Value() float64 {
	if math.IsInf(p.max, -1) {
		return 0
	}
	return p.max
}

func (p *Peak) Reset() { p.max = math.Inf(-1) }
