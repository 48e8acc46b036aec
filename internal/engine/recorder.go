package engine

import (
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

// Recorder keeps the time series of selected equations, every instance
// of every step.
type Recorder struct {
	prog   *Program
	eqs    []model.EquationID
	times  []float64
	values map[model.EquationID][][]float64
}

// NewRecorder records eqs, or every stepped equation when none is given.
func NewRecorder(prog *Program, eqs ...model.EquationID) *Recorder {
	if len(eqs) == 0 {
		for _, n := range prog.Graph.Nodes {
			if prog.Graph.Stepped(n.Eq.ID) {
				eqs = append(eqs, n.Eq.ID)
			}
		}
	}
	return &Recorder{
		prog:   prog,
		eqs:    eqs,
		values: make(map[model.EquationID][][]float64, len(eqs)),
	}
}

func (rec *Recorder) OnStep(step int, t float64, ds *storage.DataSet) {
	rec.times = append(rec.times, t)
	for _, eq := range rec.eqs {
		rec.values[eq] = append(rec.values[eq], ds.Results(eq, storage.Current))
	}
}

func (rec *Recorder) Program() *Program { return rec.prog }

func (rec *Recorder) Equations() []model.EquationID { return rec.eqs }

func (rec *Recorder) Times() []float64 { return rec.times }

func (rec *Recorder) Len() int { return len(rec.times) }

// Step returns every instance of eq at one recorded step.
func (rec *Recorder) Step(eq model.EquationID, step int) []float64 {
	steps := rec.values[eq]
	if step < 0 || step >= len(steps) {
		return nil
	}
	return steps[step]
}

// Series returns the time series of one instance of eq.
func (rec *Recorder) Series(eq model.EquationID, off int) []float64 {
	steps := rec.values[eq]
	out := make([]float64, len(steps))
	for i, v := range steps {
		if off < len(v) {
			out[i] = v[off]
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (rec *Recorder) Reset() {
	rec.times = rec.times[:0]
	clear(rec.values)
}
