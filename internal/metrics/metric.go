// Package metrics reduces a run to scalars while it executes. Metrics
// are engine observers reading the results of one equation after every
// step.
package metrics

import (
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

type Metric interface {
	Name() string
	OnStep(step int, t float64, ds *storage.DataSet)
	Value() float64
	Reset()
}

// Values returns the value of every metric by name.
func Values(ms []Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

func sum(ds *storage.DataSet, eq model.EquationID) float64 {
	total := 0.0
	for _, v := range ds.Results(eq, storage.Current) {
		total += v
	}
	return total
}
