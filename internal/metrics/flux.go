package metrics

import (
	"math"

	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

// Cumulative integrates the sum over instances of a rate equation, such
// as a discharge, over the run. Scale converts the rate to the quantity
// per model time unit.
type Cumulative struct {
	name  string
	eq    model.EquationID
	dt    float64
	scale float64
	total float64
}

func NewCumulative(name string, eq model.EquationID, dt, scale float64) *Cumulative {
	return &Cumulative{name: name, eq: eq, dt: dt, scale: scale}
}

func (c *Cumulative) Name() string { return c.name }

func (c *Cumulative) OnStep(step int, t float64, ds *storage.DataSet) {
	c.total += sum(ds, c.eq) * c.dt * c.scale
}

func (c *Cumulative) Value() float64 { return c.total }

func (c *Cumulative) Reset() { c.total = 0 }

// Drift is the largest relative departure of the summed instances of an
// equation from its first observed value.
type Drift struct {
	name     string
	eq       model.EquationID
	initial  float64
	maxDrift float64
	samples  int
}

func NewDrift(name string, eq model.EquationID) *Drift {
	return &Drift{name: name, eq: eq}
}

func (d *Drift) Name() string { return d.name }

func (d *Drift) OnStep(step int, t float64, ds *storage.DataSet) {
	v := sum(ds, d.eq)
	d.samples++
	if d.samples == 1 {
		d.initial = v
		return
	}
	drift := math.Abs(v - d.initial)
	if d.initial != 0 {
		drift /= math.Abs(d.initial)
	}
	d.maxDrift = math.Max(d.maxDrift, drift)
}

func (d *Drift) Value() float64 { return d.maxDrift }

func (d *Drift) Reset() {
	d.initial = 0
	d.maxDrift = 0
	d.samples = 0
}
