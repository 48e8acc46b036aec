package metrics

import (
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/storage"
)

// Bounds is the fraction of steps in which every instance of an
// equation stayed within [lo, hi].
type Bounds struct {
	name       string
	eq         model.EquationID
	lo, hi     float64
	violations int
	samples    int
}

func NewBounds(name string, eq model.EquationID, lo, hi float64) *Bounds {
	return &Bounds{name: name, eq: eq, lo: lo, hi: hi}
}

func (b *Bounds) Name() string { return b.name }

func (b *Bounds) OnStep(step int, t float64, ds *storage.DataSet) {
	b.samples++
	for _, v := range ds.Results(b.eq, storage.Current) {
		if !(v >= b.lo && v <= b.hi) {
			b.violations++
			break
		}
	}
}

func (b *Bounds) Value() float64 {
	if b.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(b.violations)/float64(b.samples)
}

func (b *Bounds) Reset() {
	b.violations = 0
	b.samples = 0
}
