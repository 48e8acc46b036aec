package engine

import (
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/integrators"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/schedule"
	"github.com/san-kum/ecosim/internal/storage"
)

// blockSystem is the right-hand side of one solver block. The state
// vector holds every instance of every ODE member; algebraic members are
// recomputed from it at every stage.
type blockSystem struct {
	r        *Run
	unit     *schedule.Unit
	solver   *model.Solver
	integ    dynamo.AdaptiveIntegrator
	adaptive bool

	odeBase map[model.EquationID]int
	algBase map[model.EquationID]int
	alg     []float64
	dim     int

	// state is the stage state Derive was last called with.
	state dynamo.State
	// h is the last step size the adaptive controller settled on.
	h float64

	accepted int
	rejected int
}

func newBlockSystem(r *Run, u *schedule.Unit) (*blockSystem, error) {
	s := r.prog.Model.Solver(u.Solver)
	integ, err := integrators.Get(s.Method)
	if err != nil {
		return nil, err
	}
	b := &blockSystem{
		r:        r,
		unit:     u,
		solver:   s,
		integ:    integ,
		adaptive: integrators.IsAdaptive(s.Method),
		odeBase:  make(map[model.EquationID]int, len(u.ODEs)),
		algBase:  make(map[model.EquationID]int, len(u.Algebraic)),
	}
	for _, eq := range u.ODEs {
		b.odeBase[eq] = b.dim
		b.dim += r.prog.eqs[eq].shape.Size()
	}
	n := 0
	for _, eq := range u.Algebraic {
		b.algBase[eq] = n
		n += r.prog.eqs[eq].shape.Size()
	}
	b.alg = make([]float64, n)
	return b, nil
}

func (b *blockSystem) StateDim() int { return b.dim }

// value returns the stage value of a block member.
func (b *blockSystem) value(eq model.EquationID, off int) (float64, bool) {
	if base, ok := b.odeBase[eq]; ok {
		return b.state[base+off], true
	}
	if base, ok := b.algBase[eq]; ok {
		return b.alg[base+off], true
	}
	return 0, false
}

func (b *blockSystem) evalAlgebraic(t float64) error {
	for _, eq := range b.unit.Algebraic {
		c := b.r.prog.eqs[eq]
		base := b.algBase[eq]
		for off := 0; off < c.shape.Size(); off++ {
			v, err := b.r.eval(c, off, t, b)
			if err != nil {
				return err
			}
			b.alg[base+off] = v
		}
	}
	return nil
}

func (b *blockSystem) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	b.state = x
	if err := b.evalAlgebraic(t); err != nil {
		return nil, err
	}
	d := make(dynamo.State, b.dim)
	for _, eq := range b.unit.ODEs {
		c := b.r.prog.eqs[eq]
		base := b.odeBase[eq]
		for off := 0; off < c.shape.Size(); off++ {
			v, err := b.r.eval(c, off, t, b)
			if err != nil {
				return nil, err
			}
			d[base+off] = v
		}
	}
	return d, nil
}

// advance integrates the block over [t0, t0+dt] starting from the
// previous step and writes every member once.
func (b *blockSystem) advance(t0, dt float64) error {
	x := make(dynamo.State, b.dim)
	for _, eq := range b.unit.ODEs {
		base := b.odeBase[eq]
		for off := 0; off < b.r.prog.eqs[eq].shape.Size(); off++ {
			x[base+off] = b.r.ds.ResultSlot(eq, storage.Previous, off)
		}
	}

	var err error
	if b.adaptive {
		x, err = b.integrateAdaptive(x, t0, dt)
	} else {
		x, err = b.integrateFixed(x, t0, dt)
	}
	if err != nil {
		return err
	}

	for _, eq := range b.unit.ODEs {
		c := b.r.prog.eqs[eq]
		base := b.odeBase[eq]
		for off := 0; off < c.shape.Size(); off++ {
			if err := b.r.write(c, off, x[base+off]); err != nil {
				return err
			}
		}
	}

	b.state = x
	if err := b.evalAlgebraic(t0 + dt); err != nil {
		return err
	}
	for _, eq := range b.unit.Algebraic {
		c := b.r.prog.eqs[eq]
		base := b.algBase[eq]
		for off := 0; off < c.shape.Size(); off++ {
			if err := b.r.write(c, off, b.alg[base+off]); err != nil {
				return err
			}
		}
	}
	return nil
}

// integrateFixed takes the smallest whole number of equal substeps no
// longer than the solver step.
func (b *blockSystem) integrateFixed(x dynamo.State, t0, dt float64) (dynamo.State, error) {
	n := int(math.Ceil(1/b.solver.Step - 1e-9))
	h := dt / float64(n)
	for i := 0; i < n; i++ {
		var err error
		x, err = b.integ.Step(b, x, t0+float64(i)*h, h)
		if err != nil {
			return nil, err
		}
		b.accepted++
	}
	return x, nil
}

// integrateAdaptive halves the substep on rejection and doubles it after
// an easy acceptance. The step size carries over between timesteps.
func (b *blockSystem) integrateAdaptive(x dynamo.State, t0, dt float64) (dynamo.State, error) {
	if b.h <= 0 {
		b.h = b.solver.Step * dt
	}
	tEnd := t0 + dt
	t := t0
	retries := 0
	for tEnd-t > 1e-12*dt {
		h := math.Min(b.h, tEnd-t)
		next, ratio, err := b.integ.StepAdaptive(b, x, t, h, b.solver.Tolerance)
		if err != nil {
			return nil, err
		}
		if !(ratio <= 1) {
			b.rejected++
			retries++
			if retries > b.solver.MaxRetries {
				return nil, dynamo.Errorf(dynamo.ErrIntegrationDivergence, b.solver.Name,
					"error ratio %g after %d retries, substep %g", ratio, b.solver.MaxRetries, h)
			}
			b.h = h / 2
			dynamo.Logger().Debug("substep rejected",
				zap.String("solver", b.solver.Name),
				zap.Int("step", b.r.step),
				zap.Float64("time", t),
				zap.Float64("substep", h),
				zap.Float64("ratio", ratio),
			)
			continue
		}

		retries = 0
		b.accepted++
		x = next
		t += h
		if ratio < 0.1 {
			b.h = math.Min(b.h*2, dt)
		}
	}
	return x, nil
}
