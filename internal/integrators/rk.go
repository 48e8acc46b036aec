package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/ecosim/internal/dynamo"
)

// RungeKutta runs any explicit tableau. It keeps stage buffers between
// steps, so one instance must not be shared between goroutines.
type RungeKutta struct {
	tab     *Tableau
	k       []dynamo.State
	scratch dynamo.State
}

func NewRungeKutta(tab *Tableau) *RungeKutta {
	return &RungeKutta{tab: tab}
}

func (r *RungeKutta) Name() string { return r.tab.Name }

func (r *RungeKutta) Order() int { return r.tab.Order }

func (r *RungeKutta) ensureScratch(n int) {
	if len(r.scratch) != n || len(r.k) != r.tab.Stages() {
		r.k = make([]dynamo.State, r.tab.Stages())
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
		r.scratch = make(dynamo.State, n)
	}
}

// stages evaluates every stage derivative into r.k.
func (r *RungeKutta) stages(sys dynamo.System, x dynamo.State, t, dt float64) error {
	n := len(x)
	r.ensureScratch(n)

	for s := range r.tab.Stages() {
		stage := x
		if s > 0 {
			for i := 0; i < n; i++ {
				sum := 0.0
				for j, a := range r.tab.A[s] {
					sum += a * r.k[j][i]
				}
				r.scratch[i] = x[i] + dt*sum
			}
			stage = r.scratch
		}

		d, err := sys.Derive(stage, t+r.tab.C[s]*dt)
		if err != nil {
			return err
		}
		if len(d) != n {
			return fmt.Errorf("%w: derivative has %d components, state has %d", dynamo.ErrInvalidState, len(d), n)
		}
		copy(r.k[s], d)
	}
	return nil
}

func (r *RungeKutta) combine(x dynamo.State, dt float64, w []float64) dynamo.State {
	out := make(dynamo.State, len(x))
	for i := range x {
		sum := 0.0
		for s, b := range w {
			if b != 0 {
				sum += b * r.k[s][i]
			}
		}
		out[i] = x[i] + dt*sum
	}
	return out
}

func (r *RungeKutta) Step(sys dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	if err := r.stages(sys, x, t, dt); err != nil {
		return nil, err
	}
	return r.combine(x, dt, r.tab.B), nil
}

// StepAdaptive steps and measures the embedded error against
// tol*(1+|x|) per component. Fixed-step tableaus report a ratio of 0.
func (r *RungeKutta) StepAdaptive(sys dynamo.System, x dynamo.State, t, dt, tol float64) (dynamo.State, float64, error) {
	if err := r.stages(sys, x, t, dt); err != nil {
		return nil, 0, err
	}
	xNew := r.combine(x, dt, r.tab.B)
	if !r.tab.Adaptive() {
		return xNew, 0, nil
	}

	errMax := 0.0
	for i := range x {
		est := 0.0
		for s, e := range r.tab.E {
			est += e * r.k[s][i]
		}
		scale := tol * (1 + math.Max(math.Abs(x[i]), math.Abs(xNew[i])))
		errMax = math.Max(errMax, math.Abs(dt*est)/scale)
	}
	if !xNew.IsValid() {
		errMax = math.Inf(1)
	}
	return xNew, errMax, nil
}
