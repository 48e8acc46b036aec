package integrators

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/ecosim/internal/dynamo"
)

// ImplicitEuler is backward Euler solved with Newton iterations on a
// finite-difference Jacobian. Its adaptive step compares one full step
// with two half steps.
type ImplicitEuler struct {
	maxIter   int
	newtonTol float64

	jac *mat.Dense
	rhs *mat.VecDense
	dx  mat.VecDense
	lu  mat.LU
}

func NewImplicitEuler() *ImplicitEuler {
	return &ImplicitEuler{
		maxIter:   12,
		newtonTol: 1e-10,
	}
}

func (ie *ImplicitEuler) Name() string { return "implicit-euler" }

func (ie *ImplicitEuler) Order() int { return 1 }

func (ie *ImplicitEuler) ensureScratch(n int) {
	if ie.jac == nil || ie.rhs.Len() != n {
		ie.jac = mat.NewDense(n, n, nil)
		ie.rhs = mat.NewVecDense(n, nil)
	}
}

// Step solves y = x + dt*f(y, t+dt).
func (ie *ImplicitEuler) Step(sys dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	n := len(x)
	if n == 0 {
		return dynamo.State{}, nil
	}
	ie.ensureScratch(n)
	tNew := t + dt

	// Start from the explicit Euler prediction.
	f, err := sys.Derive(x, t)
	if err != nil {
		return nil, err
	}
	y := x.Add(f.Scale(dt))
	perturbed := make(dynamo.State, n)

	for iter := 0; iter < ie.maxIter; iter++ {
		fy, err := sys.Derive(y, tNew)
		if err != nil {
			return nil, err
		}

		// J = I - dt*df/dy, column by column.
		for j := 0; j < n; j++ {
			copy(perturbed, y)
			h := math.Sqrt(2.2e-16) * math.Max(math.Abs(y[j]), 1)
			perturbed[j] += h
			fp, err := sys.Derive(perturbed, tNew)
			if err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				v := -dt * (fp[i] - fy[i]) / h
				if i == j {
					v++
				}
				ie.jac.Set(i, j, v)
			}
		}
		for i := 0; i < n; i++ {
			ie.rhs.SetVec(i, -(y[i] - x[i] - dt*fy[i]))
		}

		ie.lu.Factorize(ie.jac)
		if err := ie.lu.SolveVecTo(&ie.dx, false, ie.rhs); err != nil {
			return nil, fmt.Errorf("%w: singular Newton system: %v", dynamo.ErrIntegrationDivergence, err)
		}

		prev := y.Clone()
		for i := 0; i < n; i++ {
			y[i] += ie.dx.AtVec(i)
		}
		if !y.IsValid() {
			break
		}
		if y.Sub(prev).MaxNorm() <= ie.newtonTol*(1+y.MaxNorm()) {
			return y, nil
		}
	}
	return nil, fmt.Errorf("%w: Newton iteration did not converge in %d iterations", dynamo.ErrIntegrationDivergence, ie.maxIter)
}

// StepAdaptive returns the two half-step solution. A failed Newton
// solve counts as an infinite error so the caller shrinks the step.
func (ie *ImplicitEuler) StepAdaptive(sys dynamo.System, x dynamo.State, t, dt, tol float64) (dynamo.State, float64, error) {
	full, err := ie.Step(sys, x, t, dt)
	if err != nil {
		return nil, math.Inf(1), nilIfDivergence(err)
	}
	half, err := ie.Step(sys, x, t, dt/2)
	if err != nil {
		return nil, math.Inf(1), nilIfDivergence(err)
	}
	y, err := ie.Step(sys, half, t+dt/2, dt/2)
	if err != nil {
		return nil, math.Inf(1), nilIfDivergence(err)
	}

	errMax := 0.0
	for i := range y {
		scale := tol * (1 + math.Max(math.Abs(x[i]), math.Abs(y[i])))
		errMax = math.Max(errMax, math.Abs(y[i]-full[i])/scale)
	}
	return y, errMax, nil
}

// nilIfDivergence drops convergence failures, which the caller handles
// by retrying, and keeps errors raised by the system itself.
func nilIfDivergence(err error) error {
	if isDivergence(err) {
		return nil
	}
	return err
}
