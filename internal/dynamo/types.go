package dynamo

import (
	"fmt"
	"math"
	"time"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MaxNorm returns the largest absolute component.
func (s State) MaxNorm() float64 {
	m := 0.0
	for _, v := range s {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// System is the right-hand side of a block of ODEs. Derive may fail when
// an equation body reads something it is not allowed to.
type System interface {
	Derive(x State, t float64) (State, error)
	StateDim() int
}

type Integrator interface {
	Name() string
	Order() int
	Step(sys System, x State, t, dt float64) (State, error)
}

// AdaptiveIntegrator steps and reports the ratio between the estimated
// local error and the tolerance. A ratio above 1 means the step must be
// rejected.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, t, dt, tol float64) (State, float64, error)
}

type Config struct {
	Steps        int
	Dt           float64
	StartDate    time.Time
	StepDuration time.Duration
	BoundsCheck  bool
	TestForNaN   bool
	Profile      bool
}

func DefaultConfig() Config {
	return Config{
		Steps:        100,
		Dt:           1.0,
		StartDate:    time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		StepDuration: 24 * time.Hour,
		BoundsCheck:  true,
		TestForNaN:   false,
		Profile:      false,
	}
}

func (c Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidConfig, c.Steps)
	}
	if c.Dt <= 0 || math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) {
		return fmt.Errorf("%w: dt must be positive, got %f", ErrInvalidConfig, c.Dt)
	}
	if c.StepDuration < 0 {
		return fmt.Errorf("%w: step duration must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DateAt returns the calendar date of a step.
func (c Config) DateAt(step int) time.Time {
	return c.StartDate.Add(time.Duration(step) * c.StepDuration)
}
