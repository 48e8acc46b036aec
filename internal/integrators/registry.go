package integrators

import (
	"errors"
	"fmt"
	"slices"

	"github.com/san-kum/ecosim/internal/dynamo"
)

// factories builds a fresh integrator per solver block; integrators
// keep scratch buffers.
var factories = map[string]func() dynamo.AdaptiveIntegrator{
	"euler":          func() dynamo.AdaptiveIntegrator { return NewRungeKutta(EulerTableau()) },
	"heun":           func() dynamo.AdaptiveIntegrator { return NewRungeKutta(HeunTableau()) },
	"midpoint":       func() dynamo.AdaptiveIntegrator { return NewRungeKutta(MidpointTableau()) },
	"rk4":            func() dynamo.AdaptiveIntegrator { return NewRungeKutta(RK4Tableau()) },
	"bs32":           func() dynamo.AdaptiveIntegrator { return NewRungeKutta(BS32Tableau()) },
	"rk45":           func() dynamo.AdaptiveIntegrator { return NewRungeKutta(DormandPrinceTableau()) },
	"implicit-euler": func() dynamo.AdaptiveIntegrator { return NewImplicitEuler() },
}

var adaptive = map[string]bool{
	"bs32":           true,
	"rk45":           true,
	"implicit-euler": true,
}

// Get returns a new integrator for a method name.
func Get(method string) (dynamo.AdaptiveIntegrator, error) {
	f, ok := factories[method]
	if !ok {
		return nil, fmt.Errorf("%w: integration method %q (known: %v)", dynamo.ErrUnknownSymbol, method, Names())
	}
	return f(), nil
}

// IsAdaptive reports whether a method controls its own step size.
func IsAdaptive(method string) bool { return adaptive[method] }

// Names lists the known methods, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func isDivergence(err error) bool {
	return errors.Is(err, dynamo.ErrIntegrationDivergence)
}
