// Package dynamo provides the core primitives shared by the ecosim engine.
//
// The package defines the small vocabulary every other package speaks:
//
//   - [State]: vector of integrated quantities inside a solver block
//   - [System]: right-hand side of an ODE system (dX/dt = f(X, t))
//   - [Integrator]: one numerical step of a system
//   - [AdaptiveIntegrator]: a step that also reports its local error
//   - [Config]: run-time switches of the execution loop
//   - [Error]: failure carrying symbol, index, step and time context
//
// # Example
//
//	sys := block.System()
//	integ := integrators.MustGet("rk4")
//	x, err := integ.Step(sys, x0, t, dt)
//
// # Thread Safety
//
// Nothing in the engine is safe for concurrent use. A model run owns its
// data set from initialization until it completes or fails, and all
// evaluation happens on the calling goroutine so results are reproducible.
package dynamo
