package graph

import (
	"cmp"
	"errors"
	"slices"

	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/san-kum/ecosim/internal/dynamo"
)

// arc is an edge between two evaluation units, remembering the
// equation edge that produced it.
type arc struct {
	from, to int64
	edge     Edge
}

// checkCycles rejects every cycle that holds at least one same-step
// read: between evaluation units, inside solver blocks and among
// initial-value equations. A cycle made only of previous-step reads is
// feedback through last step's values and is legal. Reads of integrator
// state inside a block are not dependencies and are left out.
func (g *Graph) checkCycles() error {
	var units []arc
	inBlock := make([][]arc, len(g.Blocks))
	for _, e := range g.Edges {
		if !e.Last && g.StateRead(e) {
			continue
		}
		from, to := g.Unit(e.From), g.Unit(e.To)
		if from == to && g.Nodes[e.From].Block >= 0 {
			b := g.Nodes[e.From].Block
			inBlock[b] = append(inBlock[b], arc{from: int64(e.From), to: int64(e.To), edge: e})
			continue
		}
		units = append(units, arc{from: int64(from), to: int64(to), edge: e})
	}

	var inits []arc
	for _, e := range g.InitEdges {
		inits = append(inits, arc{from: int64(e.From), to: int64(e.To), edge: e})
	}

	var errs []error
	for _, c := range findCycles(units) {
		errs = append(errs, g.cycleError(c, "cycle through a same-step read"))
	}
	for _, arcs := range inBlock {
		for _, c := range findCycles(arcs) {
			errs = append(errs, g.cycleError(c, "cycle through a same-step read inside solver block"))
		}
	}
	for _, c := range findCycles(inits) {
		errs = append(errs, g.cycleError(c, "cycle among initial values"))
	}
	return errors.Join(errs...)
}

func (g *Graph) cycleError(c []arc, what string) error {
	var names []string
	for i, a := range c {
		names = append(names, g.Nodes[a.edge.From].Eq.Name)
		next := c[(i+1)%len(c)].edge.From
		if a.edge.To != next {
			names = append(names, g.Nodes[a.edge.To].Eq.Name)
		}
	}
	names = append(names, names[0])

	first := c[0].edge
	err := dynamo.Errorf(dynamo.ErrCyclicDependency, names[0], "%s (%s reads %s)",
		what, g.Nodes[first.To].Eq.Name, g.Nodes[first.From].Eq.Name)
	err.Cycle = names
	return err
}

// findCycles returns one cycle per strongly connected component that
// holds a same-step arc, plus every same-step self loop. Each cycle
// starts at the component's lowest same-step arc and follows the
// shortest path back to it, whatever the kind of the arcs on the way.
func findCycles(arcs []arc) [][]arc {
	var cycles [][]arc
	dg := simple.NewDirectedGraph()
	rep := make(map[[2]int64]arc)
	for _, a := range arcs {
		if a.from == a.to {
			if !a.edge.Last {
				cycles = append(cycles, []arc{a})
			}
			continue
		}
		key := [2]int64{a.from, a.to}
		if r, ok := rep[key]; ok && !r.edge.Last {
			continue
		}
		rep[key] = a
		dg.SetEdge(dg.NewEdge(simple.Node(a.from), simple.Node(a.to)))
	}

	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			continue
		}
		members := make(map[int64]bool, len(scc))
		for _, n := range scc {
			members[n.ID()] = true
		}

		var first arc
		found := false
		for key, a := range rep {
			if a.edge.Last || !members[key[0]] || !members[key[1]] {
				continue
			}
			if !found || a.from < first.from || (a.from == first.from && a.to < first.to) {
				first, found = a, true
			}
		}
		if !found {
			continue
		}
		cycles = append(cycles, append([]arc{first}, shortestPath(dg, members, first.to, first.from, rep)...))
	}

	slices.SortFunc(cycles, func(a, b []arc) int {
		return cmp.Compare(a[0].from, b[0].from)
	})
	return cycles
}

// shortestPath runs a breadth-first search inside one component from
// src until it reaches dst.
func shortestPath(dg *simple.DirectedGraph, members map[int64]bool, src, dst int64, rep map[[2]int64]arc) []arc {
	prev := map[int64]int64{src: src}
	queue := []int64{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var next []int64
		for _, n := range gonumgraph.NodesOf(dg.From(cur)) {
			next = append(next, n.ID())
		}
		slices.Sort(next)

		for _, id := range next {
			if _, seen := prev[id]; seen || !members[id] {
				continue
			}
			prev[id] = cur
			if id == dst {
				var path []arc
				for at := dst; at != src; at = prev[at] {
					path = append(path, rep[[2]int64{prev[at], at}])
				}
				slices.Reverse(path)
				return path
			}
			queue = append(queue, id)
		}
	}
	return nil
}
