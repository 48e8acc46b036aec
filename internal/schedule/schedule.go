// Package schedule orders the evaluation units of a dependency graph
// once per build. Units are single equations or solver blocks; the
// order is a Kahn topological sort over same-step edges that always
// picks the earliest registered ready unit.
package schedule

import (
	"container/heap"
	"fmt"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/graph"
	"github.com/san-kum/ecosim/internal/model"
)

type UnitKind int

const (
	UnitEquation UnitKind = iota
	UnitBlock
)

// Unit is one entry of the per-step order.
type Unit struct {
	Kind UnitKind
	// Batch is the Kahn level: one more than the deepest unit the unit
	// depends on within a step.
	Batch int

	// Equation is set for UnitEquation.
	Equation model.EquationID

	// Block fields. Algebraic members are ordered among themselves and
	// are evaluated before the derivatives of ODEs at every stage.
	Block     *graph.Block
	Solver    model.SolverID
	Algebraic []model.EquationID
	ODEs      []model.EquationID
}

// Members returns every equation the unit evaluates, in evaluation
// order.
func (u *Unit) Members() []model.EquationID {
	if u.Kind == UnitEquation {
		return []model.EquationID{u.Equation}
	}
	out := make([]model.EquationID, 0, len(u.Algebraic)+len(u.ODEs))
	out = append(out, u.Algebraic...)
	return append(out, u.ODEs...)
}

type Schedule struct {
	Graph *graph.Graph
	Units []*Unit
	// Init lists initial-value equations in evaluation order.
	Init []model.EquationID
}

// New computes the schedule of a built graph.
func New(g *graph.Graph) (*Schedule, error) {
	s := &Schedule{Graph: g}
	if err := s.orderUnits(); err != nil {
		return nil, err
	}
	if err := s.orderInit(); err != nil {
		return nil, err
	}
	dynamo.Logger().Debug("schedule computed")
	return s, nil
}

func (s *Schedule) orderUnits() error {
	g := s.Graph

	var nodes []int
	key := make(map[int]int)
	for _, b := range g.Blocks {
		nodes = append(nodes, b.ID)
		key[b.ID] = int(b.Members[0])
	}
	for _, n := range g.Nodes {
		if n.Block < 0 && g.Stepped(n.Eq.ID) {
			u := g.Unit(n.Eq.ID)
			nodes = append(nodes, u)
			key[u] = int(n.Eq.ID)
		}
	}

	var edges [][2]int
	for _, e := range g.Edges {
		if e.Last || g.StateRead(e) {
			continue
		}
		if from, to := g.Unit(e.From), g.Unit(e.To); from != to {
			edges = append(edges, [2]int{from, to})
		}
	}

	order, levels, err := kahn(nodes, key, edges)
	if err != nil {
		return err
	}

	for _, id := range order {
		if id < len(g.Blocks) {
			u, err := s.blockUnit(g.Blocks[id])
			if err != nil {
				return err
			}
			u.Batch = levels[id]
			s.Units = append(s.Units, u)
			continue
		}
		s.Units = append(s.Units, &Unit{
			Kind:     UnitEquation,
			Batch:    levels[id],
			Equation: model.EquationID(id - len(g.Blocks)),
			Solver:   model.NoSolver,
		})
	}
	return nil
}

func (s *Schedule) blockUnit(b *graph.Block) (*Unit, error) {
	g := s.Graph
	u := &Unit{Kind: UnitBlock, Block: b, Solver: b.Solver, Equation: model.NoEquation}

	var nodes []int
	key := make(map[int]int)
	for _, eq := range b.Members {
		if g.Node(eq).Eq.Kind == model.ODE {
			u.ODEs = append(u.ODEs, eq)
			continue
		}
		nodes = append(nodes, int(eq))
		key[int(eq)] = int(eq)
	}

	var edges [][2]int
	for _, e := range g.Edges {
		if e.Last {
			continue
		}
		from, to := g.Node(e.From), g.Node(e.To)
		if from.Block == b.ID && to.Block == b.ID && from.Eq.Kind != model.ODE && to.Eq.Kind != model.ODE {
			edges = append(edges, [2]int{int(e.From), int(e.To)})
		}
	}

	order, _, err := kahn(nodes, key, edges)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		u.Algebraic = append(u.Algebraic, model.EquationID(id))
	}
	return u, nil
}

func (s *Schedule) orderInit() error {
	g := s.Graph
	var nodes []int
	key := make(map[int]int)
	for _, n := range g.Nodes {
		if !g.Stepped(n.Eq.ID) {
			nodes = append(nodes, int(n.Eq.ID))
			key[int(n.Eq.ID)] = int(n.Eq.ID)
		}
	}
	var edges [][2]int
	for _, e := range g.InitEdges {
		edges = append(edges, [2]int{int(e.From), int(e.To)})
	}

	order, _, err := kahn(nodes, key, edges)
	if err != nil {
		return err
	}
	for _, id := range order {
		s.Init = append(s.Init, model.EquationID(id))
	}
	return nil
}

// kahn sorts nodes so every edge points forward, breaking ties by the
// smallest key. It also returns the level of each node.
func kahn(nodes []int, key map[int]int, edges [][2]int) ([]int, map[int]int, error) {
	indeg := make(map[int]int, len(nodes))
	succ := make(map[int][]int)
	seen := make(map[[2]int]bool)
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		succ[e[0]] = append(succ[e[0]], e[1])
		indeg[e[1]]++
	}

	levels := make(map[int]int, len(nodes))
	ready := &queue{key: key}
	for _, n := range nodes {
		if indeg[n] == 0 {
			heap.Push(ready, n)
		}
	}

	order := make([]int, 0, len(nodes))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, n)
		for _, m := range succ[n] {
			levels[m] = max(levels[m], levels[n]+1)
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, nil, fmt.Errorf("%w: %d of %d units left unordered", dynamo.ErrCyclicDependency, len(nodes)-len(order), len(nodes))
	}
	return order, levels, nil
}

// queue is a min-heap of nodes by key.
type queue struct {
	items []int
	key   map[int]int
}

func (q *queue) Len() int           { return len(q.items) }
func (q *queue) Less(i, j int) bool { return q.key[q.items[i]] < q.key[q.items[j]] }
func (q *queue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *queue) Push(x any)         { q.items = append(q.items, x.(int)) }

func (q *queue) Pop() any {
	n := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return n
}
