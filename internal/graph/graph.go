// Package graph records what every equation reads and turns it into a
// dependency graph: same-step edges that order evaluation within a step
// and previous-step edges that do not.
//
// Dependencies are recorded by running each body once against a
// recording view. Bodies must therefore read the same symbols on every
// evaluation; a read hidden behind a branch the recording run does not
// take is rejected at run time.
package graph

import (
	"errors"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
)

// Edge orders To after From when Last is false.
type Edge struct {
	From model.EquationID
	To   model.EquationID
	Last bool
}

type Node struct {
	Eq    *model.Equation
	Sig   index.Signature
	Reads []Read
	// Index lists the sets whose current member the body asks for.
	Index []index.SetID
	// Block is the solver block of the equation, or -1.
	Block int
}

// Block is a maximal set of equations sharing a solver and connected by
// same-step reads. It is integrated as one system.
type Block struct {
	ID      int
	Solver  model.SolverID
	Members []model.EquationID
}

type Graph struct {
	Model *model.Model
	Nodes []*Node
	// Edges hold reads between equations evaluated every step.
	Edges []Edge
	// InitEdges order initial-value equations among themselves.
	InitEdges []Edge
	Blocks    []*Block
}

// Build records the dependencies of every equation of m, infers and
// checks signatures and rejects same-step cycles. The model must not
// change afterwards.
func Build(m *model.Model) (*Graph, error) {
	g := &Graph{Model: m}

	if err := g.probe(); err != nil {
		return nil, err
	}
	if err := g.link(); err != nil {
		return nil, err
	}
	g.groupBlocks()
	if err := g.inferSignatures(); err != nil {
		return nil, err
	}
	if err := g.checkCycles(); err != nil {
		return nil, err
	}

	dynamo.Logger().Debug("dependency graph built")
	return g, nil
}

func (g *Graph) Node(eq model.EquationID) *Node { return g.Nodes[eq] }

// Unit returns the evaluation unit of an equation: its block, or a
// unit of its own numbered after all blocks.
func (g *Graph) Unit(eq model.EquationID) int {
	if b := g.Nodes[eq].Block; b >= 0 {
		return b
	}
	return len(g.Blocks) + int(eq)
}

// Stepped reports whether eq is evaluated every step, as opposed to an
// initial-value equation.
func (g *Graph) Stepped(eq model.EquationID) bool {
	return g.Nodes[eq].Eq.Kind != model.InitialValue
}

func (g *Graph) probe() error {
	var errs []error
	for _, eq := range g.Model.Equations() {
		n := &Node{Eq: eq, Block: -1}
		g.Nodes = append(g.Nodes, n)

		switch {
		case eq.Body == nil:
			errs = append(errs, dynamo.Errorf(dynamo.ErrIncompleteModel, eq.Name, "equation has no body"))
			continue
		case eq.Kind == model.ODE && eq.Solver == model.NoSolver:
			errs = append(errs, dynamo.Errorf(dynamo.ErrIncompleteModel, eq.Name, "ODE equation has no solver"))
		case eq.Kind == model.ODE && !eq.HasInitialValue():
			errs = append(errs, dynamo.Errorf(dynamo.ErrIncompleteModel, eq.Name, "ODE equation has no initial value"))
		case eq.Kind == model.InitialValue && eq.HasInitialValue():
			errs = append(errs, dynamo.Errorf(dynamo.ErrIncompleteModel, eq.Name, "initial-value equations have no initial value of their own"))
		}

		reads, idx, err := probeBody(g.Model, eq)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n.Reads = reads
		n.Index = idx
	}
	return errors.Join(errs...)
}

// link turns equation reads into edges.
func (g *Graph) link() error {
	var errs []error
	for _, n := range g.Nodes {
		for _, r := range n.Reads {
			if r.Kind != model.KindEquation {
				continue
			}
			target := g.Nodes[r.ID].Eq

			if n.Eq.Kind == model.InitialValue {
				if err := g.linkInitial(n.Eq, target); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			if target.Kind == model.InitialValue {
				errs = append(errs, dynamo.Errorf(dynamo.ErrIncompleteModel, n.Eq.Name,
					"reads initial-value equation %q, which is only evaluated at run start", target.Name))
				continue
			}
			g.Edges = append(g.Edges, Edge{From: target.ID, To: n.Eq.ID, Last: r.Last})
		}
	}
	return errors.Join(errs...)
}

// linkInitial orders an initial-value equation after whatever seeds the
// values it reads.
func (g *Graph) linkInitial(reader, target *model.Equation) error {
	switch {
	case target.Kind == model.InitialValue:
		g.InitEdges = append(g.InitEdges, Edge{From: target.ID, To: reader.ID})
	case target.InitialEquation != model.NoEquation:
		g.InitEdges = append(g.InitEdges, Edge{From: target.InitialEquation, To: reader.ID})
	case target.InitialParameter != model.NoParameter:
	default:
		return dynamo.Errorf(dynamo.ErrIncompleteModel, reader.Name,
			"initial value reads %q, which has no initial value", target.Name)
	}
	return nil
}

// groupBlocks partitions solver-assigned equations into blocks with a
// union-find over same-step edges between equations of one solver.
func (g *Graph) groupBlocks() {
	parent := make([]int, len(g.Nodes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for _, e := range g.Edges {
		if e.Last {
			continue
		}
		from, to := g.Nodes[e.From].Eq, g.Nodes[e.To].Eq
		if from.Solver == model.NoSolver || from.Solver != to.Solver {
			continue
		}
		a, b := find(int(e.From)), find(int(e.To))
		if a == b {
			continue
		}
		if a < b {
			parent[b] = a
		} else {
			parent[a] = b
		}
	}

	byRoot := make(map[int]*Block)
	for i, n := range g.Nodes {
		if n.Eq.Solver == model.NoSolver {
			continue
		}
		root := find(i)
		b, ok := byRoot[root]
		if !ok {
			b = &Block{ID: len(g.Blocks), Solver: n.Eq.Solver}
			byRoot[root] = b
			g.Blocks = append(g.Blocks, b)
		}
		b.Members = append(b.Members, n.Eq.ID)
		n.Block = b.ID
	}
}

// StateRead reports whether a same-step edge is a read of integrator
// state inside one block rather than an ordering constraint.
func (g *Graph) StateRead(e Edge) bool {
	from := g.Nodes[e.From]
	return from.Eq.Kind == model.ODE && from.Block >= 0 && from.Block == g.Nodes[e.To].Block
}
