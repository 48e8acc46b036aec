// Package engine runs built models: it compiles a model into a
// Program, integrates solver blocks and drives the per-step loop over a
// storage.DataSet.
package engine

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/graph"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/integrators"
	"github.com/san-kum/ecosim/internal/model"
	"github.com/san-kum/ecosim/internal/schedule"
	"github.com/san-kum/ecosim/internal/storage"
)

type readKey struct {
	kind model.Kind
	id   int
	last bool
}

// compiled is everything the evaluator needs for one equation.
type compiled struct {
	eq    *model.Equation
	shape index.Shape
	reads map[readKey]*index.Projection
	// index maps a set asked for with View.Index onto the evaluated
	// instance.
	index map[index.SetID]*index.Projection
	// seed projects an instance onto the slot of its initial value.
	seed *index.Projection
}

// Program is a model compiled for execution. It is read-only and may be
// shared by concurrent runs.
type Program struct {
	Model    *model.Model
	Graph    *graph.Graph
	Schedule *schedule.Schedule

	eqs []*compiled
}

// Build freezes m and compiles it: dependency graph, signatures,
// schedule and read projections.
func Build(m *model.Model) (*Program, error) {
	if err := m.Err(); err != nil {
		return nil, err
	}
	m.Freeze()

	for _, s := range m.Solvers() {
		if _, err := integrators.Get(s.Method); err != nil {
			return nil, &dynamo.Error{Kind: dynamo.ErrUnknownSymbol, Symbol: s.Name, Step: -1, Wrapped: err}
		}
	}

	g, err := graph.Build(m)
	if err != nil {
		return nil, err
	}
	s, err := schedule.New(g)
	if err != nil {
		return nil, err
	}

	p := &Program{Model: m, Graph: g, Schedule: s}
	p.compile()

	dynamo.Logger().Info("model built",
		zap.String("model", m.Name),
		zap.Int("equations", len(m.Equations())),
		zap.Int("units", len(s.Units)),
		zap.Int("blocks", len(g.Blocks)),
		zap.Int("initial", len(s.Init)),
	)
	return p, nil
}

func (p *Program) compile() {
	sp := p.Model.Space()
	for _, n := range p.Graph.Nodes {
		c := &compiled{
			eq:    n.Eq,
			shape: sp.Shape(n.Sig),
			reads: make(map[readKey]*index.Projection, len(n.Reads)),
			index: make(map[index.SetID]*index.Projection, len(n.Index)),
		}
		for _, r := range n.Reads {
			proj, _ := sp.Project(n.Sig, sp.Shape(p.Graph.TargetSig(r)))
			c.reads[readKey{kind: r.Kind, id: r.ID, last: r.Last}] = proj
		}
		for _, set := range n.Index {
			c.index[set], _ = sp.Project(n.Sig, sp.Shape(index.Signature{set}))
		}
		switch {
		case n.Eq.InitialEquation != model.NoEquation:
			c.seed, _ = sp.Project(n.Sig, sp.Shape(p.Graph.Node(n.Eq.InitialEquation).Sig))
		case n.Eq.InitialParameter != model.NoParameter:
			c.seed, _ = sp.Project(n.Sig, sp.Shape(p.Model.Parameter(n.Eq.InitialParameter).Sig))
		}
		p.eqs = append(p.eqs, c)
	}
}

// Signature returns the final index signature of an equation.
func (p *Program) Signature(eq model.EquationID) index.Signature {
	return p.Graph.Node(eq).Sig
}

// Layout describes the storage a run of the program needs.
func (p *Program) Layout() storage.Layout {
	sigs := make([]index.Signature, len(p.Graph.Nodes))
	for i, n := range p.Graph.Nodes {
		sigs[i] = n.Sig
	}
	return storage.Layout{Model: p.Model, EquationSigs: sigs}
}

// NewDataSet allocates a data set for steps timesteps.
func (p *Program) NewDataSet(steps int) *storage.DataSet {
	return storage.New(p.Layout(), steps)
}

// Describe prints the result structure: index sets, then every
// equation grouped by signature.
func (p *Program) Describe(w io.Writer) error {
	m := p.Model
	sp := m.Space()
	var b strings.Builder

	fmt.Fprintf(&b, "Model %s\n\nIndex sets:\n", m.Name)
	for id := index.SetID(0); int(id) < sp.Len(); id++ {
		s := sp.Set(id)
		fmt.Fprintf(&b, "  %s (%d)", s.Name, s.Count())
		if s.Parent != index.None {
			fmt.Fprintf(&b, " in %s", sp.Set(s.Parent).Name)
		}
		fmt.Fprintf(&b, ": %s\n", strings.Join(s.Labels(), " "))
	}

	groups := make(map[string][]*graph.Node)
	var order []string
	for _, n := range p.Graph.Nodes {
		key := sp.Format(n.Sig)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], n)
	}

	b.WriteString("\nResults:\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, key := range order {
		fmt.Fprintf(tw, "  %s\t\t\t\n", key)
		for _, n := range groups[key] {
			solver := "-"
			if s := m.Solver(n.Eq.Solver); s != nil {
				solver = s.Name
			}
			fmt.Fprintf(tw, "    %s\t%s\t%s\t%s\n", n.Eq.Name, n.Eq.Kind, m.UnitName(n.Eq.Unit), solver)
		}
	}
	return tw.Flush()
}
