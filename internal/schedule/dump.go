package schedule

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/san-kum/ecosim/internal/model"
)

// Entry is one line of the evaluation order.
type Entry struct {
	Batch     int
	Equation  string
	Kind      string
	Solver    string
	Signature string
	Module    string
}

// Entries lists every stepped equation in evaluation order, followed by
// the initial-value equations with batch -1.
func (s *Schedule) Entries() []Entry {
	m := s.Graph.Model
	sp := m.Space()
	entry := func(batch int, eq model.EquationID) Entry {
		e := m.Equation(eq)
		solver := ""
		if sv := m.Solver(e.Solver); sv != nil {
			solver = sv.Name
		}
		return Entry{
			Batch:     batch,
			Equation:  e.Name,
			Kind:      e.Kind.String(),
			Solver:    solver,
			Signature: sp.Format(s.Graph.Node(eq).Sig),
			Module:    m.ModuleName(e.Module),
		}
	}

	var out []Entry
	for _, u := range s.Units {
		for _, eq := range u.Members() {
			out = append(out, entry(u.Batch, eq))
		}
	}
	for _, eq := range s.Init {
		out = append(out, entry(-1, eq))
	}
	return out
}

// Dump writes the evaluation order as a table.
func (s *Schedule) Dump(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tEQUATION\tKIND\tSOLVER\tINDEX SETS")
	for _, e := range s.Entries() {
		batch := fmt.Sprint(e.Batch)
		if e.Batch < 0 {
			batch = "init"
		}
		solver := e.Solver
		if solver == "" {
			solver = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", batch, e.Equation, e.Kind, solver, e.Signature)
	}
	return tw.Flush()
}
