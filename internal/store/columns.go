package store

import (
	"strings"

	"github.com/san-kum/ecosim/internal/engine"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
)

// Column is one instance of a recorded equation.
type Column struct {
	Name     string
	Equation model.EquationID
	Unit     string
	Index    index.Tuple
	// Offset is the instance's position in the equation's results.
	Offset int
}

// Columns lists every recorded instance in recording order, each
// equation's instances in storage order. Scalar equations are named
// plainly, indexed ones as "Storage {Reservoir:Upper}".
func Columns(rec *engine.Recorder) []Column {
	prog := rec.Program()
	m := prog.Model
	sp := m.Space()

	var cols []Column
	for _, id := range rec.Equations() {
		eq := m.Equation(id)
		shape := sp.Shape(prog.Signature(id))
		for off := range shape.Size() {
			t := shape.Tuple(off)
			name := eq.Name
			if len(t) > 0 {
				name += " " + sp.FormatTuple(t)
			}
			cols = append(cols, Column{
				Name:     name,
				Equation: id,
				Unit:     m.UnitName(eq.Unit),
				Index:    t,
				Offset:   off,
			})
		}
	}
	return cols
}

// ParseColumn splits a column name from Columns back into the equation
// name and its index as set name to member name.
func ParseColumn(name string) (string, map[string]string) {
	i := strings.LastIndex(name, " {")
	if i < 0 || !strings.HasSuffix(name, "}") {
		return name, nil
	}
	idx := make(map[string]string)
	for _, pair := range strings.Split(name[i+2:len(name)-1], ", ") {
		set, member, ok := strings.Cut(pair, ":")
		if !ok {
			return name, nil
		}
		idx[set] = member
	}
	return name[:i], idx
}
