package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
)

func constant(v float64) model.Body {
	return func(model.View) float64 { return v }
}

func TestBuild_RecordsReads(t *testing.T) {
	m := model.New("reads")
	p := m.RegisterParameterDouble(model.NoGroup, "P", model.NoUnit, 1, 0, 10, "")
	a := m.RegisterEquation("A", model.NoUnit, nil)
	b := m.RegisterEquation("B", model.NoUnit, nil)
	m.SetEquation(a, func(v model.View) float64 { return v.Parameter(p) + v.LastResult(a) })
	m.SetEquation(b, func(v model.View) float64 { return v.Result(a) * v.Result(a) })
	require.NoError(t, m.Err())

	g, err := Build(m)
	require.NoError(t, err)

	assert.Equal(t, []Read{
		{Kind: model.KindParameter, ID: int(p), Plain: true},
		{Kind: model.KindEquation, ID: int(a), Last: true, Plain: true},
	}, g.Node(a).Reads)
	assert.Len(t, g.Node(b).Reads, 1, "repeated reads are recorded once")
	assert.ElementsMatch(t, []Edge{
		{From: a, To: a, Last: true},
		{From: a, To: b},
	}, g.Edges)
}

func TestBuild_PreviousStepCycleIsLegal(t *testing.T) {
	m := model.New("memory")
	a := m.RegisterEquation("A", model.NoUnit, nil)
	b := m.RegisterEquation("B", model.NoUnit, nil)
	c := m.RegisterEquation("C", model.NoUnit, nil)
	m.SetEquation(a, func(v model.View) float64 { return v.LastResult(c) + 1 })
	m.SetEquation(b, func(v model.View) float64 { return v.LastResult(a) })
	m.SetEquation(c, func(v model.View) float64 { return v.LastResult(b) })

	_, err := Build(m)
	require.NoError(t, err)
}

func TestBuild_SameStepReadClosesPreviousStepCycle(t *testing.T) {
	tests := []struct {
		name  string
		a, b  func(a, b model.EquationID) model.Body
		cycle []string
	}{
		{
			name:  "previous-step reads only",
			a:     func(_, b model.EquationID) model.Body { return func(v model.View) float64 { return v.LastResult(b) } },
			b:     func(a, _ model.EquationID) model.Body { return func(v model.View) float64 { return v.LastResult(a) } },
			cycle: nil,
		},
		{
			name:  "one read made same-step",
			a:     func(_, b model.EquationID) model.Body { return func(v model.View) float64 { return v.LastResult(b) } },
			b:     func(a, _ model.EquationID) model.Body { return func(v model.View) float64 { return v.Result(a) } },
			cycle: []string{"A", "B", "A"},
		},
		{
			name: "same-step read next to a previous-step one",
			a: func(_, b model.EquationID) model.Body {
				return func(v model.View) float64 { return v.LastResult(b) + v.Result(b) }
			},
			b:     func(a, _ model.EquationID) model.Body { return func(v model.View) float64 { return v.LastResult(a) } },
			cycle: []string{"B", "A", "B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.New(tt.name)
			a := m.RegisterEquation("A", model.NoUnit, nil)
			b := m.RegisterEquation("B", model.NoUnit, nil)
			m.SetEquation(a, tt.a(a, b))
			m.SetEquation(b, tt.b(a, b))
			require.NoError(t, m.Err())

			_, err := Build(m)
			if tt.cycle == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, dynamo.ErrCyclicDependency)

			var de *dynamo.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.cycle, de.Cycle)
		})
	}
}

func TestBuild_PreviousStepCycleThroughBlock(t *testing.T) {
	m := model.New("feedback")
	s := m.RegisterSolver("Main", "euler", 1)
	x := m.RegisterEquationODE("X", model.NoUnit, nil)
	lagged := m.RegisterEquation("Lagged", model.NoUnit, nil)
	iv := m.RegisterEquationInitialValue("X0", model.NoUnit, constant(1))

	m.SetEquation(x, func(v model.View) float64 { return -v.Result(lagged) })
	m.SetEquation(lagged, func(v model.View) float64 { return v.LastResult(x) })
	m.SetSolver(x, s)
	m.SetInitialValue(x, iv)

	_, err := Build(m)
	require.ErrorIs(t, err, dynamo.ErrCyclicDependency)

	var de *dynamo.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"Lagged", "X", "Lagged"}, de.Cycle)
}

func TestBuild_SameStepCycle(t *testing.T) {
	m := model.New("cycle")
	a := m.RegisterEquation("A", model.NoUnit, nil)
	b := m.RegisterEquation("B", model.NoUnit, nil)
	c := m.RegisterEquation("C", model.NoUnit, nil)
	m.SetEquation(a, func(v model.View) float64 { return v.Result(c) + 1 })
	m.SetEquation(b, func(v model.View) float64 { return v.Result(a) })
	m.SetEquation(c, func(v model.View) float64 { return v.Result(b) })

	_, err := Build(m)
	require.ErrorIs(t, err, dynamo.ErrCyclicDependency)

	var de *dynamo.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"A", "B", "C", "A"}, de.Cycle)
}

func TestBuild_SelfRead(t *testing.T) {
	m := model.New("self")
	a := m.RegisterEquation("A", model.NoUnit, nil)
	m.SetEquation(a, func(v model.View) float64 { return v.Result(a) })

	_, err := Build(m)
	require.ErrorIs(t, err, dynamo.ErrCyclicDependency)
}

func TestBuild_Blocks(t *testing.T) {
	m := model.New("blocks")
	s := m.RegisterSolver("Main", "rk4", 0.5)
	k := m.RegisterParameterDouble(model.NoGroup, "k", model.NoUnit, 0.1, 0, 1, "")

	x := m.RegisterEquationODE("X", model.NoUnit, nil)
	flux := m.RegisterEquation("Flux", model.NoUnit, nil)
	y := m.RegisterEquationODE("Y", model.NoUnit, nil)
	z := m.RegisterEquationODE("Z", model.NoUnit, nil)
	m.SetEquation(x, func(v model.View) float64 { return -v.Result(flux) })
	m.SetEquation(flux, func(v model.View) float64 { return v.Parameter(k) * v.Result(x) })
	m.SetEquation(y, func(v model.View) float64 { return v.Result(flux) - v.Result(y) })
	m.SetEquation(z, func(v model.View) float64 { return -v.Result(z) })
	for _, eq := range []model.EquationID{x, flux, y, z} {
		m.SetSolver(eq, s)
	}
	for _, eq := range []model.EquationID{x, y, z} {
		m.SetInitialValueParameter(eq, k)
	}
	require.NoError(t, m.Err())

	g, err := Build(m)
	require.NoError(t, err)
	require.Len(t, g.Blocks, 2)
	assert.Equal(t, []model.EquationID{x, flux, y}, g.Blocks[0].Members)
	assert.Equal(t, []model.EquationID{z}, g.Blocks[1].Members)
	assert.Equal(t, g.Unit(x), g.Unit(flux))
	assert.True(t, g.StateRead(Edge{From: x, To: flux}))
	assert.False(t, g.StateRead(Edge{From: flux, To: x}))
}

func TestBuild_CycleThroughBlock(t *testing.T) {
	m := model.New("through")
	s := m.RegisterSolver("Main", "euler", 1)
	x := m.RegisterEquationODE("X", model.NoUnit, nil)
	inner := m.RegisterEquation("Inner", model.NoUnit, nil)
	outer := m.RegisterEquation("Outer", model.NoUnit, nil)
	iv := m.RegisterEquationInitialValue("X0", model.NoUnit, constant(1))

	m.SetEquation(x, func(v model.View) float64 { return -v.Result(inner) })
	m.SetEquation(inner, func(v model.View) float64 { return v.Result(outer) + v.Result(x) })
	m.SetEquation(outer, func(v model.View) float64 { return v.Result(x) })
	m.SetSolver(x, s)
	m.SetSolver(inner, s)
	m.SetInitialValue(x, iv)

	_, err := Build(m)
	require.ErrorIs(t, err, dynamo.ErrCyclicDependency)

	var de *dynamo.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "X", de.Cycle[0])
	assert.Contains(t, de.Cycle, "Outer")
}

func TestBuild_IncompleteModel(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *model.Model)
	}{
		{"missing body", func(m *model.Model) {
			m.RegisterEquation("A", model.NoUnit, nil)
		}},
		{"ODE without solver", func(m *model.Model) {
			iv := m.RegisterEquationInitialValue("Y0", model.NoUnit, constant(1))
			y := m.RegisterEquationODE("Y", model.NoUnit, constant(0))
			m.SetInitialValue(y, iv)
		}},
		{"ODE without initial value", func(m *model.Model) {
			s := m.RegisterSolver("S", "euler", 1)
			y := m.RegisterEquationODE("Y", model.NoUnit, constant(0))
			m.SetSolver(y, s)
		}},
		{"initial value reads a plain equation", func(m *model.Model) {
			a := m.RegisterEquation("A", model.NoUnit, constant(1))
			m.RegisterEquationInitialValue("A0", model.NoUnit, func(v model.View) float64 { return v.Result(a) })
		}},
		{"stepped equation reads an initial value", func(m *model.Model) {
			iv := m.RegisterEquationInitialValue("A0", model.NoUnit, constant(1))
			m.RegisterEquation("A", model.NoUnit, func(v model.View) float64 { return v.Result(iv) })
		}},
		{"body panics", func(m *model.Model) {
			m.RegisterEquation("A", model.NoUnit, func(v model.View) float64 {
				var xs []float64
				return xs[v.Timestep()]
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.New(tt.name)
			tt.build(m)
			require.NoError(t, m.Err())

			_, err := Build(m)
			assert.ErrorIs(t, err, dynamo.ErrIncompleteModel)
		})
	}
}

func TestInferSignatures(t *testing.T) {
	m := model.New("infer")
	reach := m.RegisterIndexSet("Reach", "R1", "R2")
	comp := m.RegisterIndexSet("Compartment", "A", "B")
	rg := m.RegisterParameterGroup("Reach params", reach)
	cg := m.RegisterParameterGroup("Compartment params", comp)
	pr := m.RegisterParameterDouble(rg, "Width", model.NoUnit, 1, 0, 10, "")
	pc := m.RegisterParameterDouble(cg, "Depth", model.NoUnit, 1, 0, 10, "")
	rain := m.RegisterInput("Rain", model.NoUnit)

	a := m.RegisterEquation("A", model.NoUnit, func(v model.View) float64 { return v.Parameter(pr) * v.Input(rain) })
	b := m.RegisterEquation("B", model.NoUnit, func(v model.View) float64 { return v.Result(a) + v.Parameter(pc) })
	c := m.RegisterEquation("C", model.NoUnit, func(v model.View) float64 { return v.LastResult(b) })
	total := m.RegisterEquation("Total", model.NoUnit, func(v model.View) float64 {
		sum := 0.0
		for i := range v.IndexCount(comp) {
			sum += v.ParameterAt(pc, model.At(comp, i))
		}
		return sum
	})
	require.NoError(t, m.Err())

	g, err := Build(m)
	require.NoError(t, err)
	assert.Equal(t, index.Signature{reach}, g.Node(a).Sig)
	assert.Equal(t, index.Signature{reach, comp}, g.Node(b).Sig)
	assert.Equal(t, index.Signature{reach, comp}, g.Node(c).Sig)
	assert.Empty(t, g.Node(total).Sig, "explicit aggregation stays scalar")
}

func TestInferSignatures_InitialValue(t *testing.T) {
	m := model.New("iv")
	comp := m.RegisterIndexSet("Compartment", "A", "B")
	cg := m.RegisterParameterGroup("Compartment params", comp)
	y0 := m.RegisterParameterDouble(cg, "Y0", model.NoUnit, 1, 0, 10, "")
	s := m.RegisterSolver("S", "euler", 1)
	y := m.RegisterEquationODE("Y", model.NoUnit, nil)
	m.SetEquation(y, func(v model.View) float64 { return -v.Result(y) })
	m.SetSolver(y, s)
	m.SetInitialValueParameter(y, y0)

	g, err := Build(m)
	require.NoError(t, err)
	assert.Equal(t, index.Signature{comp}, g.Node(y).Sig)
}

func TestSignatureMismatch(t *testing.T) {
	m := model.New("mismatch")
	comp := m.RegisterIndexSet("Compartment", "A", "B")
	cg := m.RegisterParameterGroup("Compartment params", comp)
	pc := m.RegisterParameterDouble(cg, "Depth", model.NoUnit, 1, 0, 10, "")

	scalar := m.RegisterEquation("Scalar", model.NoUnit, func(v model.View) float64 { return v.Parameter(pc) })
	m.SetIndexSets(scalar)
	require.NoError(t, m.Err())

	_, err := Build(m)
	require.ErrorIs(t, err, dynamo.ErrSignatureMismatch)
	assert.Contains(t, err.Error(), "Compartment")
}

func TestSignatureNesting(t *testing.T) {
	m := model.New("nesting")
	reach := m.RegisterIndexSet("Reach", "R1", "R2")
	layer := m.RegisterSubIndexSet("Layer", reach, map[string][]string{"R1": {"a"}, "R2": {"b", "c"}})
	rg := m.RegisterParameterGroup("Reach params", reach)
	width := m.RegisterParameterDouble(rg, "Width", model.NoUnit, 1, 0, 10, "")

	eq := m.RegisterEquation("PerLayer", model.NoUnit, func(v model.View) float64 { return v.Parameter(width) })
	m.SetIndexSets(eq, layer)
	require.NoError(t, m.Err())

	g, err := Build(m)
	require.NoError(t, err, "a nested set covers its parent")
	assert.Equal(t, index.Signature{layer}, g.Node(eq).Sig)
}
