package graph

import (
	"errors"
	"strconv"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/index"
	"github.com/san-kum/ecosim/internal/model"
)

// TargetSig returns the signature of the symbol a read refers to.
func (g *Graph) TargetSig(r Read) index.Signature {
	switch r.Kind {
	case model.KindParameter:
		return g.Model.Parameter(model.ParameterID(r.ID)).Sig
	case model.KindInput:
		return g.Model.Input(model.InputID(r.ID)).Sig
	default:
		return g.Nodes[r.ID].Sig
	}
}

// needed returns the target sets a read takes from the evaluated
// instance: all of them for a plain read, otherwise those not addressed
// by an explicit member of the set or of a nested descendant.
func (g *Graph) needed(r Read) []index.SetID {
	target := g.TargetSig(r)
	if r.Plain {
		return target
	}
	sp := g.Model.Space()
	var out []index.SetID
	for _, t := range target {
		covered := false
		for _, e := range r.Explicit {
			if e == t || sp.IsAncestor(t, e) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, t)
		}
	}
	return out
}

// initialSig is the signature of whatever seeds an equation.
func (g *Graph) initialSig(eq *model.Equation) index.Signature {
	switch {
	case eq.InitialEquation != model.NoEquation:
		return g.Nodes[eq.InitialEquation].Sig
	case eq.InitialParameter != model.NoParameter:
		return g.Model.Parameter(eq.InitialParameter).Sig
	}
	return nil
}

// inferSignatures gives every undeclared equation the union of the
// sets its reads need, iterated to a fix-point, then checks that every
// reader covers what it reads.
func (g *Graph) inferSignatures() error {
	sp := g.Model.Space()
	for _, n := range g.Nodes {
		if n.Eq.Declared {
			n.Sig = n.Eq.Sig
		} else {
			n.Sig = sp.Normalize(n.Index...)
		}
	}

	// Signatures only grow and are bounded by the set count.
	for changed := true; changed; {
		changed = false
		for _, n := range g.Nodes {
			if n.Eq.Declared {
				continue
			}
			sig := n.Sig
			for _, r := range n.Reads {
				sig = sp.Union(sig, g.needed(r))
			}
			sig = sp.Union(sig, g.initialSig(n.Eq))
			if !sig.Equal(n.Sig) {
				n.Sig = sig
				changed = true
			}
		}
	}

	var errs []error
	for _, n := range g.Nodes {
		for _, r := range n.Reads {
			for _, t := range g.needed(r) {
				if !sp.Covers(n.Sig, t) {
					errs = append(errs, g.mismatch(n, g.readName(r), t))
				}
			}
		}
		for _, s := range n.Index {
			if !sp.Covers(n.Sig, s) {
				errs = append(errs, g.mismatch(n, "its own index", s))
			}
		}
		for _, t := range g.initialSig(n.Eq) {
			if !sp.Covers(n.Sig, t) {
				errs = append(errs, g.mismatch(n, "its initial value", t))
			}
		}
	}
	return errors.Join(errs...)
}

func (g *Graph) mismatch(n *Node, what string, set index.SetID) error {
	sp := g.Model.Space()
	return dynamo.Errorf(dynamo.ErrSignatureMismatch, n.Eq.Name,
		"signature %s does not cover %q needed to read %s; aggregate explicitly with an indexed read",
		sp.Format(n.Sig), sp.Set(set).Name, what)
}

func (g *Graph) readName(r Read) string {
	switch r.Kind {
	case model.KindParameter:
		return "parameter " + strconv.Quote(g.Model.Parameter(model.ParameterID(r.ID)).Name)
	case model.KindInput:
		return "input " + strconv.Quote(g.Model.Input(model.InputID(r.ID)).Name)
	default:
		return "equation " + strconv.Quote(g.Nodes[r.ID].Eq.Name)
	}
}
