package index

import (
	"slices"

	"github.com/san-kum/ecosim/internal/dynamo"
)

// Signature is the canonical, sorted list of sets a symbol varies over.
// The empty signature denotes a scalar.
type Signature []SetID

func (s Signature) Has(id SetID) bool { return slices.Contains(s, id) }

func (s Signature) Equal(o Signature) bool { return slices.Equal(s, o) }

// Pair selects one member of one set.
type Pair struct {
	Set    SetID
	Member int
}

// Tuple addresses one instance of a symbol.
type Tuple []Pair

// Member returns the member the tuple assigns to set.
func (t Tuple) Member(set SetID) (int, bool) {
	for _, p := range t {
		if p.Set == set {
			return p.Member, true
		}
	}
	return 0, false
}

// Shape is the row-major layout of one value per instance of a signature.
type Shape struct {
	Sig     Signature
	counts  []int
	strides []int
	size    int
}

func (sp *Space) Shape(sig Signature) Shape {
	sh := Shape{
		Sig:     sig,
		counts:  make([]int, len(sig)),
		strides: make([]int, len(sig)),
		size:    1,
	}
	for i := len(sig) - 1; i >= 0; i-- {
		sh.counts[i] = sp.sets[sig[i]].Count()
		sh.strides[i] = sh.size
		sh.size *= sh.counts[i]
	}
	return sh
}

// Size is the number of instances. A scalar has size 1.
func (sh Shape) Size() int { return sh.size }

func (sh Shape) Rank() int { return len(sh.Sig) }

// Offset returns the slot of the instance whose member in Sig[i] is
// members[i].
func (sh Shape) Offset(members []int) int {
	off := 0
	for i, m := range members {
		off += m * sh.strides[i]
	}
	return off
}

// Decode writes the members of the instance at off into out.
func (sh Shape) Decode(off int, out []int) {
	for i := range sh.Sig {
		out[i] = (off / sh.strides[i]) % sh.counts[i]
	}
}

// Tuple returns the instance at off as a tuple.
func (sh Shape) Tuple(off int) Tuple {
	members := make([]int, len(sh.Sig))
	sh.Decode(off, members)
	t := make(Tuple, len(sh.Sig))
	for i, s := range sh.Sig {
		t[i] = Pair{Set: s, Member: members[i]}
	}
	return t
}

// TupleOffset resolves an external tuple. With check set the tuple must
// name every set of the signature exactly once, in any order, with
// members in range. Without it the tuple is assumed to be in signature
// order.
func (sh Shape) TupleOffset(t Tuple, check bool) (int, error) {
	if !check {
		off := 0
		for i, p := range t {
			if i < len(sh.strides) {
				off += p.Member * sh.strides[i]
			}
		}
		return off, nil
	}

	if len(t) != len(sh.Sig) {
		return 0, dynamo.ErrIndexOutOfRange
	}
	off := 0
	for i, s := range sh.Sig {
		m, ok := t.Member(s)
		if !ok || m < 0 || m >= sh.counts[i] {
			return 0, dynamo.ErrIndexOutOfRange
		}
		off += m * sh.strides[i]
	}
	return off, nil
}

// source locates a target member in a reader instance: the reader
// member at pos, walked up through the parents of chain.
type source struct {
	pos   int
	chain []SetID
}

// Projection maps an instance of a reader signature onto the slot of a
// target signature. Each target set is taken from the reader's member of
// the same set, or derived from a nested descendant by walking up the
// parent links.
type Projection struct {
	sp     *Space
	target Shape
	src    []source
}

// Project builds the projection from reader instances onto target
// slots. Target sets the reader does not cover are returned as
// uncovered; their sources stay empty and must be supplied explicitly.
func (sp *Space) Project(reader Signature, target Shape) (*Projection, []SetID) {
	p := &Projection{sp: sp, target: target, src: make([]source, len(target.Sig))}
	var uncovered []SetID
	for i, want := range target.Sig {
		p.src[i] = source{pos: -1}
		for pos, have := range reader {
			if have == want {
				p.src[i] = source{pos: pos}
				break
			}
			if sp.IsAncestor(want, have) {
				var chain []SetID
				for s := sp.sets[have]; s.ID != want; s = sp.sets[s.Parent] {
					chain = append(chain, s.ID)
				}
				p.src[i] = source{pos: pos, chain: chain}
				break
			}
		}
		if p.src[i].pos < 0 {
			uncovered = append(uncovered, want)
		}
	}
	return p, uncovered
}

func (p *Projection) Target() Shape { return p.target }

// Offset returns the target slot for the reader instance with the given
// members. Uncovered target sets contribute member 0.
func (p *Projection) Offset(members []int) int {
	off := 0
	for i, src := range p.src {
		if src.pos < 0 {
			continue
		}
		off += p.resolve(src, members) * p.target.strides[i]
	}
	return off
}

// OffsetWith is Offset with explicit members overriding or filling in
// target sets. An override may name a target set or a nested descendant
// of one. It fails when a target set stays unaddressed or an override
// member is out of range.
func (p *Projection) OffsetWith(members []int, explicit Tuple) (int, error) {
	off := 0
	for i, want := range p.target.Sig {
		m, ok := p.explicitMember(want, explicit)
		if !ok {
			src := p.src[i]
			if src.pos < 0 {
				return 0, dynamo.ErrIndexOutOfRange
			}
			m = p.resolve(src, members)
		}
		if m < 0 || m >= p.target.counts[i] {
			return 0, dynamo.ErrIndexOutOfRange
		}
		off += m * p.target.strides[i]
	}
	return off, nil
}

func (p *Projection) explicitMember(want SetID, explicit Tuple) (int, bool) {
	for _, e := range explicit {
		if e.Set == want {
			return e.Member, true
		}
		if !p.sp.IsAncestor(want, e.Set) {
			continue
		}
		s := p.sp.Set(e.Set)
		if e.Member < 0 || e.Member >= s.Count() {
			return -1, true
		}
		m := e.Member
		for s.ID != want {
			m = s.ParentMember(m)
			s = p.sp.sets[s.Parent]
		}
		return m, true
	}
	return 0, false
}

func (p *Projection) resolve(src source, members []int) int {
	m := members[src.pos]
	for _, id := range src.chain {
		m = p.sp.sets[id].ParentMember(m)
	}
	return m
}
