// Package index implements the index space: named dimensions with ordered
// members over which parameters, inputs and equation results are
// replicated.
//
// A [Signature] lists the sets a symbol varies over. A [Shape] lays out
// one value per member combination in row-major order, and a [Projection]
// maps an instance of a reader onto the slot of a lower-dimensional
// target, which is how broadcasting works.
package index

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/san-kum/ecosim/internal/dynamo"
)

// SetID identifies a registered index set. IDs follow registration order.
type SetID int

// None marks the absence of a set, e.g. the parent of a top-level set.
const None SetID = -1

type Set struct {
	ID     SetID
	Name   string
	Parent SetID

	members  []string
	labels   []string
	lookup   map[string]int
	parentOf []int
}

func (s *Set) Count() int { return len(s.members) }

func (s *Set) Member(i int) string { return s.members[i] }

func (s *Set) Members() []string { return slices.Clone(s.members) }

func (s *Set) Labels() []string { return slices.Clone(s.labels) }

// Label returns the name that identifies member i within the whole set.
// A nested member whose name repeats under another parent member is
// qualified as "parent/member".
func (s *Set) Label(i int) string { return s.labels[i] }

// Find returns the position of a member by label. Qualified names are
// always accepted for nested sets; a plain name only when it is unique.
func (s *Set) Find(name string) (int, bool) {
	i, ok := s.lookup[name]
	return i, ok && i >= 0
}

// ParentMember returns the parent member of member i, or -1 for a
// top-level set.
func (s *Set) ParentMember(i int) int {
	if s.parentOf == nil {
		return -1
	}
	return s.parentOf[i]
}

// Space holds every index set of a model.
type Space struct {
	sets   []*Set
	byName map[string]SetID
	frozen bool
}

func NewSpace() *Space {
	return &Space{byName: make(map[string]SetID)}
}

// Register adds a top-level set with the given members.
func (sp *Space) Register(name string, members ...string) (SetID, error) {
	return sp.add(name, None, members, nil, nil)
}

// RegisterCount adds a set whose members are "0".."n-1".
func (sp *Space) RegisterCount(name string, n int) (SetID, error) {
	if n < 0 {
		return None, dynamo.Errorf(dynamo.ErrIndexOutOfRange, name, "negative member count %d", n)
	}
	members := make([]string, n)
	for i := range members {
		members[i] = strconv.Itoa(i)
	}
	return sp.add(name, None, members, nil, nil)
}

// RegisterSub adds a set nested under parent. Members are listed per
// parent member; they are laid out in the parent's member order. Names
// need only be unique under one parent member.
func (sp *Space) RegisterSub(name string, parent SetID, byParent map[string][]string) (SetID, error) {
	p := sp.Set(parent)
	if p == nil {
		return None, dynamo.Errorf(dynamo.ErrUnknownSymbol, name, "parent index set %d is not registered", parent)
	}
	under := make([][]string, p.Count())
	for pm, ms := range byParent {
		i, ok := p.Find(pm)
		if !ok {
			return None, dynamo.Errorf(dynamo.ErrUnknownSymbol, name, "parent member %q is not in %q", pm, p.Name)
		}
		under[i] = append(under[i], ms...)
	}

	var members, qualified []string
	var parentOf []int
	for i, ms := range under {
		for _, m := range ms {
			members = append(members, m)
			qualified = append(qualified, p.labels[i]+"/"+m)
			parentOf = append(parentOf, i)
		}
	}
	return sp.add(name, parent, members, parentOf, qualified)
}

func (sp *Space) add(name string, parent SetID, members []string, parentOf []int, qualified []string) (SetID, error) {
	if sp.frozen {
		return None, dynamo.Errorf(dynamo.ErrPhase, name, "index space is frozen")
	}
	if _, exists := sp.byName[name]; exists {
		return None, dynamo.Errorf(dynamo.ErrNameCollision, name, "index set already registered")
	}

	s := &Set{
		ID:       SetID(len(sp.sets)),
		Name:     name,
		Parent:   parent,
		members:  members,
		labels:   slices.Clone(members),
		lookup:   make(map[string]int, 2*len(members)),
		parentOf: parentOf,
	}
	for i, q := range qualified {
		if _, dup := s.lookup[q]; dup {
			return None, dynamo.Errorf(dynamo.ErrNameCollision, name, "duplicate member %q", q)
		}
		s.lookup[q] = i
	}
	for i, m := range members {
		j, dup := s.lookup[m]
		switch {
		case !dup:
			s.lookup[m] = i
		case qualified == nil:
			return None, dynamo.Errorf(dynamo.ErrNameCollision, name, "duplicate member %q", m)
		default:
			// Repeated under several parent members.
			if j >= 0 {
				s.labels[j] = qualified[j]
			}
			s.labels[i] = qualified[i]
			s.lookup[m] = -1
		}
	}

	sp.sets = append(sp.sets, s)
	sp.byName[name] = s.ID
	return s.ID, nil
}

// Set returns the set with the given ID, or nil.
func (sp *Space) Set(id SetID) *Set {
	if id < 0 || int(id) >= len(sp.sets) {
		return nil
	}
	return sp.sets[id]
}

func (sp *Space) Lookup(name string) (SetID, bool) {
	id, ok := sp.byName[name]
	return id, ok
}

func (sp *Space) Len() int { return len(sp.sets) }

// Freeze forbids further registration.
func (sp *Space) Freeze() { sp.frozen = true }

// IsAncestor reports whether a is a strict ancestor of b.
func (sp *Space) IsAncestor(a, b SetID) bool {
	for s := sp.Set(b); s != nil && s.Parent != None; s = sp.Set(s.Parent) {
		if s.Parent == a {
			return true
		}
	}
	return false
}

// Covers reports whether an instance of sig determines a member of set:
// either set is in sig or it is an ancestor of a set in sig.
func (sp *Space) Covers(sig Signature, set SetID) bool {
	for _, s := range sig {
		if s == set || sp.IsAncestor(set, s) {
			return true
		}
	}
	return false
}

// Normalize returns the canonical signature of a collection of sets:
// sorted by registration order, without duplicates and without sets
// implied by a nested descendant.
func (sp *Space) Normalize(sets ...SetID) Signature {
	out := make(Signature, 0, len(sets))
	for _, s := range sets {
		if slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	out = slices.DeleteFunc(out, func(a SetID) bool {
		for _, b := range out {
			if sp.IsAncestor(a, b) {
				return true
			}
		}
		return false
	})
	slices.Sort(out)
	return out
}

// Union normalizes the union of two signatures.
func (sp *Space) Union(a, b Signature) Signature {
	all := make([]SetID, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return sp.Normalize(all...)
}

// Format renders a signature as "{A, B}".
func (sp *Space) Format(sig Signature) string {
	names := make([]string, len(sig))
	for i, s := range sig {
		names[i] = sp.name(s)
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// FormatTuple renders a tuple as "{Set:member, ...}".
func (sp *Space) FormatTuple(t Tuple) string {
	parts := make([]string, len(t))
	for i, p := range t {
		member := strconv.Itoa(p.Member)
		if s := sp.Set(p.Set); s != nil && p.Member >= 0 && p.Member < s.Count() {
			member = s.Label(p.Member)
		}
		parts[i] = sp.name(p.Set) + ":" + member
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (sp *Space) name(id SetID) string {
	if s := sp.Set(id); s != nil {
		return s.Name
	}
	return fmt.Sprintf("#%d", id)
}

// Tuple builds a tuple from alternating set and member names. Members
// of nested sets may be qualified by their parent member:
//
//	sp.Tuple("Compartment", "A", "Layer", "R1/top")
func (sp *Space) Tuple(names ...string) (Tuple, error) {
	if len(names)%2 != 0 {
		return nil, fmt.Errorf("%w: tuple needs set/member pairs, got %d names", dynamo.ErrIndexOutOfRange, len(names))
	}
	t := make(Tuple, 0, len(names)/2)
	for i := 0; i < len(names); i += 2 {
		id, ok := sp.Lookup(names[i])
		if !ok {
			return nil, dynamo.Errorf(dynamo.ErrUnknownSymbol, names[i], "no such index set")
		}
		m, ok := sp.sets[id].Find(names[i+1])
		if !ok {
			if j, amb := sp.sets[id].lookup[names[i+1]]; amb && j < 0 {
				return nil, dynamo.Errorf(dynamo.ErrIndexOutOfRange, names[i], "member %q is ambiguous, qualify it by its parent member", names[i+1])
			}
			return nil, dynamo.Errorf(dynamo.ErrIndexOutOfRange, names[i], "no member %q", names[i+1])
		}
		t = append(t, Pair{Set: id, Member: m})
	}
	return t, nil
}
