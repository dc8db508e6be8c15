// Package state implements the ground-atom State and the instantiation
// search (spec.md §4.4, component C6): the backtracking solver that finds
// every substitution grounding a lifted precondition true in a state.
package state

import (
	"htnlearn/internal/herr"
	"htnlearn/internal/logic"
)

// State is a set of ground predicate atoms, indexed by predicate symbol.
// The index field is advisory — it records the state's position in a
// plan trace but is not part of state equality.
type State struct {
	atoms map[string][][]*logic.Term
	index int

	constants     []*logic.Term
	constantsSeen map[*logic.Term]bool
}

// New returns an empty state at the given trace index.
func New(index int) *State {
	return &State{atoms: make(map[string][][]*logic.Term), index: index}
}

// Index returns the state's advisory trace position.
func (s *State) Index() int { return s.index }

// Add stores a ground positive atom; adding an atom already present
// leaves the state unchanged. A non-ground atom is rejected with
// StateNotAtom (the *logic.Pred parameter already excludes negations,
// equalities and conjunctions).
func (s *State) Add(p *logic.Pred) error {
	if !logic.IsGround(p) {
		return herr.New(herr.StateNotAtom, "State.Add", "atom "+p.String()+" is not ground")
	}
	if s.Has(p) {
		return nil
	}
	s.atoms[p.Symbol] = append(s.atoms[p.Symbol], p.Args)
	s.constants = nil
	s.constantsSeen = nil
	return nil
}

// Remove deletes a ground atom, if present.
func (s *State) Remove(p *logic.Pred) {
	tuples := s.atoms[p.Symbol]
	for i, args := range tuples {
		if sameArgs(args, p.Args) {
			s.atoms[p.Symbol] = append(tuples[:i], tuples[i+1:]...)
			s.constants = nil
			s.constantsSeen = nil
			return
		}
	}
}

// Has reports whether the ground atom p is present.
func (s *State) Has(p *logic.Pred) bool {
	for _, args := range s.atoms[p.Symbol] {
		if sameArgs(args, p.Args) {
			return true
		}
	}
	return false
}

// Tuples returns the argument tuples stored for predicate symbol.
func (s *State) Tuples(symbol string) [][]*logic.Term {
	return s.atoms[symbol]
}

func sameArgs(a, b []*logic.Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Constants returns the set of constants occurring in the state,
// computed on demand and cached until the next mutation.
func (s *State) Constants() []*logic.Term {
	if s.constantsSeen != nil {
		return s.constants
	}
	seen := make(map[*logic.Term]bool)
	var out []*logic.Term
	for _, tuples := range s.atoms {
		for _, args := range tuples {
			for _, t := range args {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
		}
	}
	s.constantsSeen = seen
	s.constants = out
	return out
}

// Clone returns an independent copy of s, used by NextState to build a
// successor without mutating the predecessor.
func (s *State) Clone(index int) *State {
	cp := New(index)
	for sym, tuples := range s.atoms {
		cp.atoms[sym] = append([][]*logic.Term{}, tuples...)
	}
	return cp
}

// AllAtoms enumerates every ground atom in the state as a *logic.Pred.
func (s *State) AllAtoms() []*logic.Pred {
	var out []*logic.Pred
	for sym, tuples := range s.atoms {
		for _, args := range tuples {
			out = append(out, logic.NewPred(sym, args...))
		}
	}
	return out
}

// IsConsistent decides whether ground formula f holds in s, per spec.md
// §4.4. A non-ground formula is never consistent.
func IsConsistent(f logic.Formula, s *State) bool {
	if !logic.IsGround(f) {
		return false
	}
	switch v := f.(type) {
	case *logic.Pred:
		return s.Has(v)
	case *logic.Equ:
		return v.LHS == v.RHS
	case *logic.Neg:
		switch inner := v.Inner.(type) {
		case *logic.Pred:
			return !s.Has(inner)
		case *logic.Equ:
			return inner.LHS != inner.RHS
		default:
			panic(herr.New(herr.NegNotPredOrEqu, "IsConsistent", "negation inner must be Pred or Equ"))
		}
	case *logic.Conj:
		for _, c := range v.Children {
			if !IsConsistent(c, s) {
				return false
			}
		}
		return true
	default:
		panic(herr.New(herr.FormulaTypeUnknown, "IsConsistent", "unrecognised formula variant"))
	}
}

// CouldBeConsistent is the weaker, partial-binding check from spec.md
// §4.4: for a Pred with free variables, it asks whether at least one
// ground instance of it exists in s (matching on the positions that are
// already constants); for Conj, it recurses pairwise over the children.
// It is a strict over-approximation of IsConsistent: IsConsistent(F)
// implies CouldBeConsistent(F), never the converse.
func CouldBeConsistent(f logic.Formula, s *State) bool {
	switch v := f.(type) {
	case *logic.Pred:
		if logic.IsGround(v) {
			return s.Has(v)
		}
		for _, args := range s.atoms[v.Symbol] {
			if len(args) != len(v.Args) {
				continue
			}
			if matchesConstants(v.Args, args) {
				return true
			}
		}
		return false
	case *logic.Equ:
		if logic.IsGround(v) {
			return v.LHS == v.RHS
		}
		return true
	case *logic.Neg:
		switch inner := v.Inner.(type) {
		case *logic.Pred:
			if logic.IsGround(inner) {
				return !s.Has(inner)
			}
			return true
		case *logic.Equ:
			if logic.IsGround(inner) {
				return inner.LHS != inner.RHS
			}
			return true
		default:
			panic(herr.New(herr.NegNotPredOrEqu, "CouldBeConsistent", "negation inner must be Pred or Equ"))
		}
	case *logic.Conj:
		for _, c := range v.Children {
			if !CouldBeConsistent(c, s) {
				return false
			}
		}
		return true
	default:
		panic(herr.New(herr.FormulaTypeUnknown, "CouldBeConsistent", "unrecognised formula variant"))
	}
}

// matchesConstants reports whether, for every position where pattern
// holds a constant, tuple agrees with it. Variable positions are
// unconstrained.
func matchesConstants(pattern, tuple []*logic.Term) bool {
	for i, p := range pattern {
		if !p.IsVariable() && p != tuple[i] {
			return false
		}
	}
	return true
}
