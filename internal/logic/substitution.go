package logic

import "htnlearn/internal/herr"

// Substitution is a finite variable→term map with the invariants from
// spec.md §3: each variable key occurs at most once, no v↦v pair is ever
// stored, and chained lookups are depth-bounded (enforced in ApplyTerm).
type Substitution struct {
	fwd map[*Term]*Term
	rev map[*Term][]*Term
}

// NewSubstitution returns an empty substitution.
func NewSubstitution() *Substitution {
	return &Substitution{fwd: make(map[*Term]*Term), rev: make(map[*Term][]*Term)}
}

// Clone returns an independent copy.
func (s *Substitution) Clone() *Substitution {
	cp := NewSubstitution()
	for k, v := range s.fwd {
		cp.fwd[k] = v
		cp.rev[v] = append(cp.rev[v], k)
	}
	return cp
}

// Insert binds v to t. Identity pairs (v == t) are silently dropped.
// Re-inserting the same pair is a no-op; binding v to a different term
// than it already has fails with SubstitutionDoubleBinding.
func (s *Substitution) Insert(v, t *Term) error {
	if v == t {
		return nil
	}
	if existing, ok := s.fwd[v]; ok {
		if existing == t {
			return nil
		}
		return herr.New(herr.SubstitutionDoubleBinding, "Substitution.Insert",
			"variable "+v.Name()+" already bound to "+existing.Name()+", cannot rebind to "+t.Name())
	}
	s.fwd[v] = t
	s.rev[t] = append(s.rev[t], v)
	return nil
}

// Lookup returns the term bound to v, if any.
func (s *Substitution) Lookup(v *Term) (*Term, bool) {
	t, ok := s.fwd[v]
	return t, ok
}

// LookupByTarget returns every variable bound to t.
func (s *Substitution) LookupByTarget(t *Term) []*Term {
	return s.rev[t]
}

// Remove deletes the binding for v, if present.
func (s *Substitution) Remove(v *Term) {
	if t, ok := s.fwd[v]; ok {
		delete(s.fwd, v)
		s.removeRev(t, v)
	}
}

func (s *Substitution) removeRev(t, v *Term) {
	vars := s.rev[t]
	for i, x := range vars {
		if x == v {
			s.rev[t] = append(vars[:i], vars[i+1:]...)
			break
		}
	}
	if len(s.rev[t]) == 0 {
		delete(s.rev, t)
	}
}

// Pairs returns all (variable, term) bindings. Order is unspecified.
func (s *Substitution) Pairs() map[*Term]*Term {
	return s.fwd
}

// ReplaceTerm rewrites every occurrence of old in the range of the map to
// new. If old is itself bound as a key, that key is rewritten to new too
// (used by learning to unify two variables discovered to denote the same
// ground term). Conflicting rebinds fail with SubstitutionDoubleBinding.
func (s *Substitution) ReplaceTerm(old, new *Term) error {
	if old == new {
		return nil
	}
	// Rewrite range occurrences: every v ↦ old becomes v ↦ new.
	for _, v := range append([]*Term{}, s.rev[old]...) {
		delete(s.fwd, v)
		s.removeRev(old, v)
		if v == new {
			continue // would become an identity pair; drop it per the no-v↦v invariant
		}
		if existing, ok := s.fwd[v]; ok && existing != new {
			return herr.New(herr.SubstitutionDoubleBinding, "Substitution.ReplaceTerm",
				"key "+v.Name()+" already bound to "+existing.Name())
		}
		s.fwd[v] = new
		s.rev[new] = append(s.rev[new], v)
	}

	// Rewrite old as a key, if present: old ↦ x becomes new ↦ x.
	if x, ok := s.fwd[old]; ok {
		delete(s.fwd, old)
		s.removeRev(x, old)
		if y, ok := s.fwd[new]; ok && y != x {
			return herr.New(herr.SubstitutionDoubleBinding, "Substitution.ReplaceTerm",
				"cannot merge "+old.Name()+"↦"+x.Name()+" into "+new.Name()+"↦"+y.Name())
		}
		if new != x {
			s.fwd[new] = x
			s.rev[x] = append(s.rev[x], new)
		}
	}
	return nil
}

// Len reports the number of bindings.
func (s *Substitution) Len() int { return len(s.fwd) }
