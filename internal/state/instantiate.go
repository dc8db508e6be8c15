package state

import (
	"sort"
	"strings"

	"htnlearn/internal/herr"
	"htnlearn/internal/logic"
)

// GetInstantiations returns every substitution σ ⊇ σ0 grounding the
// conjunction C such that Cσ holds in s, deduplicated so that no two
// returned σ agree on every variable in relevant but differ elsewhere
// collapsed away — per spec.md §4.4, two σ's are equal for dedup
// purposes iff they agree on relevantVars.
//
// The search is a backtracking DFS that, at each step, picks the literal
// with the fewest still-free variables, tie-broken by higher valence
// (equalities before predicates, negations last).
func GetInstantiations(c *logic.Conj, sigma0 *logic.Substitution, relevant []*logic.Term, s *State) ([]*logic.Substitution, error) {
	seen := map[string]bool{}
	var results []*logic.Substitution
	var innerErr error

	remaining := append([]logic.Formula{}, c.Children...)
	search(remaining, sigma0.Clone(), s, func(sigma *logic.Substitution) bool {
		key := relevantKey(relevant, sigma)
		if !seen[key] {
			seen[key] = true
			results = append(results, sigma)
		}
		return true // keep searching for all instantiations
	}, &innerErr)

	if innerErr != nil {
		return nil, innerErr
	}
	return results, nil
}

// GetInstantiationsFor is GetInstantiations specialised to a single
// lifted head: it grounds preconditions under σ0, which already carries
// the head-argument bindings the caller has fixed.
func GetInstantiationsFor(head *logic.Pred, preconditions *logic.Conj, sigma0 *logic.Substitution, relevant []*logic.Term, s *State) ([]*logic.Substitution, error) {
	return GetInstantiations(preconditions, sigma0, relevant, s)
}

func relevantKey(relevant []*logic.Term, sigma *logic.Substitution) string {
	var b strings.Builder
	for _, v := range relevant {
		t, ok := sigma.Lookup(v)
		b.WriteByte(0)
		if ok {
			b.WriteString(t.Name())
		} else {
			b.WriteString(v.Name())
		}
	}
	return b.String()
}

// rank gives the literal-selection tie-break: equalities (including
// negated equalities) before predicates, negated predicates last.
func rank(f logic.Formula) int {
	switch v := f.(type) {
	case *logic.Equ:
		return 0
	case *logic.Pred:
		return 1
	case *logic.Neg:
		if _, ok := v.Inner.(*logic.Equ); ok {
			return 0
		}
		return 2
	default:
		panic(herr.New(herr.FormulaTypeUnknown, "rank", "unrecognised formula variant"))
	}
}

func freeVarCount(f logic.Formula, sigma *logic.Substitution) int {
	n := 0
	for _, v := range logic.Variables(f) {
		if _, ok := sigma.Lookup(v); !ok {
			n++
		}
	}
	return n
}

// pickNext returns the index into remaining of the literal to expand
// next: fewest free variables, tie-broken by rank. A negated predicate
// that still has free variables is deferred behind every other literal,
// so it is tested only once the rest of the search has grounded it.
func pickNext(remaining []logic.Formula, sigma *logic.Substitution) int {
	deferred := func(f logic.Formula, fv int) bool {
		n, ok := f.(*logic.Neg)
		if !ok || fv == 0 {
			return false
		}
		_, isPred := n.Inner.(*logic.Pred)
		return isPred
	}
	best := 0
	bestFree := freeVarCount(remaining[0], sigma)
	bestRank := rank(remaining[0])
	bestDeferred := deferred(remaining[0], bestFree)
	for i := 1; i < len(remaining); i++ {
		fv := freeVarCount(remaining[i], sigma)
		rk := rank(remaining[i])
		df := deferred(remaining[i], fv)
		if df != bestDeferred {
			if !df {
				best, bestFree, bestRank, bestDeferred = i, fv, rk, df
			}
			continue
		}
		if fv < bestFree || (fv == bestFree && rk < bestRank) {
			best, bestFree, bestRank, bestDeferred = i, fv, rk, df
		}
	}
	return best
}

func withoutIndex(xs []logic.Formula, i int) []logic.Formula {
	out := make([]logic.Formula, 0, len(xs)-1)
	out = append(out, xs[:i]...)
	out = append(out, xs[i+1:]...)
	return out
}

// search walks remaining literals depth-first, calling emit for every
// fully consistent grounding found. emit returns false to stop the
// search early (unused today, kept for callers that only need the first
// result).
func search(remaining []logic.Formula, sigma *logic.Substitution, s *State, emit func(*logic.Substitution) bool, errOut *error) bool {
	if *errOut != nil {
		return false
	}
	if len(remaining) == 0 {
		return emit(sigma.Clone())
	}
	idx := pickNext(remaining, sigma)
	lit := remaining[idx]
	rest := withoutIndex(remaining, idx)

	switch v := lit.(type) {
	case *logic.Pred:
		return expandPred(v, rest, sigma, s, emit, errOut)
	case *logic.Equ:
		return expandEqu(v, rest, sigma, s, emit, errOut)
	case *logic.Neg:
		switch inner := v.Inner.(type) {
		case *logic.Equ:
			return expandNegEqu(inner, rest, sigma, s, emit, errOut)
		case *logic.Pred:
			return expandNegPred(inner, rest, sigma, s, emit, errOut)
		default:
			*errOut = herr.New(herr.NegNotPredOrEqu, "search", "negation inner must be Pred or Equ")
			return false
		}
	default:
		*errOut = herr.New(herr.FormulaTypeUnknown, "search", "unrecognised formula variant")
		return false
	}
}

func expandPred(p *logic.Pred, rest []logic.Formula, sigma *logic.Substitution, s *State, emit func(*logic.Substitution) bool, errOut *error) bool {
	inst, err := logic.ApplyFormula(p, sigma)
	if err != nil {
		*errOut = err
		return false
	}
	pInst := inst.(*logic.Pred)

	if logic.IsGround(pInst) {
		if s.Has(pInst) {
			return search(rest, sigma, s, emit, errOut)
		}
		return true
	}

	for _, tuple := range s.Tuples(pInst.Symbol) {
		if len(tuple) != len(pInst.Args) {
			continue
		}
		trial := sigma.Clone()
		ok := true
		for i, a := range pInst.Args {
			if a.IsVariable() {
				if bound, has := trial.Lookup(a); has {
					if bound != tuple[i] {
						ok = false
						break
					}
					continue
				}
				if err := trial.Insert(a, tuple[i]); err != nil {
					ok = false
					break
				}
			} else if a != tuple[i] {
				ok = false
				break
			}
		}
		if ok {
			if !search(rest, trial, s, emit, errOut) {
				return false
			}
		}
		if *errOut != nil {
			return false
		}
	}
	return true
}

func expandEqu(e *logic.Equ, rest []logic.Formula, sigma *logic.Substitution, s *State, emit func(*logic.Substitution) bool, errOut *error) bool {
	inst, err := logic.ApplyFormula(e, sigma)
	if err != nil {
		*errOut = err
		return false
	}
	ei := inst.(*logic.Equ)

	switch {
	case !ei.LHS.IsVariable() && !ei.RHS.IsVariable():
		if ei.LHS == ei.RHS {
			return search(rest, sigma, s, emit, errOut)
		}
		return true
	case ei.LHS.IsVariable() && !ei.RHS.IsVariable():
		trial := sigma.Clone()
		if err := trial.Insert(ei.LHS, ei.RHS); err != nil {
			*errOut = err
			return false
		}
		return search(rest, trial, s, emit, errOut)
	case !ei.LHS.IsVariable() && ei.RHS.IsVariable():
		trial := sigma.Clone()
		if err := trial.Insert(ei.RHS, ei.LHS); err != nil {
			*errOut = err
			return false
		}
		return search(rest, trial, s, emit, errOut)
	default:
		// Both sides free: bind one to the other so later literals can
		// ground the pair together. This only arises for malformed or
		// deliberately underconstrained preconditions.
		trial := sigma.Clone()
		if err := trial.Insert(ei.RHS, ei.LHS); err != nil {
			*errOut = err
			return false
		}
		return search(rest, trial, s, emit, errOut)
	}
}

func expandNegEqu(e *logic.Equ, rest []logic.Formula, sigma *logic.Substitution, s *State, emit func(*logic.Substitution) bool, errOut *error) bool {
	inst, err := logic.ApplyFormula(e, sigma)
	if err != nil {
		*errOut = err
		return false
	}
	ei := inst.(*logic.Equ)
	if logic.IsGround(ei) {
		if ei.LHS != ei.RHS {
			return search(rest, sigma, s, emit, errOut)
		}
		return true
	}
	// Still has a free variable with nothing left to ground it against:
	// treat the inequality as unconstrained rather than enumerate the
	// (unbounded) set of unequal ground terms.
	return search(rest, sigma, s, emit, errOut)
}

func expandNegPred(p *logic.Pred, rest []logic.Formula, sigma *logic.Substitution, s *State, emit func(*logic.Substitution) bool, errOut *error) bool {
	inst, err := logic.ApplyFormula(p, sigma)
	if err != nil {
		*errOut = err
		return false
	}
	pInst := inst.(*logic.Pred)
	if logic.IsGround(pInst) {
		if !s.Has(pInst) {
			return search(rest, sigma, s, emit, errOut)
		}
		return true
	}
	// pickNext defers non-ground negated predicates, so this is reached
	// only when no literal left can bind the free variable. Negated
	// predicates with free variables do not occur in well-formed
	// preconditions (spec.md Non-goals); such a literal is not tested.
	return search(rest, sigma, s, emit, errOut)
}

// NextState applies operator effects (already-ground, via sigma) to s,
// producing the successor at the given index: negative effects remove
// their ground complement, then positive effects are added.
func NextState(preconditions, effects *logic.Conj, sigma *logic.Substitution, s *State, nextIndex int) (*State, error) {
	instPre, err := logic.ApplyFormula(preconditions, sigma)
	if err != nil {
		return nil, err
	}
	if !IsConsistent(instPre, s) {
		return nil, herr.New(herr.OperatorNotApplicable, "NextState", "preconditions not satisfied")
	}

	instEff, err := logic.ApplyFormula(effects, sigma)
	if err != nil {
		return nil, err
	}
	conjEff := instEff.(*logic.Conj)

	next := s.Clone(nextIndex)
	for _, lit := range conjEff.Children {
		if neg, ok := lit.(*logic.Neg); ok {
			if p, ok := neg.Inner.(*logic.Pred); ok {
				next.Remove(p)
				continue
			}
			return nil, herr.New(herr.NegNotPredOrEqu, "NextState", "negative effect must negate a predicate")
		}
	}
	for _, lit := range conjEff.Children {
		if p, ok := lit.(*logic.Pred); ok {
			if err := next.Add(p); err != nil {
				return nil, err
			}
		}
	}
	return next, nil
}

// sortedSymbols gives deterministic iteration order over a state's
// predicate symbols, used by String so log output is stable across runs.
func sortedSymbols(atoms map[string][][]*logic.Term) []string {
	out := make([]string, 0, len(atoms))
	for k := range atoms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String renders the state's atoms in a stable order, for debug logging.
func (s *State) String() string {
	var b strings.Builder
	for _, sym := range sortedSymbols(s.atoms) {
		for _, args := range s.atoms[sym] {
			b.WriteByte('(')
			b.WriteString(sym)
			for _, a := range args {
				b.WriteByte(' ')
				b.WriteString(a.Name())
			}
			b.WriteByte(')')
		}
	}
	return b.String()
}
