package logic

// ReplaceTermInFormula rebuilds f with every argument occurrence of old
// replaced by new. Unlike Substitution.ReplaceTerm (which only rewrites
// the range of a variable→term map), this rewrites a formula tree
// directly — used by learning's variable-merge step (spec.md §4.5) to
// rename a freshly-created subtask variable onto an existing remaining
// literal's variable.
func ReplaceTermInFormula(f Formula, old, new *Term) Formula {
	switch v := f.(type) {
	case *Pred:
		args := make([]*Term, len(v.Args))
		for i, a := range v.Args {
			if a == old {
				args[i] = new
			} else {
				args[i] = a
			}
		}
		return &Pred{Symbol: v.Symbol, Args: args}
	case *Equ:
		lhs, rhs := v.LHS, v.RHS
		if lhs == old {
			lhs = new
		}
		if rhs == old {
			rhs = new
		}
		return &Equ{LHS: lhs, RHS: rhs}
	case *Neg:
		return &Neg{Inner: ReplaceTermInFormula(v.Inner, old, new)}
	case *Conj:
		children := make([]Formula, len(v.Children))
		for i, c := range v.Children {
			children[i] = ReplaceTermInFormula(c, old, new)
		}
		return &Conj{Children: children}
	default:
		return f
	}
}

// ReplaceTermInFormulas applies ReplaceTermInFormula across a slice.
func ReplaceTermInFormulas(fs []Formula, old, new *Term) []Formula {
	out := make([]Formula, len(fs))
	for i, f := range fs {
		out[i] = ReplaceTermInFormula(f, old, new)
	}
	return out
}

// FlattenConj returns a conjunction's children, or a single-element
// slice if f is itself an atom (Pred/Equ/Neg).
func FlattenConj(f Formula) []Formula {
	if c, ok := f.(*Conj); ok {
		return append([]Formula{}, c.Children...)
	}
	return []Formula{f}
}
