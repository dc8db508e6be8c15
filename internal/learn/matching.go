package learn

import "htnlearn/internal/logic"

// tryConsumeAgainst attempts to match effect literal ce — in this
// partial method's fresh-variable namespace — against one literal in
// items. On success it returns items with the matched entry removed.
// A match may bind a previously-unbound master_sub entry or merge two
// distinct fresh variables discovered to denote the same ground term
// (spec.md §4.5 "variable merging").
func tryConsumeAgainst(pm *PartialMethod, ce logic.Formula, items []logic.Formula) ([]logic.Formula, bool, error) {
	ceSign, ceAtom := unwrapSign(ce)
	cp, ok := ceAtom.(*logic.Pred)
	if !ok {
		return items, false, nil
	}
	for i, r := range items {
		rSign, rAtom := unwrapSign(r)
		if ceSign != rSign {
			continue
		}
		rp, ok := rAtom.(*logic.Pred)
		if !ok || rp.Symbol != cp.Symbol || len(rp.Args) != len(cp.Args) {
			continue
		}
		matched, err := unifyArgs(pm, cp.Args, rp.Args)
		if err != nil {
			return items, false, err
		}
		if matched {
			out := append(append([]logic.Formula{}, items[:i]...), items[i+1:]...)
			return out, true, nil
		}
	}
	return items, false, nil
}

func unwrapSign(f logic.Formula) (positive bool, atom logic.Formula) {
	if n, ok := f.(*logic.Neg); ok {
		return false, n.Inner
	}
	return true, f
}

// unifyArgs pairwise-unifies a candidate subtask's freshly-introduced
// effect arguments (cand) against an existing remaining-list atom's
// arguments (existing), both understood through pm.MasterSub's shared
// ground world. A mismatch anywhere aborts with (false, nil); success
// may bind master_sub entries or merge variables as a side effect.
func unifyArgs(pm *PartialMethod, cand, existing []*logic.Term) (bool, error) {
	type pair struct{ from, to *logic.Term }
	var binds, merges []pair

	for i := range cand {
		c, e := cand[i], existing[i]
		switch {
		case !c.IsVariable() && !e.IsVariable():
			if c != e {
				return false, nil
			}
		case !c.IsVariable() && e.IsVariable():
			if g, ok := pm.MasterSub.Lookup(e); ok {
				if g != c {
					return false, nil
				}
			} else {
				binds = append(binds, pair{e, c})
			}
		case c.IsVariable() && !e.IsVariable():
			if g, ok := pm.MasterSub.Lookup(c); ok {
				if g != e {
					return false, nil
				}
			} else {
				binds = append(binds, pair{c, e})
			}
		default:
			cg, cok := pm.MasterSub.Lookup(c)
			eg, eok := pm.MasterSub.Lookup(e)
			if cok && eok {
				if cg != eg {
					return false, nil
				}
				if c != e {
					merges = append(merges, pair{c, e})
				}
			} else if c != e {
				merges = append(merges, pair{c, e}) // rename the candidate's var onto the existing one
			}
		}
	}

	for _, b := range binds {
		if err := pm.MasterSub.Insert(b.from, b.to); err != nil {
			return false, nil
		}
	}
	for _, m := range merges {
		if err := pm.mergeVariable(m.from, m.to); err != nil {
			return false, nil
		}
	}
	return true, nil
}
