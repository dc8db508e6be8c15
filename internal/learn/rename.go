package learn

import "htnlearn/internal/logic"

// freshenFormula renames every variable in f to a fresh term (minted by
// fresh), reusing mapping so repeated variables across several calls
// sharing the same mapping land on the same fresh variable.
func freshenFormula(f logic.Formula, mapping map[*logic.Term]*logic.Term, fresh func() *logic.Term) (logic.Formula, error) {
	sub := logic.NewSubstitution()
	for _, v := range logic.Variables(f) {
		fv, ok := mapping[v]
		if !ok {
			fv = fresh()
			mapping[v] = fv
		}
		if err := sub.Insert(v, fv); err != nil {
			return nil, err
		}
	}
	return logic.ApplyFormula(f, sub)
}

func freshenPred(p *logic.Pred, mapping map[*logic.Term]*logic.Term, fresh func() *logic.Term) (*logic.Pred, error) {
	f, err := freshenFormula(p, mapping, fresh)
	if err != nil {
		return nil, err
	}
	return f.(*logic.Pred), nil
}

// freshenGrounded is freshenFormula specialised to regression: every
// newly minted fresh variable is immediately bound in pm.MasterSub to
// whatever ground term grounding maps its original variable to, so the
// partial method's master substitution always covers every fresh
// variable it has introduced so far.
func freshenGrounded(pm *PartialMethod, f logic.Formula, mapping map[*logic.Term]*logic.Term, grounding *logic.Substitution) (logic.Formula, error) {
	sub := logic.NewSubstitution()
	for _, v := range logic.Variables(f) {
		fv, ok := mapping[v]
		if !ok {
			fv = pm.Arena.FreshAuto()
			mapping[v] = fv
			if ground, ok := grounding.Lookup(v); ok {
				if err := pm.MasterSub.Insert(fv, ground); err != nil {
					return nil, err
				}
			}
		}
		if err := sub.Insert(v, fv); err != nil {
			return nil, err
		}
	}
	return logic.ApplyFormula(f, sub)
}

func dedupTerms(ts []*logic.Term) []*logic.Term {
	seen := map[*logic.Term]bool{}
	var out []*logic.Term
	for _, t := range ts {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func dedupFormulas(fs []logic.Formula) []logic.Formula {
	var out []logic.Formula
	for _, f := range fs {
		dup := false
		for _, g := range out {
			if logic.FormulaEqual(f, g) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, f)
		}
	}
	return out
}
