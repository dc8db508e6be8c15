package learn

import (
	"htnlearn/internal/domain"
	"htnlearn/internal/herr"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// VerifyMethod re-derives an ending state by applying m's subtasks, in
// order, against before (grounding m's own variables via sigma),
// recursing into whichever of the domain's methods apply for each
// compound subtask. If descr is non-nil, the derived ending state is
// checked against descr's effects. This is the soundness verifier of
// boundary scenario S4: a freshly learned method is only trustworthy if
// replaying its own subtasks actually reaches the effects it claims to
// explain.
func VerifyMethod(d *domain.Domain, m *schema.HtnMethod, sigma *logic.Substitution, before *state.State, descr *schema.HtnTaskDescr) (bool, *state.State, error) {
	cur := before
	idx := before.Index()
	for _, sub := range m.Subtasks {
		groundSub, err := logic.ApplyFormula(sub, sigma)
		if err != nil {
			return false, cur, err
		}
		groundPred := groundSub.(*logic.Pred)

		if schema.IsPrimitive(groundPred.Symbol) {
			op := d.FindOperator(groundPred.Symbol)
			if op == nil {
				return false, cur, herr.New(herr.MethodNotApplicable, "VerifyMethod", "unknown operator "+groundPred.Symbol)
			}
			opSigma, err := bindParams(op.Params, groundPred.Args)
			if err != nil {
				return false, cur, err
			}
			idx++
			next, err := state.NextState(op.Preconditions, op.Effects, opSigma, cur, idx)
			if err != nil {
				return false, cur, nil // operator inapplicable here: the method isn't sound, not an error
			}
			cur = next
			continue
		}

		applied := false
		for _, candidate := range d.MethodsForTask(groundPred.Symbol) {
			candSigma, err := bindParams(candidate.Head.Args, groundPred.Args)
			if err != nil {
				continue
			}
			ok, next, err := VerifyMethod(d, candidate, candSigma, cur, nil)
			if err == nil && ok {
				cur = next
				idx = next.Index()
				applied = true
				break
			}
		}
		if !applied {
			return false, cur, nil
		}
	}

	if descr == nil {
		return true, cur, nil
	}
	groundEffects, err := logic.ApplyFormula(descr.Effects, sigma)
	if err != nil {
		return false, cur, err
	}
	return state.IsConsistent(groundEffects, cur), cur, nil
}

func bindParams(params, args []*logic.Term) (*logic.Substitution, error) {
	if len(params) != len(args) {
		return nil, herr.New(herr.IndexOutOfBounds, "bindParams", "parameter/argument count mismatch")
	}
	sub := logic.NewSubstitution()
	for i := range params {
		if err := sub.Insert(params[i], args[i]); err != nil {
			return nil, err
		}
	}
	return sub, nil
}
