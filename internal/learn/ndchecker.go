package learn

import (
	"strings"

	"htnlearn/internal/domain"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
)

// ndBaseName reports the shared base name of a non-deterministic
// operator's numbered outcome, e.g. "!flip-01" -> ("!flip", true).
func ndBaseName(name string) (string, bool) {
	i := strings.LastIndex(name, "-")
	if i < 0 || i == len(name)-1 {
		return "", false
	}
	suffix := name[i+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return name[:i], true
}

// GenerateNDCheckers groups a domain's operators by non-deterministic
// base name and, for every base with at least two numbered variants,
// emits one auxiliary method per variant (variants whose arity differs
// from the first are skipped): its head is the base name, its
// preconditions are that variant's own (renamed) preconditions, and its
// single subtask is the variant itself, so the reference planner (C12)
// only ever dispatches to a variant whose guard actually holds —
// boundary scenario S5's "ND checker generation". No single per-base
// checker method with an empty subtask list is produced.
func GenerateNDCheckers(arena *logic.Arena, d *domain.Domain) []*schema.HtnMethod {
	groups := map[string][]*schema.Operator{}
	var order []string
	for _, op := range d.Operators {
		base, ok := ndBaseName(op.Name)
		if !ok {
			continue
		}
		if _, seen := groups[base]; !seen {
			order = append(order, base)
		}
		groups[base] = append(groups[base], op)
	}

	var out []*schema.HtnMethod
	for _, base := range order {
		variants := groups[base]
		if len(variants) < 2 {
			continue // a lone "-NN" operator isn't actually non-deterministic
		}
		arity := len(variants[0].Params)

		for _, variant := range variants {
			if len(variant.Params) != arity {
				continue
			}
			params := make([]*logic.Term, arity)
			for i := range params {
				params[i] = arena.FreshAuto()
			}
			mapping := map[*logic.Term]*logic.Term{}
			for i, p := range variant.Params {
				mapping[p] = params[i]
			}
			sub := logic.NewSubstitution()
			for k, v := range mapping {
				if err := sub.Insert(k, v); err != nil {
					continue
				}
			}
			renamedPre, err := logic.ApplyFormula(variant.Preconditions, sub)
			if err != nil {
				continue
			}

			head := logic.NewPred(base, params...)
			checkerSubtask := logic.NewPred(variant.Name, params...)
			out = append(out, schema.NewHtnMethod(head, renamedPre.(*logic.Conj), []*logic.Pred{checkerSubtask}))
		}
	}
	return out
}
