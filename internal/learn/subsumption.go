package learn

import (
	"htnlearn/internal/domain"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
)

// Subsumes decides whether m1 is a more general version of m2 under
// some variable renaming, per spec.md §4.7: both must share the same
// head predicate symbol/arity and an identical subtask sequence (same
// length, same symbol/arity at every position, in order — boundary
// scenario S6 requires a reordered subtask list to subsume nothing),
// and m1's preconditions, re-expressed over m2's variable identities,
// must be implied by m2's own preconditions — i.e. whatever m2 demands
// is at least as strong as what m1 demands, so m1 covers every case m2
// does and then some.
func Subsumes(arena *logic.Arena, m1, m2 *schema.HtnMethod) bool {
	if m1.Head.Symbol != m2.Head.Symbol || len(m1.Head.Args) != len(m2.Head.Args) {
		return false
	}
	if len(m1.Subtasks) != len(m2.Subtasks) {
		return false
	}
	for i := range m1.Subtasks {
		if m1.Subtasks[i].Symbol != m2.Subtasks[i].Symbol ||
			len(m1.Subtasks[i].Args) != len(m2.Subtasks[i].Args) {
			return false
		}
	}

	mapOld := map[*logic.Term]*logic.Term{}
	mapNew := map[*logic.Term]*logic.Term{}

	renamedHead1, err := freshenFormula(m1.Head, mapOld, arena.FreshTempOld)
	if err != nil {
		return false
	}
	renamedHead2, err := freshenFormula(m2.Head, mapNew, arena.FreshTempNew)
	if err != nil {
		return false
	}

	align := map[*logic.Term]*logic.Term{} // m1's temp_old vars -> m2's temp_new vars
	if !alignArgs(renamedHead1.(*logic.Pred).Args, renamedHead2.(*logic.Pred).Args, align) {
		return false
	}
	for i := range m1.Subtasks {
		s1, err := freshenFormula(m1.Subtasks[i], mapOld, arena.FreshTempOld)
		if err != nil {
			return false
		}
		s2, err := freshenFormula(m2.Subtasks[i], mapNew, arena.FreshTempNew)
		if err != nil {
			return false
		}
		if !alignArgs(s1.(*logic.Pred).Args, s2.(*logic.Pred).Args, align) {
			return false
		}
	}

	pre1, err := freshenFormula(m1.Preconditions, mapOld, arena.FreshTempOld)
	if err != nil {
		return false
	}
	pre2, err := freshenFormula(m2.Preconditions, mapNew, arena.FreshTempNew)
	if err != nil {
		return false
	}

	alignSub := logic.NewSubstitution()
	for k, v := range align {
		if err := alignSub.Insert(k, v); err != nil {
			return false
		}
	}
	pre1Aligned, err := logic.ApplyFormula(pre1, alignSub)
	if err != nil {
		return false
	}

	return logic.Implies(pre2, pre1Aligned)
}

func alignArgs(a1, a2 []*logic.Term, align map[*logic.Term]*logic.Term) bool {
	if len(a1) != len(a2) {
		return false
	}
	for i := range a1 {
		if a1[i].IsVariable() {
			if existing, ok := align[a1[i]]; ok {
				if existing != a2[i] {
					return false
				}
			} else {
				align[a1[i]] = a2[i]
			}
		} else if a1[i] != a2[i] {
			return false
		}
	}
	return true
}

// ReconcileWithDomain applies spec.md §4.7's domain-update policy for a
// freshly learned method m: if an existing method already subsumes it,
// m is redundant and is dropped (false). Otherwise, any existing method
// m itself subsumes is removed in m's favor, and m is kept (true).
// Adding a kept m to d is left to the caller.
func ReconcileWithDomain(arena *logic.Arena, d *domain.Domain, m *schema.HtnMethod) bool {
	candidates := d.MethodsForTask(m.Head.Symbol)
	for _, existing := range candidates {
		if Subsumes(arena, existing, m) {
			return false
		}
	}
	for _, existing := range candidates {
		if Subsumes(arena, m, existing) {
			d.RemoveMethod(existing)
		}
	}
	return true
}
