package learn

import (
	"htnlearn/internal/herr"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// ChosenSubtask is one subtask a PartialMethod has committed to during
// backward regression, in this method's own fresh-variable namespace.
// MethodID is "" when the subtask is a raw ground operator rather than
// a previously learned method instance.
type ChosenSubtask struct {
	Head       *logic.Pred
	Precond    *logic.Conj
	RangeStart int
	RangeEnd   int
	Cost       int
	MethodID   string
}

// PartialMethod is the in-progress goal-regression state of spec.md §3:
// a seeded task descriptor instance walked backward across a ground plan
// trace, accumulating the subtasks chosen to explain it and the
// preconditions/add-list literals still unaccounted for.
type PartialMethod struct {
	Arena *logic.Arena

	TaskDescr *schema.HtnTaskDescr // fresh-variable form of the seeded task

	// TaskSub maps the original task descriptor's variables onto the
	// fresh variables this instance introduced for them.
	TaskSub *logic.Substitution

	// MasterSub maps every fresh variable introduced so far onto the
	// ground term it denotes in the source plan trace.
	MasterSub *logic.Substitution

	RemainingAddList []logic.Formula
	RemainingPrecs   []logic.Formula

	Chosen []ChosenSubtask // accumulated back-to-front; reversed at Emit

	InitStateIndex    int
	FinalStateIndex   int
	CurrentStateIndex int
	TotalCost         int

	// pending* hold the candidate subtask under evaluation for the
	// current regression step; mergeVariable rewrites them in place
	// alongside every other formula-bearing field when a variable merge
	// is discovered mid-match.
	pendingHead    *logic.Pred
	pendingPrecond *logic.Conj
	pendingEffects []logic.Formula
}

// Seed constructs one PartialMethod per way task's effects can be
// instantiated against the state just after plan position final such
// that they were not already true one step earlier — spec.md §4.5 step 1.
func Seed(arena *logic.Arena, task *schema.HtnTaskDescr, p *plan.Plan, final int) ([]*PartialMethod, error) {
	if final <= 0 || final >= len(p.States) {
		return nil, herr.New(herr.IndexOutOfBounds, "Seed", "final state index out of range")
	}
	after := p.States[final]
	before := p.States[final-1]

	relevant := dedupTerms(append(append(
		append([]*logic.Term{}, logic.Variables(task.Head)...),
		logic.Variables(task.Preconditions)...),
		logic.Variables(task.Effects)...))

	instantiations, err := state.GetInstantiations(task.Effects, logic.NewSubstitution(), relevant, after)
	if err != nil {
		return nil, err
	}

	var out []*PartialMethod
	for _, sigma := range instantiations {
		instEff, err := logic.ApplyFormula(task.Effects, sigma)
		if err != nil {
			return nil, err
		}
		if state.IsConsistent(instEff, before) {
			continue // already true one step earlier: this instance adds nothing
		}

		mapping := map[*logic.Term]*logic.Term{}
		freshHead, err := freshenPred(task.Head, mapping, arena.FreshAuto)
		if err != nil {
			return nil, err
		}
		freshPre, err := freshenFormula(task.Preconditions, mapping, arena.FreshAuto)
		if err != nil {
			return nil, err
		}
		freshEff, err := freshenFormula(task.Effects, mapping, arena.FreshAuto)
		if err != nil {
			return nil, err
		}

		taskSub := logic.NewSubstitution()
		master := logic.NewSubstitution()
		for orig, fresh := range mapping {
			if err := taskSub.Insert(orig, fresh); err != nil {
				return nil, err
			}
			if ground, ok := sigma.Lookup(orig); ok {
				if err := master.Insert(fresh, ground); err != nil {
					return nil, err
				}
			}
		}

		out = append(out, &PartialMethod{
			Arena: arena,
			TaskDescr: &schema.HtnTaskDescr{
				Head:          freshHead,
				Preconditions: freshPre.(*logic.Conj),
				Effects:       freshEff.(*logic.Conj),
			},
			TaskSub:           taskSub,
			MasterSub:         master,
			RemainingAddList:  logic.FlattenConj(freshEff),
			FinalStateIndex:   final,
			CurrentStateIndex: final,
		})
	}
	return out, nil
}

// Regress walks pm backward from its current plan position, choosing
// one subtask per step (spec.md §4.5 step 2) and checking termination
// (step 4) after each. Without Options.PartialGeneralization, only a
// regression reaching all the way back to the plan's initial state
// (index 0) is accepted; with it, the first position at which
// termination succeeds is accepted, even if the regression could have
// continued further back. It reports false, rather than an error,
// whenever regression simply fails to find a sound generalization.
func (pm *PartialMethod) Regress(ap *plan.AnnotatedPlan, p *plan.Plan, opts Options) (bool, error) {
	for {
		ok, err := pm.checkTermination(p.States[pm.CurrentStateIndex])
		if err != nil {
			return false, err
		}
		if ok && (opts.PartialGeneralization || pm.CurrentStateIndex == 0) {
			pm.InitStateIndex = pm.CurrentStateIndex
			return true, nil
		}
		if pm.CurrentStateIndex == 0 {
			return false, nil
		}
		stepped, err := pm.regressOnce(ap, p, opts)
		if err != nil {
			return false, err
		}
		if !stepped {
			return false, nil
		}
	}
}

func (pm *PartialMethod) regressOnce(ap *plan.AnnotatedPlan, p *plan.Plan, opts Options) (bool, error) {
	k := pm.CurrentStateIndex
	tryOp := func(mustContribute bool) (bool, error) {
		if k-1 < 0 || k-1 >= len(p.Steps) {
			return false, nil
		}
		return pm.tryChooseOperatorStep(p, k-1, mustContribute)
	}
	tryMethods := func() (bool, error) {
		for _, mi := range ap.EndingAt(k) {
			if mi.RangeStart >= k {
				continue // an empty range would not move regression back
			}
			ok, err := pm.tryChooseMethodInstance(mi, opts)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	if opts.ForceOpsFirst {
		if ok, err := tryOp(true); ok || err != nil {
			return ok, err
		}
		if ok, err := tryMethods(); ok || err != nil {
			return ok, err
		}
	} else {
		if ok, err := tryMethods(); ok || err != nil {
			return ok, err
		}
		if ok, err := tryOp(true); ok || err != nil {
			return ok, err
		}
	}

	if !opts.RequireNew {
		// Nothing contributed, but the chosen range must still tile the
		// plan exactly: force the raw operator in even though it
		// explains no remaining literal.
		return tryOp(false)
	}
	return false, nil
}

func (pm *PartialMethod) tryChooseOperatorStep(p *plan.Plan, idx int, mustContribute bool) (bool, error) {
	step := p.Steps[idx]
	op := step.Operator

	mapping := map[*logic.Term]*logic.Term{}
	head, err := freshenGrounded(pm, op.Head(), mapping, step.Sub)
	if err != nil {
		return false, err
	}
	precond, err := freshenGrounded(pm, op.Preconditions, mapping, step.Sub)
	if err != nil {
		return false, err
	}
	effects, err := freshenGrounded(pm, op.Effects, mapping, step.Sub)
	if err != nil {
		return false, err
	}

	pm.pendingHead = head.(*logic.Pred)
	pm.pendingPrecond = precond.(*logic.Conj)
	pm.pendingEffects = logic.FlattenConj(effects)

	contributed, err := pm.consumePendingEffects()
	if err != nil {
		return false, err
	}
	if mustContribute && !contributed {
		pm.clearPending()
		return false, nil
	}
	pm.commitPending(idx, idx, op.Cost, "")
	return true, nil
}

func (pm *PartialMethod) tryChooseMethodInstance(mi plan.MethodInstance, opts Options) (bool, error) {
	mapping := map[*logic.Term]*logic.Term{}
	head, err := freshenGrounded(pm, mi.Method.Head, mapping, mi.Sub)
	if err != nil {
		return false, err
	}
	precond, err := freshenGrounded(pm, mi.Method.Preconditions, mapping, mi.Sub)
	if err != nil {
		return false, err
	}

	var effSource logic.Formula = mi.Effects
	if !opts.OnlyTaskEffects || mi.Effects == nil {
		effSource = groundDiffEffects(mi.Before, mi.After)
	}
	effects, err := freshenGrounded(pm, effSource, mapping, mi.Sub)
	if err != nil {
		return false, err
	}

	pm.pendingHead = head.(*logic.Pred)
	pm.pendingPrecond = precond.(*logic.Conj)
	pm.pendingEffects = logic.FlattenConj(effects)

	contributed, err := pm.consumePendingEffects()
	if err != nil {
		return false, err
	}
	if !contributed {
		pm.clearPending()
		return false, nil
	}
	pm.commitPending(mi.RangeStart, mi.RangeEnd, mi.Cost, mi.Method.ID)
	return true, nil
}

// consumePendingEffects tries to discharge each pending effect literal
// against an open add-list or precondition literal, performing whatever
// variable binding or merging (spec.md §4.5 "variable merging") the
// match requires. Effect literals that match nothing are dropped as
// ordinary side effects.
func (pm *PartialMethod) consumePendingEffects() (bool, error) {
	contributed := false
	consumed := make([]bool, len(pm.pendingEffects))
	// Indexed rather than ranged: a merge made while matching one literal
	// rewrites pm.pendingEffects, and later literals must be read in their
	// rewritten form.
	for i := 0; i < len(pm.pendingEffects); i++ {
		ce := pm.pendingEffects[i]
		newAdd, ok, err := tryConsumeAgainst(pm, ce, pm.RemainingAddList)
		if err != nil {
			return false, err
		}
		if ok {
			pm.RemainingAddList = newAdd
			contributed = true
			consumed[i] = true
			continue
		}
		newPrec, ok, err := tryConsumeAgainst(pm, ce, pm.RemainingPrecs)
		if err != nil {
			return false, err
		}
		if ok {
			pm.RemainingPrecs = newPrec
			contributed = true
			consumed[i] = true
			continue
		}
	}
	var stillPending []logic.Formula
	for i, ce := range pm.pendingEffects {
		if !consumed[i] {
			stillPending = append(stillPending, ce)
		}
	}
	pm.pendingEffects = stillPending
	return contributed, nil
}

func (pm *PartialMethod) commitPending(rangeStart, rangeEnd, cost int, methodID string) {
	pm.RemainingPrecs = append(pm.RemainingPrecs, logic.FlattenConj(pm.pendingPrecond)...)
	pm.Chosen = append(pm.Chosen, ChosenSubtask{
		Head:       pm.pendingHead,
		Precond:    pm.pendingPrecond,
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		Cost:       cost,
		MethodID:   methodID,
	})
	pm.TotalCost += cost
	pm.CurrentStateIndex = rangeStart
	pm.clearPending()
}

func (pm *PartialMethod) clearPending() {
	pm.pendingHead = nil
	pm.pendingPrecond = nil
	pm.pendingEffects = nil
}

// checkTermination implements spec.md §4.5 step 4: task_descr's own
// preconditions must be satisfiable in the initial state, and every
// literal still outstanding in remaining_add_list must already hold
// there too.
func (pm *PartialMethod) checkTermination(stateInit *state.State) (bool, error) {
	preVars := logic.Variables(pm.TaskDescr.Preconditions)
	sigma0 := logic.NewSubstitution()
	for _, v := range preVars {
		if g, ok := pm.MasterSub.Lookup(v); ok {
			if err := sigma0.Insert(v, g); err != nil {
				return false, err
			}
		}
	}
	insts, err := state.GetInstantiations(pm.TaskDescr.Preconditions, sigma0, preVars, stateInit)
	if err != nil {
		return false, err
	}
	if len(insts) == 0 {
		return false, nil
	}
	witness := insts[0]
	for _, v := range preVars {
		if _, ok := pm.MasterSub.Lookup(v); ok {
			continue
		}
		if g, ok := witness.Lookup(v); ok {
			if err := pm.MasterSub.Insert(v, g); err != nil {
				return false, err
			}
		}
	}

	for _, atom := range pm.RemainingAddList {
		ground, err := logic.ApplyFormula(atom, pm.MasterSub)
		if err != nil {
			return false, err
		}
		if !state.IsConsistent(ground, stateInit) {
			return false, nil
		}
	}
	return true, nil
}

// Emit builds the lifted HtnMethod this PartialMethod has regressed
// into, per spec.md §4.6: head = the seeded task's fresh head;
// preconditions = task_descr's own preconditions plus every literal
// still in remaining_precs; subtasks = the chosen subtasks, in forward
// (original plan) order.
func (pm *PartialMethod) Emit() *schema.HtnMethod {
	precChildren := append(append([]logic.Formula{},
		logic.FlattenConj(pm.TaskDescr.Preconditions)...),
		pm.RemainingPrecs...)
	preconditions := &logic.Conj{Children: dedupFormulas(precChildren)}

	subtasks := make([]*logic.Pred, len(pm.Chosen))
	for i, c := range pm.Chosen {
		subtasks[len(pm.Chosen)-1-i] = c.Head
	}

	m := schema.NewHtnMethod(pm.TaskDescr.Head, preconditions, subtasks)
	m.Vars = freeVarsBeyondHead(m.Head, preconditions, subtasks)
	return m
}

func freeVarsBeyondHead(head *logic.Pred, preconditions *logic.Conj, subtasks []*logic.Pred) []*logic.Term {
	headVars := map[*logic.Term]bool{}
	for _, a := range head.Args {
		headVars[a] = true
	}
	seen := map[*logic.Term]bool{}
	var out []*logic.Term
	collect := func(vs []*logic.Term) {
		for _, v := range vs {
			if !headVars[v] && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	collect(logic.Variables(preconditions))
	for _, s := range subtasks {
		collect(logic.Variables(s))
	}
	return out
}

// mergeVariable unifies two fresh variables discovered to denote the
// same ground term, rewriting every formula-bearing field this partial
// method holds — including the in-progress pending candidate — so
// `from` never appears again.
func (pm *PartialMethod) mergeVariable(from, to *logic.Term) error {
	if from == to {
		return nil
	}
	if err := pm.MasterSub.ReplaceTerm(from, to); err != nil {
		return err
	}
	if err := pm.TaskSub.ReplaceTerm(from, to); err != nil {
		return err
	}
	pm.RemainingAddList = logic.ReplaceTermInFormulas(pm.RemainingAddList, from, to)
	pm.RemainingPrecs = logic.ReplaceTermInFormulas(pm.RemainingPrecs, from, to)
	for i := range pm.Chosen {
		pm.Chosen[i].Head = logic.ReplaceTermInFormula(pm.Chosen[i].Head, from, to).(*logic.Pred)
		if pm.Chosen[i].Precond != nil {
			pm.Chosen[i].Precond = logic.ReplaceTermInFormula(pm.Chosen[i].Precond, from, to).(*logic.Conj)
		}
	}
	if pm.pendingHead != nil {
		pm.pendingHead = logic.ReplaceTermInFormula(pm.pendingHead, from, to).(*logic.Pred)
	}
	if pm.pendingPrecond != nil {
		pm.pendingPrecond = logic.ReplaceTermInFormula(pm.pendingPrecond, from, to).(*logic.Conj)
	}
	pm.pendingEffects = logic.ReplaceTermInFormulas(pm.pendingEffects, from, to)
	return nil
}
