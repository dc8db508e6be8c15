//go:build htnfuzz
// +build htnfuzz

package learn_test

import (
	"math/rand"
	"testing"

	"htnlearn/internal/domain"
	"htnlearn/internal/learn"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// fixedUnstackStackPlan builds the "unstack a from b, stack a onto c" plan
// trace from an already-built blocksworld operator set, the same scenario
// internal/learn's boundary-scenario fixture uses.
func fixedUnstackStackPlan(arena *logic.Arena, ops []*schema.Operator, a, b, c *logic.Term) (*plan.Plan, error) {
	var unstack, stack *schema.Operator
	for _, op := range ops {
		switch op.Name {
		case "!unstack":
			unstack = op
		case "!stack":
			stack = op
		}
	}

	init := state.New(0)
	_ = init.Add(logic.NewPred("on", a, b))
	_ = init.Add(logic.NewPred("clear", a))
	_ = init.Add(logic.NewPred("clear", c))
	_ = init.Add(logic.NewPred("handempty"))

	sub0 := logic.NewSubstitution()
	_ = sub0.Insert(unstack.Params[0], a)
	_ = sub0.Insert(unstack.Params[1], b)
	s1, err := state.NextState(unstack.Preconditions, unstack.Effects, sub0, init, 1)
	if err != nil {
		return nil, err
	}

	sub1 := logic.NewSubstitution()
	_ = sub1.Insert(stack.Params[0], a)
	_ = sub1.Insert(stack.Params[1], c)
	s2, err := state.NextState(stack.Preconditions, stack.Effects, sub1, s1, 2)
	if err != nil {
		return nil, err
	}

	return &plan.Plan{
		Steps:  []plan.Step{{Operator: unstack, Sub: sub0}, {Operator: stack, Sub: sub1}},
		States: []*state.State{init, s1, s2},
	}, nil
}

// TestDriverFuzzRandomBlocksworldPlans throws a large number of randomly
// generated, legal blocksworld plan traces at Driver.Run with every
// soundness-relevant option switched on, and asserts only the invariants
// that must hold for every run regardless of what gets learned: Run
// returns no error, and every method it learns is non-trivial, has the
// seeded task's head and has at least one subtask.
func TestDriverFuzzRandomBlocksworldPlans(t *testing.T) {
	const trials = 200
	rng := rand.New(rand.NewSource(1))

	// A fixed two-step unstack-then-stack plan is always learnable (it's
	// the same shape the boundary scenarios use), so the "something gets
	// learned" assertion below doesn't depend on the random trials
	// happening to produce a matching pattern.
	var totalLearned int
	{
		arena := logic.NewArena()
		d := learn.NewBlocksworldDomain(arena, "fuzz-baseline")
		a, b, c := arena.Constant("a"), arena.Constant("b"), arena.Constant("c")
		p, err := fixedUnstackStackPlan(arena, d.Operators, a, b, c)
		if err != nil {
			t.Fatalf("baseline plan: failed to build fixture: %v", err)
		}
		task := learn.MoveTaskDescriptor(arena)
		dr := learn.NewDriver(arena, d, learn.Options{SoundnessCheck: true})
		_, learned, err := dr.Run(p, []*schema.HtnTaskDescr{task})
		if err != nil {
			t.Fatalf("baseline plan: Run returned an error: %v", err)
		}
		totalLearned += len(learned)
	}

	for trial := 0; trial < trials; trial++ {
		arena := logic.NewArena()
		numBlocks := 3 + rng.Intn(3) // 3..5
		steps := 2 + rng.Intn(6)     // 2..7

		p, ops := learn.RandomBlocksworldPlan(arena, rng, numBlocks, steps)
		if len(p.Steps) < 2 {
			continue // dead-ended too early to exercise regression meaningfully
		}

		d := domain.NewDomain("fuzz-blocksworld")
		d.Operators = ops
		task := learn.MoveTaskDescriptor(arena)

		opts := learn.Options{
			SoundnessCheck: true,
			VarLinkage:     true,
			DropUnneeded:   true,
		}
		dr := learn.NewDriver(arena, d, opts)
		_, learned, err := dr.Run(p, []*schema.HtnTaskDescr{task})
		if err != nil {
			t.Fatalf("trial %d (blocks=%d steps=%d): Run returned an error: %v", trial, numBlocks, len(p.Steps), err)
		}

		for _, m := range learned {
			if m.IsTrivial() {
				t.Fatalf("trial %d: driver emitted a trivial method despite the trivial-method filter", trial)
			}
			if m.Head.Symbol != task.Head.Symbol {
				t.Fatalf("trial %d: learned method head %s does not match the seeded task %s", trial, m.Head.Symbol, task.Head.Symbol)
			}
			if len(m.Subtasks) == 0 {
				t.Fatalf("trial %d: learned method %s has no subtasks", trial, m.Head.String())
			}
		}
		totalLearned += len(learned)
	}

	if totalLearned == 0 {
		t.Fatalf("expected at least one method learned across %d random trials", trials)
	}
}
