package htnplanner_test

import (
	"testing"

	"htnlearn/internal/domain"
	"htnlearn/internal/htnplanner"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// buildMoveDomain mirrors internal/learn's blocksworld fixture: two
// primitive operators and one compound "move" method built from them, so
// the reference planner has something non-trivial to decompose.
func buildMoveDomain(t *testing.T) (*domain.Domain, *logic.Arena) {
	t.Helper()
	arena := logic.NewArena()
	x, y := arena.Variable("?x"), arena.Variable("?y")

	unstack := &schema.Operator{
		Name:   "!unstack",
		Params: []*logic.Term{x, y},
		Preconditions: logic.MustConj(
			logic.NewPred("on", x, y), logic.NewPred("clear", x), logic.NewPred("handempty"),
		),
		Effects: logic.MustConj(
			logic.NewPred("holding", x), logic.NewPred("clear", y),
			logic.MustNeg(logic.NewPred("on", x, y)), logic.MustNeg(logic.NewPred("handempty")),
		),
		Cost: 1,
	}
	stack := &schema.Operator{
		Name:          "!stack",
		Params:        []*logic.Term{x, y},
		Preconditions: logic.MustConj(logic.NewPred("holding", x), logic.NewPred("clear", y)),
		Effects: logic.MustConj(
			logic.NewPred("on", x, y), logic.NewPred("clear", x), logic.NewPred("handempty"),
			logic.MustNeg(logic.NewPred("holding", x)), logic.MustNeg(logic.NewPred("clear", y)),
		),
		Cost: 1,
	}

	b, from, to := arena.Variable("?b"), arena.Variable("?from"), arena.Variable("?to")
	move := schema.NewHtnMethod(
		logic.NewPred("move", b, from, to),
		logic.MustConj(logic.NewPred("on", b, from), logic.NewPred("clear", b), logic.NewPred("clear", to), logic.NewPred("handempty")),
		[]*logic.Pred{logic.NewPred("!unstack", b, from), logic.NewPred("!stack", b, to)},
	)

	d := domain.NewDomain("blocksworld")
	d.Operators = []*schema.Operator{unstack, stack}
	d.AddMethod(move)
	return d, arena
}

func TestSolveDecomposesCompoundTask(t *testing.T) {
	d, arena := buildMoveDomain(t)
	a, b, c := arena.Constant("a"), arena.Constant("b"), arena.Constant("c")

	init := state.New(0)
	for _, p := range []*logic.Pred{
		logic.NewPred("on", a, b), logic.NewPred("clear", a),
		logic.NewPred("clear", c), logic.NewPred("handempty"),
	} {
		if err := init.Add(p); err != nil {
			t.Fatalf("init.Add: %v", err)
		}
	}

	task := logic.NewPred("move", a, b, c)
	sol, err := htnplanner.Solve(d, init, []*logic.Pred{task}, htnplanner.Options{MaxDecompositions: 50})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Applied) != 2 {
		t.Fatalf("expected 2 primitive steps, got %d", len(sol.Applied))
	}
	if len(sol.Forest) != 1 {
		t.Fatalf("expected one top-level decomposition tree, got %d", len(sol.Forest))
	}
	root := sol.Forest[0]
	if root.IsLeaf || len(root.Children) != 2 {
		t.Fatalf("expected the move method to expand into 2 leaf children, got %+v", root)
	}
}

func TestSolveFailsWhenNoMethodApplies(t *testing.T) {
	d, arena := buildMoveDomain(t)
	a, b, c := arena.Constant("a"), arena.Constant("b"), arena.Constant("c")

	init := state.New(0)
	// Missing clear(a)/clear(c)/handempty: the move method's precondition
	// can never be satisfied.
	if err := init.Add(logic.NewPred("on", a, b)); err != nil {
		t.Fatalf("init.Add: %v", err)
	}

	task := logic.NewPred("move", a, b, c)
	if _, err := htnplanner.Solve(d, init, []*logic.Pred{task}, htnplanner.Options{MaxDecompositions: 10}); err == nil {
		t.Fatalf("expected Solve to fail when no decomposition satisfies the task stack")
	}
}
