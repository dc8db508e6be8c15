package state_test

import (
	"testing"

	"htnlearn/internal/logic"
	"htnlearn/internal/state"
)

func buildSimpleState(t *testing.T, arena *logic.Arena) *state.State {
	t.Helper()
	a, b, c := arena.Constant("a"), arena.Constant("b"), arena.Constant("c")
	s := state.New(0)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("state.Add: %v", err)
		}
	}
	must(s.Add(logic.NewPred("on", a, b)))
	must(s.Add(logic.NewPred("clear", a)))
	must(s.Add(logic.NewPred("clear", c)))
	must(s.Add(logic.NewPred("handempty")))
	return s
}

func TestGetInstantiationsFindsAllGroundings(t *testing.T) {
	arena := logic.NewArena()
	s := buildSimpleState(t, arena)
	x, y := arena.Variable("?x"), arena.Variable("?y")

	conj := logic.MustConj(logic.NewPred("on", x, y))
	insts, err := state.GetInstantiations(conj, logic.NewSubstitution(), []*logic.Term{x, y}, s)
	if err != nil {
		t.Fatalf("GetInstantiations: %v", err)
	}
	if len(insts) != 1 {
		t.Fatalf("expected exactly one instantiation of on(?x,?y), got %d", len(insts))
	}
	xb, ok := insts[0].Lookup(x)
	if !ok || xb != arena.Constant("a") {
		t.Fatalf("expected ?x bound to a")
	}
}

func TestGetInstantiationsRejectsUnsatisfiablePrecondition(t *testing.T) {
	arena := logic.NewArena()
	s := buildSimpleState(t, arena)
	x := arena.Variable("?x")

	conj := logic.MustConj(logic.NewPred("on-table", x))
	insts, err := state.GetInstantiations(conj, logic.NewSubstitution(), []*logic.Term{x}, s)
	if err != nil {
		t.Fatalf("GetInstantiations: %v", err)
	}
	if len(insts) != 0 {
		t.Fatalf("expected no instantiations for an unsatisfiable predicate, got %d", len(insts))
	}
}

func TestNextStateAppliesEffectsAndChecksPreconditions(t *testing.T) {
	arena := logic.NewArena()
	s := buildSimpleState(t, arena)
	x, y := arena.Variable("?x"), arena.Variable("?y")
	a, b := arena.Constant("a"), arena.Constant("b")

	pre := logic.MustConj(logic.NewPred("on", x, y), logic.NewPred("clear", x))
	eff := logic.MustConj(logic.NewPred("holding", x), logic.MustNeg(logic.NewPred("on", x, y)))

	sigma := logic.NewSubstitution()
	if err := sigma.Insert(x, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := sigma.Insert(y, b); err != nil {
		t.Fatalf("insert: %v", err)
	}

	next, err := state.NextState(pre, eff, sigma, s, 1)
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}
	if !next.Has(logic.NewPred("holding", a)) {
		t.Fatalf("expected holding(a) to hold after the effect")
	}
	if next.Has(logic.NewPred("on", a, b)) {
		t.Fatalf("expected on(a,b) to be removed after the effect")
	}
	if next.Index() != 1 {
		t.Fatalf("expected the successor's index to be 1, got %d", next.Index())
	}
}

func TestNextStateRejectsUnsatisfiedPrecondition(t *testing.T) {
	arena := logic.NewArena()
	s := buildSimpleState(t, arena)
	x := arena.Variable("?x")
	c := arena.Constant("c")

	pre := logic.MustConj(logic.NewPred("holding", x))
	eff := logic.MustConj(logic.NewPred("clear", x))
	sigma := logic.NewSubstitution()
	if err := sigma.Insert(x, c); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := state.NextState(pre, eff, sigma, s, 1); err == nil {
		t.Fatalf("expected NextState to reject an operator whose preconditions do not hold")
	}
}
