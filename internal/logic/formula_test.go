package logic_test

import (
	"testing"

	"htnlearn/internal/logic"
)

func TestInterningIsPointerStable(t *testing.T) {
	arena := logic.NewArena()
	a1, err := arena.Intern("a", "")
	if err != nil {
		t.Fatalf("intern: %v", err)
	}
	a2, err := arena.Intern("a", "")
	if err != nil {
		t.Fatalf("intern: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("expected the same pointer for repeated interning of %q", "a")
	}
}

func TestInternTypingMismatch(t *testing.T) {
	arena := logic.NewArena()
	if _, err := arena.Intern("b1", "block"); err != nil {
		t.Fatalf("intern: %v", err)
	}
	if _, err := arena.Intern("b1", "table"); err == nil {
		t.Fatalf("expected a typing mismatch error")
	}
}

func TestApplyFormulaSubstitutesThroughConjunction(t *testing.T) {
	arena := logic.NewArena()
	x := arena.Variable("?x")
	a := arena.Constant("a")
	sub := logic.NewSubstitution()
	if err := sub.Insert(x, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	f := logic.MustConj(logic.NewPred("clear", x), logic.MustNeg(logic.NewPred("on-table", x)))
	g, err := logic.ApplyFormula(f, sub)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !logic.IsGround(g) {
		t.Fatalf("expected fully ground result, got %s", g.String())
	}
}

func TestFormulaEqualConjIsOrderInsensitive(t *testing.T) {
	arena := logic.NewArena()
	x, y := arena.Variable("?x"), arena.Variable("?y")
	f1 := logic.MustConj(logic.NewPred("on", x, y), logic.NewPred("clear", x))
	f2 := logic.MustConj(logic.NewPred("clear", x), logic.NewPred("on", x, y))
	if !logic.FormulaEqual(f1, f2) {
		t.Fatalf("expected permuted conjunctions to compare equal")
	}
}

func TestImpliesRequiresEveryConsequentLiteral(t *testing.T) {
	arena := logic.NewArena()
	x := arena.Variable("?x")
	broad := logic.MustConj(logic.NewPred("clear", x))
	narrow := logic.MustConj(logic.NewPred("clear", x), logic.NewPred("on-table", x))

	if logic.Implies(broad, narrow) {
		t.Fatalf("a weaker formula must not imply a stronger one")
	}
	if !logic.Implies(narrow, broad) {
		t.Fatalf("a stronger formula must imply a weaker one it contains")
	}
}

func TestReplaceTermInFormulaRewritesNestedNegation(t *testing.T) {
	arena := logic.NewArena()
	x, y := arena.Variable("?x"), arena.Variable("?y")
	f := logic.MustConj(logic.MustNeg(logic.NewPred("on", x, y)))
	rewritten := logic.ReplaceTermInFormula(f, x, y)
	vars := logic.Variables(rewritten)
	if len(vars) != 1 || vars[0] != y {
		t.Fatalf("expected only ?y to remain after replacing ?x with ?y, got %v", vars)
	}
}
