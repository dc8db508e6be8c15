package store

import (
	"testing"

	"htnlearn/internal/domain"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
)

// buildSampleDomain mirrors the "move" method shape used across this
// module's other fixtures, giving the wire round-trip something with a
// method, an operator and a q-value to exercise.
func buildSampleDomain(t *testing.T, arena *logic.Arena) *domain.Domain {
	t.Helper()
	x, y := arena.Variable("?x"), arena.Variable("?y")
	unstack := &schema.Operator{
		Name:          "!unstack",
		Params:        []*logic.Term{x, y},
		Preconditions: logic.MustConj(logic.NewPred("on", x, y), logic.NewPred("clear", x)),
		Effects:       logic.MustConj(logic.NewPred("holding", x), logic.MustNeg(logic.NewPred("on", x, y))),
		Cost:          1,
	}

	b, from, to := arena.Variable("?b"), arena.Variable("?from"), arena.Variable("?to")
	move := schema.NewHtnMethod(
		logic.NewPred("move", b, from, to),
		logic.MustConj(logic.NewPred("on", b, from), logic.NewPred("clear", b)),
		[]*logic.Pred{logic.NewPred("!unstack", b, from), logic.NewPred("!stack", b, to)},
	)
	move.ID = "0"
	move.UpdateQValue(3)
	move.UpdateQValue(5)

	d := domain.NewDomain("blocksworld")
	d.MethodIDs = true
	d.Operators = []*schema.Operator{unstack}
	d.AddMethod(move)
	return d
}

func TestDomainWireRoundTrip(t *testing.T) {
	arena := logic.NewArena()
	d := buildSampleDomain(t, arena)

	w := toWireDomain(d)

	arena2 := logic.NewArena()
	got, err := fromWireDomain(arena2, w)
	if err != nil {
		t.Fatalf("fromWireDomain: %v", err)
	}

	if got.Name != d.Name || len(got.Operators) != 1 || len(got.Methods) != 1 {
		t.Fatalf("round-tripped domain shape mismatch: %+v", got)
	}
	m := got.Methods[0]
	if m.Head.Symbol != "move" || len(m.Head.Args) != 3 {
		t.Fatalf("round-tripped method head mismatch: %s", m.Head.String())
	}
	if m.QCount != 2 || m.QValue != 4 {
		t.Fatalf("expected q-value rolling average 4 over 2 updates, got %v/%d", m.QValue, m.QCount)
	}
	if len(m.Subtasks) != 2 || m.Subtasks[0].Symbol != "!unstack" || m.Subtasks[1].Symbol != "!stack" {
		t.Fatalf("round-tripped subtasks mismatch: %+v", m.Subtasks)
	}
}

func TestFormulaSexprRoundTrip(t *testing.T) {
	arena := logic.NewArena()
	x, y := arena.Variable("?x"), arena.Variable("?y")
	f := logic.MustConj(
		logic.NewPred("on", x, y),
		logic.MustNeg(logic.NewPred("clear", y)),
		logic.NewEqu(x, x),
	)

	text := f.String()
	arena2 := logic.NewArena()
	parsed, err := logic.ParseConj(arena2, text)
	if err != nil {
		t.Fatalf("ParseConj: %v", err)
	}
	if len(parsed.Children) != 3 {
		t.Fatalf("expected 3 children, got %d: %s", len(parsed.Children), parsed.String())
	}
}
