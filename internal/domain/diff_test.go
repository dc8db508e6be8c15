package domain_test

import (
	"testing"

	"htnlearn/internal/domain"
	"htnlearn/internal/learn"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
)

func subsumesFn(arena *logic.Arena) func(m1, m2 *schema.HtnMethod) bool {
	return func(m1, m2 *schema.HtnMethod) bool { return learn.Subsumes(arena, m1, m2) }
}

func moveMethod(arena *logic.Arena) *schema.HtnMethod {
	b, from, to := arena.FreshAuto(), arena.FreshAuto(), arena.FreshAuto()
	head := logic.NewPred("move", b, from, to)
	pre := logic.MustConj(logic.NewPred("clear", b), logic.NewPred("on", b, from))
	subtasks := []*logic.Pred{logic.NewPred("!unstack", b, from), logic.NewPred("!stack", b, to)}
	return schema.NewHtnMethod(head, pre, subtasks)
}

func TestDiffIdenticalDomains(t *testing.T) {
	arena := logic.NewArena()
	d1 := domain.NewDomain("bw")
	d1.AddMethod(moveMethod(arena))
	d2 := domain.NewDomain("bw")
	d2.AddMethod(moveMethod(arena))

	report := d1.Diff(d2, subsumesFn(arena))
	if len(report.Identical) != 1 || len(report.Differing) != 0 {
		t.Fatalf("expected one identical task head, got %+v", report)
	}
}

func TestDiffOnlyInFirst(t *testing.T) {
	arena := logic.NewArena()
	d1 := domain.NewDomain("bw")
	d1.AddMethod(moveMethod(arena))
	d2 := domain.NewDomain("bw")

	report := d1.Diff(d2, subsumesFn(arena))
	if len(report.OnlyInFirst) != 1 || report.OnlyInFirst[0] != "move" {
		t.Fatalf("expected move only in first domain, got %+v", report)
	}
}

func TestDiffDiffering(t *testing.T) {
	arena := logic.NewArena()
	d1 := domain.NewDomain("bw")
	d1.AddMethod(moveMethod(arena))

	b, from, to := arena.FreshAuto(), arena.FreshAuto(), arena.FreshAuto()
	head := logic.NewPred("move", b, from, to)
	// Narrower precondition (requires handempty too): the general method
	// subsumes it but not the reverse, so the pair is not mutually
	// subsuming and the sets must read as "differing".
	pre := logic.MustConj(
		logic.NewPred("clear", b),
		logic.NewPred("on", b, from),
		logic.NewPred("handempty"),
	)
	subtasks := []*logic.Pred{logic.NewPred("!unstack", b, from), logic.NewPred("!stack", b, to)}
	narrower := schema.NewHtnMethod(head, pre, subtasks)

	d2 := domain.NewDomain("bw")
	d2.AddMethod(narrower)

	report := d1.Diff(d2, subsumesFn(arena))
	if len(report.Differing) != 1 {
		t.Fatalf("expected differing method for narrowed precondition, got %+v", report)
	}
}
