package learn_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"htnlearn/internal/domain"
	"htnlearn/internal/learn"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// blocksworldFixture builds the two-step "unstack a from b, then stack a
// onto c" plan trace used by several boundary scenarios below, plus the
// "move" task descriptor a single learned method should explain it with.
type blocksworldFixture struct {
	arena *logic.Arena
	dom   *domain.Domain
	plan  *plan.Plan
	task  *schema.HtnTaskDescr
}

func newBlocksworldFixture(t *testing.T) *blocksworldFixture {
	t.Helper()
	arena := logic.NewArena()
	x, y := arena.Variable("?x"), arena.Variable("?y")

	unstack := &schema.Operator{
		Name:   "!unstack",
		Params: []*logic.Term{x, y},
		Preconditions: logic.MustConj(
			logic.NewPred("on", x, y),
			logic.NewPred("clear", x),
			logic.NewPred("handempty"),
		),
		Effects: logic.MustConj(
			logic.NewPred("holding", x),
			logic.NewPred("clear", y),
			logic.MustNeg(logic.NewPred("on", x, y)),
			logic.MustNeg(logic.NewPred("handempty")),
		),
		Cost: 1,
	}
	stack := &schema.Operator{
		Name:   "!stack",
		Params: []*logic.Term{x, y},
		Preconditions: logic.MustConj(
			logic.NewPred("holding", x),
			logic.NewPred("clear", y),
		),
		Effects: logic.MustConj(
			logic.NewPred("on", x, y),
			logic.NewPred("clear", x),
			logic.NewPred("handempty"),
			logic.MustNeg(logic.NewPred("holding", x)),
			logic.MustNeg(logic.NewPred("clear", y)),
		),
		Cost: 1,
	}

	a, b, c := arena.Constant("a"), arena.Constant("b"), arena.Constant("c")

	init := state.New(0)
	require.NoError(t, init.Add(logic.NewPred("on", a, b)))
	require.NoError(t, init.Add(logic.NewPred("clear", a)))
	require.NoError(t, init.Add(logic.NewPred("clear", c)))
	require.NoError(t, init.Add(logic.NewPred("handempty")))

	sub0 := logic.NewSubstitution()
	require.NoError(t, sub0.Insert(x, a))
	require.NoError(t, sub0.Insert(y, b))
	s1, err := state.NextState(unstack.Preconditions, unstack.Effects, sub0, init, 1)
	require.NoError(t, err)

	sub1 := logic.NewSubstitution()
	require.NoError(t, sub1.Insert(x, a))
	require.NoError(t, sub1.Insert(y, c))
	s2, err := state.NextState(stack.Preconditions, stack.Effects, sub1, s1, 2)
	require.NoError(t, err)

	p := &plan.Plan{
		Steps:  []plan.Step{{Operator: unstack, Sub: sub0}, {Operator: stack, Sub: sub1}},
		States: []*state.State{init, s1, s2},
	}

	tb, tfrom, tto := arena.Variable("?b"), arena.Variable("?from"), arena.Variable("?to")
	task := &schema.HtnTaskDescr{
		Head: logic.NewPred("move", tb, tfrom, tto),
		Preconditions: logic.MustConj(
			logic.NewPred("on", tb, tfrom),
			logic.NewPred("clear", tb),
			logic.NewPred("clear", tto),
			logic.NewPred("handempty"),
		),
		Effects: logic.MustConj(
			logic.NewPred("on", tb, tto),
			logic.NewPred("clear", tfrom),
			logic.NewPred("handempty"),
			logic.MustNeg(logic.NewPred("on", tb, tfrom)),
		),
	}

	dom := domain.NewDomain("blocksworld")
	dom.Operators = []*schema.Operator{unstack, stack}

	return &blocksworldFixture{arena: arena, dom: dom, plan: p, task: task}
}

// fromBSeed returns the seed binding ?from to b. Seed also yields a
// ?from = a instance (clear(a) and ¬on(a,a) both hold after the stack
// step), but that instance's precondition on(a,a) never holds, so it
// cannot regress to the initial state.
func fromBSeed(t *testing.T, f *blocksworldFixture, pms []*learn.PartialMethod) *learn.PartialMethod {
	t.Helper()
	b := f.arena.Constant("b")
	for _, pm := range pms {
		fresh, ok := pm.TaskSub.Lookup(f.task.Head.Args[1])
		if !ok {
			continue
		}
		if g, ok := pm.MasterSub.Lookup(fresh); ok && g == b {
			return pm
		}
	}
	t.Fatalf("no seed binds ?from to b")
	return nil
}

// S1: a plan decomposing into exactly two subtasks — unstack then stack,
// in forward order — is learned as a single "move" method.
func TestBoundaryS1SingleMoveMethodEmission(t *testing.T) {
	f := newBlocksworldFixture(t)
	pms, err := learn.Seed(f.arena, f.task, f.plan, 2)
	require.NoError(t, err)
	require.NotEmpty(t, pms)

	pm := fromBSeed(t, f, pms)
	ap := plan.New(f.plan)
	ok, err := pm.Regress(ap, f.plan, learn.Options{})
	require.NoError(t, err)
	require.True(t, ok, "expected regression to reach the plan's initial state")

	m := pm.Emit()
	require.Len(t, m.Subtasks, 2)
	require.Equal(t, "!unstack", m.Subtasks[0].Symbol)
	require.Equal(t, "!stack", m.Subtasks[1].Symbol)
}

// S3: the block variable bound by both subtasks (the thing being moved)
// must be discovered as the same variable identity in the emitted
// method, not two independently-named parameters that merely happen to
// be bound to the same constant at learning time.
func TestBoundaryS3VariableMerging(t *testing.T) {
	f := newBlocksworldFixture(t)
	pms, err := learn.Seed(f.arena, f.task, f.plan, 2)
	require.NoError(t, err)
	require.NotEmpty(t, pms)

	pm := fromBSeed(t, f, pms)
	ap := plan.New(f.plan)
	ok, err := pm.Regress(ap, f.plan, learn.Options{})
	require.NoError(t, err)
	require.True(t, ok)

	m := pm.Emit()
	require.Len(t, m.Head.Args, 3)
	require.Len(t, m.Subtasks[0].Args, 2) // !unstack(?b, ?from)
	require.Len(t, m.Subtasks[1].Args, 2) // !stack(?b, ?to)

	require.Same(t, m.Head.Args[0], m.Subtasks[0].Args[0], "the moved block must be the same variable in both subtasks")
	require.Same(t, m.Head.Args[0], m.Subtasks[1].Args[0], "the moved block must be the same variable in both subtasks")
	require.Same(t, m.Head.Args[1], m.Subtasks[0].Args[1], "?from must be unstack's second argument")
	require.Same(t, m.Head.Args[2], m.Subtasks[1].Args[1], "?to must be stack's second argument")
}

// S4: replaying a learned method's own subtasks against the state it was
// learned from must reach the task descriptor's declared effects.
func TestBoundaryS4SoundnessVerification(t *testing.T) {
	f := newBlocksworldFixture(t)
	pms, err := learn.Seed(f.arena, f.task, f.plan, 2)
	require.NoError(t, err)
	require.NotEmpty(t, pms)

	pm := fromBSeed(t, f, pms)
	ap := plan.New(f.plan)
	ok, err := pm.Regress(ap, f.plan, learn.Options{})
	require.NoError(t, err)
	require.True(t, ok)

	m := pm.Emit()
	sound, _, err := learn.VerifyMethod(f.dom, m, pm.MasterSub, f.plan.States[pm.InitStateIndex], pm.TaskDescr)
	require.NoError(t, err)
	require.True(t, sound, "replaying the learned method's subtasks must reproduce its claimed effects")
}

// S5: a domain with two numbered non-deterministic operator outcomes
// yields one checker method per outcome, each guarded by that outcome's
// own precondition, under the shared base task name.
func TestBoundaryS5NDCheckerGeneration(t *testing.T) {
	arena := logic.NewArena()
	c := arena.Variable("?c")

	flip01 := &schema.Operator{
		Name:          "!flip-01",
		Params:        []*logic.Term{c},
		Preconditions: logic.MustConj(logic.NewPred("heads-up", c)),
		Effects:       logic.MustConj(logic.NewPred("landed", c)),
	}
	flip02 := &schema.Operator{
		Name:          "!flip-02",
		Params:        []*logic.Term{c},
		Preconditions: logic.MustConj(logic.NewPred("tails-up", c)),
		Effects:       logic.MustConj(logic.NewPred("landed", c)),
	}
	d := domain.NewDomain("coin")
	d.Operators = []*schema.Operator{flip01, flip02}

	checkers := learn.GenerateNDCheckers(arena, d)
	require.Len(t, checkers, 2)

	seenSubtasks := map[string]bool{}
	for _, m := range checkers {
		require.Equal(t, "!flip", m.Head.Symbol)
		require.Len(t, m.Subtasks, 1)
		seenSubtasks[m.Subtasks[0].Symbol] = true
	}
	require.True(t, seenSubtasks["!flip-01"])
	require.True(t, seenSubtasks["!flip-02"])
}

// S2: a redundant, more specific method is collapsed away by subsumption
// reconciliation when a more general one already covers its task; a more
// general method replaces a more specific one already present.
func TestBoundaryS2SubsumptionCollapse(t *testing.T) {
	arena := logic.NewArena()
	general := moveMethodFixture(arena, false)
	specific := moveMethodFixture(arena, true)

	d := domain.NewDomain("blocksworld")
	require.True(t, learn.ReconcileWithDomain(arena, d, general))
	d.AddMethod(general) // ReconcileWithDomain decides; adding a kept method is the caller's step
	require.False(t, learn.ReconcileWithDomain(arena, d, specific),
		"a method already subsumed by an existing one must be dropped")
	require.Len(t, d.Methods, 1)

	d2 := domain.NewDomain("blocksworld")
	require.True(t, learn.ReconcileWithDomain(arena, d2, specific))
	d2.AddMethod(specific)
	require.True(t, learn.ReconcileWithDomain(arena, d2, general),
		"a more general method must displace a specific one it subsumes")
	d2.AddMethod(general)
	require.Len(t, d2.Methods, 1)
	require.Same(t, general, d2.Methods[0])
}

// S6: reordering a method's subtasks must prevent subsumption in either
// direction, even when the heads, preconditions and subtask contents are
// otherwise identical.
func TestBoundaryS6SubsumptionFalseOnSubtaskOrder(t *testing.T) {
	arena := logic.NewArena()
	b := arena.Variable("?b")
	head := logic.NewPred("prep", b)
	pre := logic.MustConj(logic.NewPred("clear", b))

	forward := schema.NewHtnMethod(head, pre, []*logic.Pred{
		logic.NewPred("!wash", b), logic.NewPred("!dry", b),
	})
	reversed := schema.NewHtnMethod(head, pre, []*logic.Pred{
		logic.NewPred("!dry", b), logic.NewPred("!wash", b),
	})

	require.False(t, learn.Subsumes(arena, forward, reversed))
	require.False(t, learn.Subsumes(arena, reversed, forward))
}

// moveMethodFixture builds a "move" method by hand: narrow == true adds
// an extra handempty precondition, making it strictly more specific than
// the general ("narrow == false") version.
func moveMethodFixture(arena *logic.Arena, narrow bool) *schema.HtnMethod {
	b, from, to := arena.FreshAuto(), arena.FreshAuto(), arena.FreshAuto()
	head := logic.NewPred("move", b, from, to)
	children := []logic.Formula{logic.NewPred("clear", b), logic.NewPred("on", b, from)}
	if narrow {
		children = append(children, logic.NewPred("handempty"))
	}
	pre := &logic.Conj{Children: children}
	subtasks := []*logic.Pred{logic.NewPred("!unstack", b, from), logic.NewPred("!stack", b, to)}
	return schema.NewHtnMethod(head, pre, subtasks)
}
