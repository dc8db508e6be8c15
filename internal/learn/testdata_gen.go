//go:build htnfuzz
// +build htnfuzz

package learn

import (
	"fmt"
	"math/rand"

	"htnlearn/internal/domain"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// BlocksworldOperators builds the four-operator blocksworld primitive set
// (pick-up/put-down/stack/unstack) over arena, the generalization of the
// two-operator (unstack/stack only) fixture the boundary scenarios use.
func BlocksworldOperators(arena *logic.Arena) []*schema.Operator {
	x, y := arena.Variable("?x"), arena.Variable("?y")

	pickUp := &schema.Operator{
		Name:   "!pick-up",
		Params: []*logic.Term{x},
		Preconditions: logic.MustConj(
			logic.NewPred("clear", x), logic.NewPred("ontable", x), logic.NewPred("handempty"),
		),
		Effects: logic.MustConj(
			logic.NewPred("holding", x),
			logic.MustNeg(logic.NewPred("ontable", x)),
			logic.MustNeg(logic.NewPred("clear", x)),
			logic.MustNeg(logic.NewPred("handempty")),
		),
		Cost: 1,
	}
	putDown := &schema.Operator{
		Name:          "!put-down",
		Params:        []*logic.Term{x},
		Preconditions: logic.MustConj(logic.NewPred("holding", x)),
		Effects: logic.MustConj(
			logic.NewPred("ontable", x), logic.NewPred("clear", x), logic.NewPred("handempty"),
			logic.MustNeg(logic.NewPred("holding", x)),
		),
		Cost: 1,
	}
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
	return []*schema.Operator{pickUp, putDown, unstack, stack}
}

// RandomBlocksworldInit builds a random but consistent initial state over
// numBlocks named blocks, each either on the table or stacked on another
// (no cycles), with the hand empty.
func RandomBlocksworldInit(arena *logic.Arena, rng *rand.Rand, numBlocks int) (*state.State, []*logic.Term) {
	blocks := make([]*logic.Term, numBlocks)
	for i := range blocks {
		blocks[i] = arena.Constant(fmt.Sprintf("b%d", i))
	}

	on := make(map[int]int, numBlocks) // child -> parent index, or -1 for table
	hasChild := make(map[int]bool, numBlocks)
	for i := range blocks {
		parent := -1
		// 50% chance of stacking on an earlier, not-yet-covered block,
		// which keeps the generated towers acyclic by construction.
		if i > 0 && rng.Intn(2) == 0 {
			candidates := make([]int, 0, i)
			for j := 0; j < i; j++ {
				if !hasChild[j] {
					candidates = append(candidates, j)
				}
			}
			if len(candidates) > 0 {
				parent = candidates[rng.Intn(len(candidates))]
				hasChild[parent] = true
			}
		}
		on[i] = parent
	}

	s := state.New(0)
	for i, b := range blocks {
		if on[i] == -1 {
			_ = s.Add(logic.NewPred("ontable", b))
		} else {
			_ = s.Add(logic.NewPred("on", b, blocks[on[i]]))
		}
		if !hasChild[i] {
			_ = s.Add(logic.NewPred("clear", b))
		}
	}
	_ = s.Add(logic.NewPred("handempty"))
	return s, blocks
}

// RandomBlocksworldPlan executes steps random legal primitive actions
// starting from a fresh random initial state over numBlocks blocks,
// stopping early at a dead end, and returns the resulting ground plan
// trace together with the operators it was built from.
func RandomBlocksworldPlan(arena *logic.Arena, rng *rand.Rand, numBlocks, steps int) (*plan.Plan, []*schema.Operator) {
	ops := BlocksworldOperators(arena)
	cur, blocks := RandomBlocksworldInit(arena, rng, numBlocks)

	p := &plan.Plan{States: []*state.State{cur}}
	for i := 0; i < steps; i++ {
		applied := false
		order := rng.Perm(len(ops))
		for _, oi := range order {
			op := ops[oi]
			sub, ok := randomGroundingFor(rng, op, blocks, cur)
			if !ok {
				continue
			}
			next, err := state.NextState(op.Preconditions, op.Effects, sub, cur, len(p.States))
			if err != nil {
				continue
			}
			p.Steps = append(p.Steps, plan.Step{Operator: op, Sub: sub})
			p.States = append(p.States, next)
			cur = next
			applied = true
			break
		}
		if !applied {
			break // dead end: no operator's arguments admit a legal grounding
		}
	}
	return p, ops
}

// randomGroundingFor tries a handful of random variable-to-block bindings
// for op and returns the first one whose preconditions hold in s.
func randomGroundingFor(rng *rand.Rand, op *schema.Operator, blocks []*logic.Term, s *state.State) (*logic.Substitution, bool) {
	const attempts = 8
	for try := 0; try < attempts; try++ {
		sub := logic.NewSubstitution()
		for _, param := range op.Params {
			b := blocks[rng.Intn(len(blocks))]
			if err := sub.Insert(param, b); err != nil {
				return nil, false
			}
		}
		instPre, err := logic.ApplyFormula(op.Preconditions, sub)
		if err != nil {
			continue
		}
		if state.IsConsistent(instPre, s) {
			return sub, true
		}
	}
	return nil, false
}

// MoveTaskDescriptor returns the single-step "move block from one support
// to another" task descriptor the boundary scenarios and the fuzz suite
// both train against.
func MoveTaskDescriptor(arena *logic.Arena) *schema.HtnTaskDescr {
	b, from, to := arena.Variable("?b"), arena.Variable("?from"), arena.Variable("?to")
	return &schema.HtnTaskDescr{
		Head: logic.NewPred("move", b, from, to),
		Preconditions: logic.MustConj(
			logic.NewPred("on", b, from), logic.NewPred("clear", b),
			logic.NewPred("clear", to), logic.NewPred("handempty"),
		),
		Effects: logic.MustConj(
			logic.NewPred("on", b, to), logic.NewPred("clear", from), logic.NewPred("handempty"),
			logic.MustNeg(logic.NewPred("on", b, from)),
		),
	}
}

// NewBlocksworldDomain returns an empty domain pre-populated with the
// four-operator blocksworld primitive set, ready for a Driver to learn
// methods into.
func NewBlocksworldDomain(arena *logic.Arena, name string) *domain.Domain {
	d := domain.NewDomain(name)
	d.Operators = BlocksworldOperators(arena)
	return d
}
