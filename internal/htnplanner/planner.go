// Package htnplanner implements the reference decomposition planner of
// spec.md §4.9 (C12). It exists to define the semantic correctness of
// learned methods — internal/learn's soundness verifier (S4) and the
// subsumption reconciler (C10) both reason about "would the planner
// accept this decomposition", so a real search, not just a plan replay,
// lives here. It is deliberately modest: single-threaded, no
// suspension, bounded by a decomposition counter, per spec.md §5.
package htnplanner

import (
	"math/rand"
	"sort"
	"strings"

	"htnlearn/internal/domain"
	"htnlearn/internal/herr"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// Options configures the search, per spec.md §4.9's mode list.
type Options struct {
	BreadthFirst      bool // DFS (false, default) or BFS (true)
	RandomMethodOrder bool // method ordering: precondition-count ascending (default) or random
	MaxDecompositions int  // 0 means unbounded
	LoopDetection     bool // maintain a visited set keyed by full solution equivalence
	KeepLevel         int  // discard visited entries deeper than this many levels behind the frontier
	Rand              *rand.Rand
}

// frame is one entry of a partial solution's task stack: the ground task
// literal and the decomposition-forest node its own resolution should be
// attached to (nil meaning a new top-level tree).
type frame struct {
	task     *logic.Pred
	attachTo *domain.DecompPart
}

// node is one partial solution in the search frontier.
type node struct {
	state   *state.State
	frames  []frame
	forest  []*domain.DecompPart
	applied []domain.AppliedStep
	decomps int
}

// Solve searches for a ground decomposition of tasks from init, per
// spec.md §4.9: DFS by default (LIFO frontier), BFS on request (FIFO),
// terminating at the first frontier node whose task stack is empty.
func Solve(d *domain.Domain, init *state.State, tasks []*logic.Pred, opts Options) (*domain.HtnSolution, error) {
	root := &node{state: init, forest: nil}
	for i := len(tasks) - 1; i >= 0; i-- {
		root.frames = append([]frame{{task: tasks[i]}}, root.frames...)
	}

	frontier := []*node{root}
	visited := map[string]int{}
	truncated := false

	for len(frontier) > 0 {
		var cur *node
		if opts.BreadthFirst {
			cur = frontier[0]
			frontier = frontier[1:]
		} else {
			cur = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
		}

		if len(cur.frames) == 0 {
			return buildSolution(d, init, cur), nil
		}

		if opts.MaxDecompositions > 0 && cur.decomps >= opts.MaxDecompositions {
			truncated = true
			continue
		}

		if opts.LoopDetection {
			key := visitedKey(cur)
			if depth, seen := visited[key]; seen && depth <= cur.decomps {
				continue
			}
			visited[key] = cur.decomps
			if opts.KeepLevel > 0 {
				pruneVisited(visited, cur.decomps, opts.KeepLevel)
			}
		}

		top := cur.frames[0]
		rest := cur.frames[1:]

		if schema.IsPrimitive(top.task.Symbol) {
			successors, err := expandPrimitive(d, cur, top, rest)
			if err != nil {
				return nil, err
			}
			frontier = append(frontier, successors...)
			continue
		}

		successors, err := expandComposite(d, cur, top, rest, opts)
		if err != nil {
			return nil, err
		}
		frontier = append(frontier, successors...)
	}

	if truncated {
		return nil, herr.New(herr.DecompositionLimitExceeded, "htnplanner.Solve", "exhausted the decomposition budget before finding a solution")
	}
	return nil, herr.New(herr.MethodNotApplicable, "htnplanner.Solve", "no decomposition satisfies the task stack")
}

func expandPrimitive(d *domain.Domain, cur *node, top frame, rest []frame) ([]*node, error) {
	op := d.FindOperator(top.task.Symbol)
	if op == nil {
		return nil, herr.New(herr.OperatorNotApplicable, "htnplanner.expandPrimitive", "no operator named "+top.task.Symbol)
	}
	if len(op.Params) != len(top.task.Args) {
		return nil, herr.New(herr.IndexOutOfBounds, "htnplanner.expandPrimitive", "operator/task arity mismatch for "+top.task.Symbol)
	}
	opIndex := -1
	for i, o := range d.Operators {
		if o == op {
			opIndex = i
			break
		}
	}

	sigma0 := logic.NewSubstitution()
	for i, p := range op.Params {
		if err := sigma0.Insert(p, top.task.Args[i]); err != nil {
			return nil, err
		}
	}

	sigmas, err := state.GetInstantiations(op.Preconditions, sigma0, op.Params, cur.state)
	if err != nil {
		return nil, err
	}

	var out []*node
	for _, sigma := range sigmas {
		next, err := state.NextState(op.Preconditions, op.Effects, sigma, cur.state, cur.state.Index()+1)
		if err != nil {
			continue
		}
		leaf := &domain.DecompPart{GroundHead: top.task, IsLeaf: true}
		forest := attach(cur.forest, top.attachTo, leaf)

		succ := &node{
			state:   next,
			frames:  rest,
			forest:  forest,
			applied: append(append([]domain.AppliedStep{}, cur.applied...), domain.AppliedStep{OperatorIndex: opIndex, Sub: sigma}),
			decomps: cur.decomps + 1,
		}
		out = append(out, succ)
	}
	return out, nil
}

func expandComposite(d *domain.Domain, cur *node, top frame, rest []frame, opts Options) ([]*node, error) {
	candidates := orderedMethods(d.MethodsForTask(top.task.Symbol), opts)

	var out []*node
	for _, m := range candidates {
		if len(m.Head.Args) != len(top.task.Args) {
			continue
		}
		sigma0 := logic.NewSubstitution()
		ok := true
		for i, a := range m.Head.Args {
			if err := sigma0.Insert(a, top.task.Args[i]); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		sigmas, err := state.GetInstantiations(m.Preconditions, sigma0, m.Vars, cur.state)
		if err != nil {
			return nil, err
		}

		for _, sigma := range sigmas {
			internal := &domain.DecompPart{MethodID: m.ID, GroundHead: top.task}
			forest := attach(cur.forest, top.attachTo, internal)

			var newFrames []frame
			for i := len(m.Subtasks) - 1; i >= 0; i-- {
				ground, err := logic.ApplyFormula(m.Subtasks[i], sigma)
				if err != nil {
					return nil, err
				}
				newFrames = append(newFrames, frame{task: ground.(*logic.Pred), attachTo: internal})
			}
			// Subtasks were appended in reverse; reverse again so the
			// first subtask ends up at index 0 (the new top of stack).
			for i, j := 0, len(newFrames)-1; i < j; i, j = i+1, j-1 {
				newFrames[i], newFrames[j] = newFrames[j], newFrames[i]
			}

			succ := &node{
				state:   cur.state,
				frames:  append(append([]frame{}, newFrames...), rest...),
				forest:  forest,
				applied: cur.applied,
				decomps: cur.decomps + 1,
			}
			out = append(out, succ)
		}
	}
	return out, nil
}

// attach returns forest with leaf appended either under attachTo's
// children (mutated in place, since DecompPart is held by pointer) or,
// if attachTo is nil, as a new top-level tree.
func attach(forest []*domain.DecompPart, attachTo, leaf *domain.DecompPart) []*domain.DecompPart {
	if attachTo == nil {
		return append(append([]*domain.DecompPart{}, forest...), leaf)
	}
	attachTo.Children = append(attachTo.Children, leaf)
	return forest
}

// orderedMethods sorts candidates by ascending precondition-literal
// count (spec.md §4.9 default), or shuffles them when RandomMethodOrder
// is set and a source is supplied.
func orderedMethods(methods []*schema.HtnMethod, opts Options) []*schema.HtnMethod {
	out := append([]*schema.HtnMethod{}, methods...)
	if opts.RandomMethodOrder && opts.Rand != nil {
		opts.Rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Preconditions.Children) < len(out[j].Preconditions.Children)
	})
	return out
}

// visitedKey encodes full-equivalence of a partial solution: its current
// state plus its outstanding ground task stack, per spec.md §4.9's loop
// detection description.
func visitedKey(n *node) string {
	var b strings.Builder
	b.WriteString(n.state.String())
	b.WriteByte('|')
	for _, f := range n.frames {
		b.WriteString(f.task.String())
		b.WriteByte(';')
	}
	return b.String()
}

// pruneVisited discards entries recorded more than keepLevel
// decompositions behind the current frontier, bounding the visited set's
// memory at the cost of occasionally revisiting a stale loop.
func pruneVisited(visited map[string]int, current, keepLevel int) {
	for k, depth := range visited {
		if current-depth > keepLevel {
			delete(visited, k)
		}
	}
}

func buildSolution(d *domain.Domain, init *state.State, n *node) *domain.HtnSolution {
	return &domain.HtnSolution{
		HtnProblem: domain.HtnProblem{
			Domain:       d,
			InitialState: init,
		},
		InitialStateForPrint: init,
		Applied:              n.applied,
		Decompositions:       n.decomps,
		Forest:               n.forest,
	}
}
