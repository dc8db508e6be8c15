// Package domain holds the container types of spec.md §3/§4.6 (C7):
// Domain (operators + methods), HtnProblem (domain + initial state +
// task stack) and HtnSolution (a problem plus the decomposition trace).
package domain

import (
	"strconv"

	"htnlearn/internal/herr"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// Domain owns a set of operators and learned/authored methods.
type Domain struct {
	Name       string
	Operators  []*schema.Operator
	Methods    []*schema.HtnMethod
	MethodIDs  bool // :method-ids requirement declared
	QValues    bool // :q-values requirement declared
	nextMethod int
}

// NewDomain returns an empty domain.
func NewDomain(name string) *Domain {
	return &Domain{Name: name}
}

// FindOperator returns the operator named name, if any.
func (d *Domain) FindOperator(name string) *schema.Operator {
	for _, op := range d.Operators {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// MethodsForTask returns every method whose head name matches taskName.
func (d *Domain) MethodsForTask(taskName string) []*schema.HtnMethod {
	var out []*schema.HtnMethod
	for _, m := range d.Methods {
		if m.Head.Symbol == taskName {
			out = append(out, m)
		}
	}
	return out
}

// AddMethod appends m to the domain, assigning an id if method-ids are
// declared and m has none.
func (d *Domain) AddMethod(m *schema.HtnMethod) {
	if d.MethodIDs && m.ID == "" {
		m.ID = strconv.Itoa(d.nextMethod)
		d.nextMethod++
	}
	d.Methods = append(d.Methods, m)
}

// RemoveMethod deletes m from the domain by pointer identity.
func (d *Domain) RemoveMethod(m *schema.HtnMethod) {
	for i, x := range d.Methods {
		if x == m {
			d.Methods = append(d.Methods[:i], d.Methods[i+1:]...)
			return
		}
	}
}

// AssignMissingIDs is the Go equivalent of the original add-ids.cpp
// post-pass: every method lacking an id is given the next free integer,
// in domain order, without disturbing ids already present.
func (d *Domain) AssignMissingIDs() {
	max := -1
	for _, m := range d.Methods {
		if m.ID != "" {
			if n, err := strconv.Atoi(m.ID); err == nil && n > max {
				max = n
			}
		}
	}
	next := max + 1
	for _, m := range d.Methods {
		if m.ID == "" {
			m.ID = strconv.Itoa(next)
			next++
		}
	}
	d.nextMethod = next
}

// HtnProblem couples a domain with an initial state and an outstanding
// task stack (stored in reverse order — index 0 is the top of stack).
type HtnProblem struct {
	Domain           *Domain
	InitialState     *state.State
	OutstandingTasks []*logic.Pred
}

// Push places t on top of the task stack.
func (p *HtnProblem) Push(t *logic.Pred) {
	p.OutstandingTasks = append([]*logic.Pred{t}, p.OutstandingTasks...)
}

// Pop removes and returns the top task, if any.
func (p *HtnProblem) Pop() (*logic.Pred, bool) {
	if len(p.OutstandingTasks) == 0 {
		return nil, false
	}
	t := p.OutstandingTasks[0]
	p.OutstandingTasks = p.OutstandingTasks[1:]
	return t, true
}

// PushSubtasksReversed pushes subtasks so the first one ends up on top,
// matching the reference planner's expansion order (spec.md §4.9).
func (p *HtnProblem) PushSubtasksReversed(subtasks []*logic.Pred) {
	for i := len(subtasks) - 1; i >= 0; i-- {
		p.Push(subtasks[i])
	}
}

// AppliedStep records one primitive action taken while building a solution.
type AppliedStep struct {
	OperatorIndex int
	Sub           *logic.Substitution
}

// DecompPart is one node of the decomposition forest: an internal node
// carries a method id and its ground head; a leaf has IsLeaf set, an
// empty MethodID, and the ground action as its GroundHead.
type DecompPart struct {
	MethodID   string
	GroundHead *logic.Pred
	IsLeaf     bool
	Children   []*DecompPart
}

// HtnSolution extends HtnProblem with the applied-action trace and the
// decomposition forest recorded while building it.
type HtnSolution struct {
	HtnProblem
	InitialStateForPrint *state.State
	Applied              []AppliedStep
	Decompositions       int
	Forest               []*DecompPart
}

// NewSolution seeds a solution from a problem, preserving the initial
// state for later pretty-printing.
func NewSolution(p *HtnProblem) *HtnSolution {
	return &HtnSolution{
		HtnProblem:           *p,
		InitialStateForPrint: p.InitialState,
	}
}

// ApplyOperator advances the solution by one primitive step, recording
// it and returning the resulting state.
func (s *HtnSolution) ApplyOperator(opIndex int, op *schema.Operator, sigma *logic.Substitution, cur *state.State) (*state.State, error) {
	next, err := state.NextState(op.Preconditions, op.Effects, sigma, cur, cur.Index()+1)
	if err != nil {
		return nil, herr.Wrap(herr.OperatorNotApplicable, "HtnSolution.ApplyOperator", err)
	}
	s.Applied = append(s.Applied, AppliedStep{OperatorIndex: opIndex, Sub: sigma})
	return next, nil
}
