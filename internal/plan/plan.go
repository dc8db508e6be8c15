// Package plan implements the ground plan and annotated plan types of
// spec.md §3 (C8): a plan is a sequence of (operator, substitution)
// steps; an annotated plan additionally records, for each learned
// covering method, the contiguous range it explains.
package plan

import (
	"github.com/google/uuid"

	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
	"htnlearn/internal/state"
)

// Step is one ground action in a plan trace.
type Step struct {
	Operator *schema.Operator
	Sub      *logic.Substitution
}

// Plan is the ground action sequence a learning run walks.
type Plan struct {
	Steps  []Step
	States []*state.State // len(States) == len(Steps)+1, state[i] precedes Steps[i]
}

// MethodInstance records one learned method's coverage of a contiguous
// plan range: (method, σ grounding it, before/after states, the task it
// decomposes, the effects it was learned to supply, and its cost).
type MethodInstance struct {
	Method     *schema.HtnMethod
	Sub        *logic.Substitution
	Before     *state.State
	After      *state.State
	TaskDescr  *schema.HtnTaskDescr
	Effects    *logic.Conj
	Cost       int
	RangeStart int // inclusive plan-state index
	RangeEnd   int // inclusive plan-state index
}

// AnnotatedPlan is a ground plan plus the method instances learned to
// cover contiguous ranges of it.
type AnnotatedPlan struct {
	// RunID identifies one Driver.Run invocation over this plan, so
	// progress events and persisted method instances from the same run
	// can be correlated after the fact.
	RunID     string
	Plan      *Plan
	Instances []MethodInstance
}

// New wraps a ground plan for annotation, stamping it with a fresh run id.
func New(p *Plan) *AnnotatedPlan {
	return &AnnotatedPlan{RunID: uuid.New().String(), Plan: p}
}

// Record appends a method instance.
func (a *AnnotatedPlan) Record(mi MethodInstance) {
	a.Instances = append(a.Instances, mi)
}

// CoveringAt returns every recorded instance whose range includes
// plan-state index i, longest range first (spec.md §4.5 step 2a's
// order). Backward regression queries EndingAt, not this.
func (a *AnnotatedPlan) CoveringAt(i int) []MethodInstance {
	var out []MethodInstance
	for _, mi := range a.Instances {
		if mi.RangeStart <= i && i <= mi.RangeEnd {
			out = append(out, mi)
		}
	}
	// Longest range first, then earliest start, then fewest subtasks —
	// the tie-break order spec.md §4.5 step 2a specifies.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// EndingAt returns every recorded instance whose range ends exactly at
// plan-state index i, in the same longest-first tie-break order as
// CoveringAt. Learning's backward regression (spec.md §4.5 step 2a)
// only ever wants subtasks that end precisely where it currently is,
// not ones that merely overlap it.
func (a *AnnotatedPlan) EndingAt(i int) []MethodInstance {
	var out []MethodInstance
	for _, mi := range a.Instances {
		if mi.RangeEnd == i {
			out = append(out, mi)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func less(a, b MethodInstance) bool {
	lenA, lenB := a.RangeEnd-a.RangeStart, b.RangeEnd-b.RangeStart
	if lenA != lenB {
		return lenA > lenB // longer range first
	}
	if a.RangeStart != b.RangeStart {
		return a.RangeStart < b.RangeStart // earlier start first
	}
	return len(a.Method.Subtasks) < len(b.Method.Subtasks) // fewer subtasks first
}
