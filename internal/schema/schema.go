// Package schema holds the lifted schema types of spec.md §3/§4.5:
// Operator (primitive action schema), HtnMethod (decomposition method)
// and HtnTaskDescr (annotated task). Task and subtask heads reuse
// logic.Pred — a task literal is structurally a predicate (name + ordered
// argument terms); primitive operator names carry the "!" prefix per the
// glossary.
package schema

import "htnlearn/internal/logic"

// Operator is a primitive action schema: (name, params, preconditions,
// effects, cost).
type Operator struct {
	Name          string
	Params        []*logic.Term
	Preconditions *logic.Conj
	Effects       *logic.Conj
	Cost          int
}

// Head returns the operator's task literal, e.g. (!pick-up ?b).
func (o *Operator) Head() *logic.Pred {
	return logic.NewPred(o.Name, o.Params...)
}

// QValueUnset is the sentinel for HtnMethod.QValue before its first update.
const QValueUnset = -1.0

// HtnMethod is a decomposition method: head + preconditions + ordered
// subtasks, plus optional id and q-value bookkeeping.
type HtnMethod struct {
	ID            string
	Head          *logic.Pred
	Vars          []*logic.Term // free variables beyond the head's parameters, spec.md §4.6
	Preconditions *logic.Conj
	Subtasks      []*logic.Pred
	TypeTable     map[string]string // var name -> type tag, when typing is declared
	QValue        float64
	QCount        int
}

// NewHtnMethod constructs a method with QValue left unset.
func NewHtnMethod(head *logic.Pred, preconditions *logic.Conj, subtasks []*logic.Pred) *HtnMethod {
	return &HtnMethod{
		Head:          head,
		Preconditions: preconditions,
		Subtasks:      subtasks,
		TypeTable:     map[string]string{},
		QValue:        QValueUnset,
	}
}

// IsTrivial reports whether the method's single subtask is identical (by
// name and arity) to its head — spec.md §4.6 discards such methods.
func (m *HtnMethod) IsTrivial() bool {
	if len(m.Subtasks) != 1 {
		return false
	}
	s := m.Subtasks[0]
	return s.Symbol == m.Head.Symbol && len(s.Args) == len(m.Head.Args)
}

// UpdateQValue folds a new observed cost into the rolling average,
// per the "Q-value — rolling average cost" glossary entry.
func (m *HtnMethod) UpdateQValue(cost float64) {
	if m.QCount == 0 {
		m.QValue = cost
	} else {
		m.QValue = (m.QValue*float64(m.QCount) + cost) / float64(m.QCount+1)
	}
	m.QCount++
}

// HtnTaskDescr is the intentional description of a task, used as a
// learning target: head + preconditions + effects.
type HtnTaskDescr struct {
	Head          *logic.Pred
	Preconditions *logic.Conj
	Effects       *logic.Conj
}

// IsPrimitive reports whether name denotes a primitive action (glossary:
// "name begins with !").
func IsPrimitive(name string) bool {
	return len(name) > 0 && name[0] == '!'
}
