// Package store persists learned domains and plan traces to Redis, the
// way hdn/domain_manager.go and hdn/action_manager.go persist DomainData
// and DynamicAction: one JSON blob per key, keyed by name.
//
// logic.Term/Formula values only mean anything relative to the Arena
// that interned them, so they cannot be marshalled directly — every
// formula-bearing field is carried across the wire as the S-expression
// text logic.Formula.String() already produces, and reparsed into the
// caller's Arena with logic.ParseConj/ParsePred on the way back in.
package store

import (
	"htnlearn/internal/domain"
	"htnlearn/internal/logic"
	"htnlearn/internal/schema"
)

// wireOperator is schema.Operator with formula fields as S-expression text.
type wireOperator struct {
	Name          string   `json:"name"`
	Params        []string `json:"params"`
	Preconditions string   `json:"preconditions"`
	Effects       string   `json:"effects"`
	Cost          int      `json:"cost"`
}

// wireMethod is schema.HtnMethod with formula fields as S-expression text.
type wireMethod struct {
	ID            string            `json:"id"`
	Head          string            `json:"head"`
	Vars          []string          `json:"vars"`
	Preconditions string            `json:"preconditions"`
	Subtasks      []string          `json:"subtasks"`
	TypeTable     map[string]string `json:"type_table"`
	QValue        float64           `json:"q_value"`
	QCount        int               `json:"q_count"`
}

// wireDomain is domain.Domain with its operators/methods converted.
type wireDomain struct {
	Name      string         `json:"name"`
	Operators []wireOperator `json:"operators"`
	Methods   []wireMethod   `json:"methods"`
	MethodIDs bool           `json:"method_ids"`
	QValues   bool           `json:"q_values"`
}

func toWireOperator(op *schema.Operator) wireOperator {
	params := make([]string, len(op.Params))
	for i, p := range op.Params {
		params[i] = p.Name()
	}
	return wireOperator{
		Name:          op.Name,
		Params:        params,
		Preconditions: op.Preconditions.String(),
		Effects:       op.Effects.String(),
		Cost:          op.Cost,
	}
}

func fromWireOperator(arena *logic.Arena, w wireOperator) (*schema.Operator, error) {
	params := make([]*logic.Term, len(w.Params))
	for i, name := range w.Params {
		t, err := arena.Intern(name, "")
		if err != nil {
			return nil, err
		}
		params[i] = t
	}
	pre, err := logic.ParseConj(arena, w.Preconditions)
	if err != nil {
		return nil, err
	}
	eff, err := logic.ParseConj(arena, w.Effects)
	if err != nil {
		return nil, err
	}
	return &schema.Operator{Name: w.Name, Params: params, Preconditions: pre, Effects: eff, Cost: w.Cost}, nil
}

func toWireMethod(m *schema.HtnMethod) wireMethod {
	vars := make([]string, len(m.Vars))
	for i, v := range m.Vars {
		vars[i] = v.Name()
	}
	subtasks := make([]string, len(m.Subtasks))
	for i, s := range m.Subtasks {
		subtasks[i] = s.String()
	}
	return wireMethod{
		ID:            m.ID,
		Head:          m.Head.String(),
		Vars:          vars,
		Preconditions: m.Preconditions.String(),
		Subtasks:      subtasks,
		TypeTable:     m.TypeTable,
		QValue:        m.QValue,
		QCount:        m.QCount,
	}
}

func fromWireMethod(arena *logic.Arena, w wireMethod) (*schema.HtnMethod, error) {
	head, err := logic.ParsePred(arena, w.Head)
	if err != nil {
		return nil, err
	}
	vars := make([]*logic.Term, len(w.Vars))
	for i, name := range w.Vars {
		t, err := arena.Intern(name, "")
		if err != nil {
			return nil, err
		}
		vars[i] = t
	}
	pre, err := logic.ParseConj(arena, w.Preconditions)
	if err != nil {
		return nil, err
	}
	subtasks := make([]*logic.Pred, len(w.Subtasks))
	for i, s := range w.Subtasks {
		p, err := logic.ParsePred(arena, s)
		if err != nil {
			return nil, err
		}
		subtasks[i] = p
	}
	typeTable := w.TypeTable
	if typeTable == nil {
		typeTable = map[string]string{}
	}
	return &schema.HtnMethod{
		ID:            w.ID,
		Head:          head,
		Vars:          vars,
		Preconditions: pre,
		Subtasks:      subtasks,
		TypeTable:     typeTable,
		QValue:        w.QValue,
		QCount:        w.QCount,
	}, nil
}

func toWireDomain(d *domain.Domain) wireDomain {
	ops := make([]wireOperator, len(d.Operators))
	for i, op := range d.Operators {
		ops[i] = toWireOperator(op)
	}
	methods := make([]wireMethod, len(d.Methods))
	for i, m := range d.Methods {
		methods[i] = toWireMethod(m)
	}
	return wireDomain{
		Name:      d.Name,
		Operators: ops,
		Methods:   methods,
		MethodIDs: d.MethodIDs,
		QValues:   d.QValues,
	}
}

// fromWireDomain rebuilds a *domain.Domain by reinterning every formula
// field into arena. Callers share one Arena across a load so that method
// preconditions and operator effects referring to the same constant or
// variable name resolve to the same interned Term.
func fromWireDomain(arena *logic.Arena, w wireDomain) (*domain.Domain, error) {
	d := domain.NewDomain(w.Name)
	d.MethodIDs = w.MethodIDs
	d.QValues = w.QValues
	for _, wo := range w.Operators {
		op, err := fromWireOperator(arena, wo)
		if err != nil {
			return nil, err
		}
		d.Operators = append(d.Operators, op)
	}
	for _, wm := range w.Methods {
		m, err := fromWireMethod(arena, wm)
		if err != nil {
			return nil, err
		}
		d.Methods = append(d.Methods, m)
	}
	return d, nil
}
