package store

import (
	"htnlearn/internal/domain"
	"htnlearn/internal/herr"
	"htnlearn/internal/logic"
	"htnlearn/internal/plan"
	"htnlearn/internal/state"
)

// wireState is a ground state as a sorted list of its atoms' S-expression
// text (deterministic ordering so equal states always marshal identically).
type wireState struct {
	Atoms []string `json:"atoms"`
}

// wireStep is one ground plan step: the operator name and the ground
// substitution that instantiates it.
type wireStep struct {
	Operator string            `json:"operator"`
	Sub      map[string]string `json:"sub"`
}

// wirePlan is plan.Plan with operator/substitution/state fields serialized.
type wirePlan struct {
	Steps  []wireStep  `json:"steps"`
	States []wireState `json:"states"`
}

func toWireState(s *state.State) wireState {
	atoms := s.AllAtoms()
	texts := make([]string, len(atoms))
	for i, a := range atoms {
		texts[i] = a.String()
	}
	sortStrings(texts)
	return wireState{Atoms: texts}
}

func fromWireState(arena *logic.Arena, index int, w wireState) (*state.State, error) {
	s := state.New(index)
	for _, text := range w.Atoms {
		p, err := logic.ParsePred(arena, text)
		if err != nil {
			return nil, err
		}
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func toWireStep(st plan.Step) wireStep {
	sub := map[string]string{}
	for v, t := range st.Sub.Pairs() {
		sub[v.Name()] = t.Name()
	}
	return wireStep{Operator: st.Operator.Name, Sub: sub}
}

func fromWireStep(arena *logic.Arena, d *domain.Domain, w wireStep) (plan.Step, error) {
	op := d.FindOperator(w.Operator)
	if op == nil {
		return plan.Step{}, herr.New(herr.OperatorNotApplicable, "store.fromWireStep", "no operator named "+w.Operator+" in the domain this plan was loaded against")
	}
	sub := logic.NewSubstitution()
	for vName, tName := range w.Sub {
		v, err := arena.Intern(vName, "")
		if err != nil {
			return plan.Step{}, err
		}
		t, err := arena.Intern(tName, "")
		if err != nil {
			return plan.Step{}, err
		}
		if err := sub.Insert(v, t); err != nil {
			return plan.Step{}, err
		}
	}
	return plan.Step{Operator: op, Sub: sub}, nil
}

func toWirePlan(p *plan.Plan) wirePlan {
	steps := make([]wireStep, len(p.Steps))
	for i, st := range p.Steps {
		steps[i] = toWireStep(st)
	}
	states := make([]wireState, len(p.States))
	for i, s := range p.States {
		states[i] = toWireState(s)
	}
	return wirePlan{Steps: steps, States: states}
}

func fromWirePlan(arena *logic.Arena, d *domain.Domain, w wirePlan) (*plan.Plan, error) {
	steps := make([]plan.Step, len(w.Steps))
	for i, ws := range w.Steps {
		st, err := fromWireStep(arena, d, ws)
		if err != nil {
			return nil, err
		}
		steps[i] = st
	}
	states := make([]*state.State, len(w.States))
	for i, wst := range w.States {
		s, err := fromWireState(arena, i, wst)
		if err != nil {
			return nil, err
		}
		states[i] = s
	}
	return &plan.Plan{Steps: steps, States: states}, nil
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j] < ss[j-1]; j-- {
			ss[j], ss[j-1] = ss[j-1], ss[j]
		}
	}
}
