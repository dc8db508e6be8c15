package learn

import (
	"strings"

	"htnlearn/internal/logic"
	"htnlearn/internal/state"
)

// groundDiffEffects compares before and after and returns a conjunction
// of the ground Pred atoms that appeared (positive) and the ground
// atoms that disappeared (Neg(Pred)) — the effective effect set a
// method instance actually produced, used when learning isn't
// restricted to a covering instance's own declared task effects.
func groundDiffEffects(before, after *state.State) *logic.Conj {
	beforeSet := map[string]bool{}
	for _, p := range before.AllAtoms() {
		beforeSet[atomKey(p)] = true
	}
	afterSet := map[string]bool{}
	var children []logic.Formula
	for _, p := range after.AllAtoms() {
		k := atomKey(p)
		afterSet[k] = true
		if !beforeSet[k] {
			children = append(children, p)
		}
	}
	for _, p := range before.AllAtoms() {
		if !afterSet[atomKey(p)] {
			children = append(children, logic.MustNeg(p))
		}
	}
	return &logic.Conj{Children: children}
}

func atomKey(p *logic.Pred) string {
	var b strings.Builder
	b.WriteString(p.Symbol)
	for _, a := range p.Args {
		b.WriteByte(0)
		b.WriteString(a.Name())
	}
	return b.String()
}
