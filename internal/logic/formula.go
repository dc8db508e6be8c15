package logic

import "htnlearn/internal/herr"

// Formula is the sum type from spec.md §3: Pred, Equ, Neg or Conj. The
// design notes call out that a tagged variant is a faithful replacement
// for the source's virtual-method base class; Go's interface + type
// switch plays that role here, with construction-time validation in
// place of the runtime dynamic_casts the original relied on.
type Formula interface {
	isFormula()
	String() string
}

// Pred is an atomic predicate applied to an ordered argument list.
type Pred struct {
	Symbol string
	Args   []*Term
}

func (*Pred) isFormula() {}

// Equ is commutative equality between two terms.
type Equ struct {
	LHS, RHS *Term
}

func (*Equ) isFormula() {}

// Neg negates a Pred or an Equ. The core restricts Inner to those two
// variants; NewNeg enforces it.
type Neg struct {
	Inner Formula
}

func (*Neg) isFormula() {}

// Conj is a conjunction of Pred/Equ/Neg children; nesting a Conj inside
// a Conj is rejected by NewConj.
type Conj struct {
	Children []Formula
}

func (*Conj) isFormula() {}

// NewPred builds a predicate atom.
func NewPred(symbol string, args ...*Term) *Pred {
	return &Pred{Symbol: symbol, Args: args}
}

// NewEqu builds an equality atom.
func NewEqu(lhs, rhs *Term) *Equ {
	return &Equ{LHS: lhs, RHS: rhs}
}

// NewNeg negates inner, which must be a Pred or an Equ.
func NewNeg(inner Formula) (*Neg, error) {
	switch inner.(type) {
	case *Pred, *Equ:
		return &Neg{Inner: inner}, nil
	default:
		return nil, herr.New(herr.NegNotPredOrEqu, "NewNeg", "negation inner must be Pred or Equ")
	}
}

// MustNeg is NewNeg for call sites that already know inner is valid.
func MustNeg(inner Formula) *Neg {
	n, err := NewNeg(inner)
	if err != nil {
		panic(err)
	}
	return n
}

// NewConj builds a conjunction; each child must be a Pred, Equ or Neg —
// no nested Conj.
func NewConj(children ...Formula) (*Conj, error) {
	for _, c := range children {
		if _, ok := c.(*Conj); ok {
			return nil, herr.New(herr.NegNotPredOrEqu, "NewConj", "conjunction children may not be conjunctions")
		}
	}
	return &Conj{Children: children}, nil
}

// MustConj is NewConj for call sites that already know the children are valid.
func MustConj(children ...Formula) *Conj {
	c, err := NewConj(children...)
	if err != nil {
		panic(err)
	}
	return c
}

// IsValidAtom reports whether f is a Pred, an Equ, or a Neg of one of
// those — i.e. anything except a bare Conj.
func IsValidAtom(f Formula) bool {
	switch v := f.(type) {
	case *Pred, *Equ:
		return true
	case *Neg:
		switch v.Inner.(type) {
		case *Pred, *Equ:
			return true
		}
		return false
	default:
		return false
	}
}

// IsGround reports whether no variable appears anywhere in f.
func IsGround(f Formula) bool {
	return len(Variables(f)) == 0
}

// Variables returns the order-deduplicated list of variable terms
// occurring in f. Equ(a,a) contributes a once, matching spec.md §4.2.
func Variables(f Formula) []*Term {
	seen := make(map[*Term]bool)
	var out []*Term
	collectTerms(f, func(t *Term) {
		if t.IsVariable() && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	})
	return out
}

// Constants returns the order-deduplicated list of constant terms
// occurring in f.
func Constants(f Formula) []*Term {
	seen := make(map[*Term]bool)
	var out []*Term
	collectTerms(f, func(t *Term) {
		if !t.IsVariable() && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	})
	return out
}

func collectTerms(f Formula, visit func(*Term)) {
	switch v := f.(type) {
	case *Pred:
		for _, a := range v.Args {
			visit(a)
		}
	case *Equ:
		visit(v.LHS)
		visit(v.RHS)
	case *Neg:
		collectTerms(v.Inner, visit)
	case *Conj:
		for _, c := range v.Children {
			collectTerms(c, visit)
		}
	default:
		panic(herr.New(herr.FormulaTypeUnknown, "collectTerms", "unrecognised formula variant"))
	}
}

// ApplyFormula substitutes sub structurally through f, per spec.md §4.2.
func ApplyFormula(f Formula, sub *Substitution) (Formula, error) {
	switch v := f.(type) {
	case *Pred:
		args := make([]*Term, len(v.Args))
		for i, a := range v.Args {
			t, err := ApplyTerm(a, sub)
			if err != nil {
				return nil, err
			}
			args[i] = t
		}
		return &Pred{Symbol: v.Symbol, Args: args}, nil
	case *Equ:
		l, err := ApplyTerm(v.LHS, sub)
		if err != nil {
			return nil, err
		}
		r, err := ApplyTerm(v.RHS, sub)
		if err != nil {
			return nil, err
		}
		return &Equ{LHS: l, RHS: r}, nil
	case *Neg:
		inner, err := ApplyFormula(v.Inner, sub)
		if err != nil {
			return nil, err
		}
		return &Neg{Inner: inner}, nil
	case *Conj:
		children := make([]Formula, len(v.Children))
		for i, c := range v.Children {
			nc, err := ApplyFormula(c, sub)
			if err != nil {
				return nil, err
			}
			children[i] = nc
		}
		return &Conj{Children: children}, nil
	default:
		return nil, herr.New(herr.FormulaTypeUnknown, "ApplyFormula", "unrecognised formula variant")
	}
}

// FormulaEqual is structural equality with Equ(a,b)=Equ(b,a) and
// Conj(xs)=Conj(ys) iff they are permutations of equivalent children.
func FormulaEqual(f, g Formula) bool {
	switch a := f.(type) {
	case *Pred:
		b, ok := g.(*Pred)
		if !ok || a.Symbol != b.Symbol || len(a.Args) != len(b.Args) {
			return false
		}
		for i := range a.Args {
			if a.Args[i] != b.Args[i] {
				return false
			}
		}
		return true
	case *Equ:
		b, ok := g.(*Equ)
		if !ok {
			return false
		}
		return (a.LHS == b.LHS && a.RHS == b.RHS) || (a.LHS == b.RHS && a.RHS == b.LHS)
	case *Neg:
		b, ok := g.(*Neg)
		if !ok {
			return false
		}
		return FormulaEqual(a.Inner, b.Inner)
	case *Conj:
		b, ok := g.(*Conj)
		if !ok || len(a.Children) != len(b.Children) {
			return false
		}
		return conjPermutationEqual(a.Children, b.Children)
	default:
		panic(herr.New(herr.FormulaTypeUnknown, "FormulaEqual", "unrecognised formula variant"))
	}
}

// conjPermutationEqual backtracks a bijective matching between xs and ys
// under FormulaEqual; conjunctions are small in practice (method/task
// preconditions), so this is not performance sensitive.
func conjPermutationEqual(xs, ys []Formula) bool {
	used := make([]bool, len(ys))
	var match func(i int) bool
	match = func(i int) bool {
		if i == len(xs) {
			return true
		}
		for j, y := range ys {
			if used[j] {
				continue
			}
			if FormulaEqual(xs[i], y) {
				used[j] = true
				if match(i + 1) {
					return true
				}
				used[j] = false
			}
		}
		return false
	}
	return match(0)
}

// Implies decides F ⇒ G per spec.md §4.2.
func Implies(f, g Formula) bool {
	switch v := f.(type) {
	case *Pred, *Equ, *Neg:
		return atomImplies(f, g)
	case *Conj:
		return conjImplies(v, g)
	default:
		panic(herr.New(herr.FormulaTypeUnknown, "Implies", "unrecognised formula variant"))
	}
}

func atomImplies(atom, g Formula) bool {
	if gc, ok := g.(*Conj); ok {
		for _, child := range gc.Children {
			if !FormulaEqual(atom, child) {
				return false
			}
		}
		return true
	}
	return FormulaEqual(atom, g)
}

func conjImplies(c *Conj, g Formula) bool {
	if gc, ok := g.(*Conj); ok {
		for _, gchild := range gc.Children {
			if !existsImplies(c.Children, gchild) {
				return false
			}
		}
		return true
	}
	return existsImplies(c.Children, g)
}

func existsImplies(children []Formula, g Formula) bool {
	for _, c := range children {
		if Implies(c, g) {
			return true
		}
	}
	return false
}

// String renderings, used by logging and by round-trip-adjacent tests.
func (p *Pred) String() string {
	s := "(" + p.Symbol
	for _, a := range p.Args {
		s += " " + a.Name()
	}
	return s + ")"
}

func (e *Equ) String() string { return "(= " + e.LHS.Name() + " " + e.RHS.Name() + ")" }
func (n *Neg) String() string { return "(not " + n.Inner.String() + ")" }
func (c *Conj) String() string {
	s := "(and"
	for _, ch := range c.Children {
		s += " " + ch.String()
	}
	return s + ")"
}
