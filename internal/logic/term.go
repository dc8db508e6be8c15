package logic

import (
	"strconv"
	"strings"

	"htnlearn/internal/herr"
)

// TermKind distinguishes the two Term variants from spec.md §3.
type TermKind int

const (
	ConstantTerm TermKind = iota
	VariableTerm
)

// maxSubstitutionDepth bounds recursive substitution application (§4.1)
// to prevent the pathological cycles a hand-built Substitution could
// otherwise create.
const maxSubstitutionDepth = 10

// Term is a constant or a variable, optionally typed. Terms are
// interned within an Arena: two Terms from the same Arena with equal
// (name, type) are the same pointer, so equality is pointer equality.
type Term struct {
	id       uint32
	arena    *Arena
	nameID   uint32
	typeID   uint32
	hasType  bool
	kind     TermKind
	name     string // cached for convenience; always arena.stringOf(nameID)
	typeName string // cached; "" if untyped
}

// Name returns the term's symbolic name, e.g. "b1" or "?b".
func (t *Term) Name() string { return t.name }

// Type returns the term's type tag and whether it has one.
func (t *Term) Type() (string, bool) { return t.typeName, t.hasType }

// Kind reports whether the term is a constant or a variable.
func (t *Term) Kind() TermKind { return t.kind }

// IsVariable reports whether the term's name begins with '?'.
func (t *Term) IsVariable() bool { return t.kind == VariableTerm }

// ID returns a process-stable, deterministic identifier for hashing.
// Per spec.md §9's open question, hashing must use the interned id, not
// a raw pointer address, to stay deterministic across runs.
func (t *Term) ID() uint32 { return t.id }

func kindFromName(name string) TermKind {
	if strings.HasPrefix(name, "?") {
		return VariableTerm
	}
	return ConstantTerm
}

// Intern returns the interned Term for (name, typ), creating it on first
// use. typ == "" means untyped. A later call for the same name whose typ
// differs from the first one (including typed versus untyped) fails with
// TypingMismatchError, wrapped as herr.TypingMismatch.
func (a *Arena) Intern(name, typ string) (*Term, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	nameID := a.internString(name)
	if existing, ok := a.terms[nameID]; ok {
		if existing.hasType != (typ != "") || (existing.hasType && existing.typeName != typ) {
			return nil, herr.Wrap(herr.TypingMismatch, "Arena.Intern",
				&TypingMismatchError{Name: name, Existing: existing.typeName, Got: typ})
		}
		return existing, nil
	}
	a.bumpCounterFor(name)
	t := &Term{
		arena:  a,
		nameID: nameID,
		kind:   kindFromName(name),
		name:   name,
		id:     uint32(a.nextTerm),
	}
	if typ != "" {
		t.hasType = true
		t.typeName = typ
		t.typeID = a.internString(typ)
	}
	a.nextTerm++
	a.terms[nameID] = t
	return t, nil
}

// MustIntern is Intern without an error return, for call sites that know
// the name was already interned consistently (test fixtures, literals
// parsed from a single trusted source).
func (a *Arena) MustIntern(name, typ string) *Term {
	t, err := a.Intern(name, typ)
	if err != nil {
		panic(err)
	}
	return t
}

// Constant interns an untyped constant by name.
func (a *Arena) Constant(name string) *Term { return a.MustIntern(name, "") }

// Variable interns an untyped variable by name (name must start with '?').
func (a *Arena) Variable(name string) *Term { return a.MustIntern(name, "") }

// Equal reports term identity. Because terms are interned, this is
// pointer equality, but the method is kept explicit so callers never
// reach for == directly (and so a future non-pointer representation
// would not require call-site changes).
func (t *Term) Equal(other *Term) bool { return t == other }

// ApplyTerm applies substitution sub to t, following spec.md §4.1:
// constants return themselves; a variable v returns
// apply(sub.Lookup(v), sub) if bound, else v. Recursion is capped at
// maxSubstitutionDepth.
func ApplyTerm(t *Term, sub *Substitution) (*Term, error) {
	return applyTermDepth(t, sub, 0)
}

func applyTermDepth(t *Term, sub *Substitution, depth int) (*Term, error) {
	if t.kind == ConstantTerm {
		return t, nil
	}
	if depth >= maxSubstitutionDepth {
		return nil, herr.New(herr.SubstitutionRecurses, "ApplyTerm",
			"substitution recursion exceeded depth "+strconv.Itoa(maxSubstitutionDepth))
	}
	bound, ok := sub.Lookup(t)
	if !ok {
		return t, nil
	}
	return applyTermDepth(bound, sub, depth+1)
}
