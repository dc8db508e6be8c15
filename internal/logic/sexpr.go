package logic

import (
	"strings"

	"htnlearn/internal/herr"
)

// ParseFormula parses the S-expression text produced by Formula.String()
// back into a Formula over arena, re-interning every term it encounters.
// This is the wire format internal/store persists method/task bodies as,
// since the rest of this package's Term values only have meaning relative
// to the Arena they were interned in.
func ParseFormula(arena *Arena, text string) (Formula, error) {
	toks := tokenize(text)
	if len(toks) == 0 {
		return nil, herr.New(herr.FormulaTypeUnknown, "ParseFormula", "empty formula text")
	}
	f, rest, err := parseFormula(arena, toks)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, herr.New(herr.FormulaTypeUnknown, "ParseFormula", "trailing tokens after formula")
	}
	return f, nil
}

func tokenize(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch r {
		case '(', ')':
			flush()
			toks = append(toks, string(r))
		case ' ', '\t', '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

func parseFormula(arena *Arena, toks []string) (Formula, []string, error) {
	if len(toks) == 0 || toks[0] != "(" {
		return nil, nil, herr.New(herr.FormulaTypeUnknown, "parseFormula", "expected '('")
	}
	toks = toks[1:]
	if len(toks) == 0 {
		return nil, nil, herr.New(herr.FormulaTypeUnknown, "parseFormula", "unexpected end of input")
	}
	head := toks[0]
	toks = toks[1:]

	switch head {
	case "and":
		var children []Formula
		for len(toks) > 0 && toks[0] != ")" {
			var child Formula
			var err error
			child, toks, err = parseFormula(arena, toks)
			if err != nil {
				return nil, nil, err
			}
			children = append(children, child)
		}
		toks, err := expectClose(toks)
		if err != nil {
			return nil, nil, err
		}
		c, err := NewConj(children...)
		return c, toks, err
	case "not":
		inner, rest, err := parseFormula(arena, toks)
		if err != nil {
			return nil, nil, err
		}
		rest, err = expectClose(rest)
		if err != nil {
			return nil, nil, err
		}
		n, err := NewNeg(inner)
		return n, rest, err
	case "=":
		if len(toks) < 2 {
			return nil, nil, herr.New(herr.FormulaTypeUnknown, "parseFormula", "malformed equality")
		}
		lhs, err := internName(arena, toks[0])
		if err != nil {
			return nil, nil, err
		}
		rhs, err := internName(arena, toks[1])
		if err != nil {
			return nil, nil, err
		}
		rest, err := expectClose(toks[2:])
		if err != nil {
			return nil, nil, err
		}
		return NewEqu(lhs, rhs), rest, nil
	default:
		var args []*Term
		for len(toks) > 0 && toks[0] != ")" {
			t, err := internName(arena, toks[0])
			if err != nil {
				return nil, nil, err
			}
			args = append(args, t)
			toks = toks[1:]
		}
		rest, err := expectClose(toks)
		if err != nil {
			return nil, nil, err
		}
		return NewPred(head, args...), rest, nil
	}
}

func internName(arena *Arena, name string) (*Term, error) {
	return arena.Intern(name, "")
}

func expectClose(toks []string) ([]string, error) {
	if len(toks) == 0 || toks[0] != ")" {
		return nil, herr.New(herr.FormulaTypeUnknown, "parseFormula", "expected ')'")
	}
	return toks[1:], nil
}

// ParseConj parses text expected to denote a Conj (method/task bodies are
// always conjunctions, possibly of zero children: "(and)").
func ParseConj(arena *Arena, text string) (*Conj, error) {
	f, err := ParseFormula(arena, text)
	if err != nil {
		return nil, err
	}
	c, ok := f.(*Conj)
	if !ok {
		return nil, herr.New(herr.FormulaTypeUnknown, "ParseConj", "expected a conjunction")
	}
	return c, nil
}

// ParsePred parses text expected to denote a single Pred (a task/subtask head).
func ParsePred(arena *Arena, text string) (*Pred, error) {
	f, err := ParseFormula(arena, text)
	if err != nil {
		return nil, err
	}
	p, ok := f.(*Pred)
	if !ok {
		return nil, herr.New(herr.FormulaTypeUnknown, "ParsePred", "expected a predicate")
	}
	return p, nil
}
