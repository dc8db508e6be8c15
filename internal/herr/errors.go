// Package herr defines the error taxonomy shared across the HTN learning
// engine. Every fallible operation in internal/logic, internal/state,
// internal/domain and internal/learn returns one of these kinds wrapped
// with context, so callers can branch with errors.Is/errors.As instead of
// matching on message text.
package herr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the design's error
// handling section. Kinds are comparable with errors.Is.
type Kind int

const (
	_ Kind = iota
	ParseMissingString
	ParseStreamFail
	ParseBadString
	TermTypeUnknown
	FormulaTypeUnknown
	IndexOutOfBounds
	SubstitutionDoubleBinding
	SubstitutionRecurses
	OperatorNotApplicable
	MethodNotApplicable
	OperatorOverlap
	BadCast
	NegNotPredOrEqu
	StateNotAtom
	DomainMismatch
	TypingMismatch
	NotImplemented
	DecompositionLimitExceeded
)

var names = map[Kind]string{
	ParseMissingString:        "ParseMissingString",
	ParseStreamFail:           "ParseStreamFail",
	ParseBadString:            "ParseBadString",
	TermTypeUnknown:           "TermTypeUnknown",
	FormulaTypeUnknown:        "FormulaTypeUnknown",
	IndexOutOfBounds:          "IndexOutOfBounds",
	SubstitutionDoubleBinding: "SubstitutionDoubleBinding",
	SubstitutionRecurses:      "SubstitutionRecurses",
	OperatorNotApplicable:     "OperatorNotApplicable",
	MethodNotApplicable:       "MethodNotApplicable",
	OperatorOverlap:           "OperatorOverlap",
	BadCast:                   "BadCast",
	NegNotPredOrEqu:           "NegNotPredOrEqu",
	StateNotAtom:              "StateNotAtom",
	DomainMismatch:            "DomainMismatch",
	TypingMismatch:            "TypingMismatch",
	NotImplemented:            "NotImplemented",
	DecompositionLimitExceeded: "DecompositionLimitExceeded",
}

func (k Kind) String() string {
	if n, ok := names[k]; ok {
		return n
	}
	return "UnknownKind"
}

// Error wraps a Kind with the operation that raised it and, for the
// parser layer, the originating file name (set by WithFile when the
// error is re-raised at the top level).
type Error struct {
	Kind Kind
	Op   string
	File string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s (in %s)", e.Op, e.Kind, e.Msg, e.File)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, herr.New(kind, "", "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// New builds an *Error for the given kind and operation.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap builds an *Error around an existing error, preserving it for
// errors.Unwrap/errors.As.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: err.Error(), Err: err}
}

// WithFile attaches the originating file name, matching the parser
// layer's policy of annotating re-thrown errors with the file being read.
func (e *Error) WithFile(file string) *Error {
	cp := *e
	cp.File = file
	return &cp
}

// Of is a convenience sentinel for errors.Is comparisons: errors.Is(err, herr.Of(herr.TypingMismatch)).
func Of(kind Kind) error { return &Error{Kind: kind} }

// As is a thin wrapper over errors.As for the common *Error case.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
