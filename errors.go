package qryeval

import (
	"errors"
	"fmt"
)

// Sentinel errors, comparable with errors.Is. Mirrors the teacher's
// package-level var block convention (index.go) rather than ad-hoc
// fmt.Errorf strings scattered through the codebase.
var (
	ErrQuerySyntax       = errors.New("query syntax error")
	ErrModelMismatch     = errors.New("operator does not support retrieval model")
	ErrProtocolViolation = errors.New("query evaluation protocol violation")
	ErrIndexAccess       = errors.New("index access error")

	ErrNoPostingList = errors.New("no posting list for (field, term)")
	ErrUnknownField  = errors.New("unknown field")
	ErrNoMatch       = errors.New("no cached match")
)

// SyntaxError reports a malformed query string: unbalanced parens, an unknown
// operator or field, a TERM given arguments, SCORE with arity != 1, mixed
// fields across IOP siblings, or a family mismatch in append. Syntax errors
// abort only the offending query (spec §7).
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string { return "query syntax error: " + e.Msg }
func (e *SyntaxError) Unwrap() error { return ErrQuerySyntax }

func syntaxErrorf(format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...)}
}

// ModelMismatchError reports a SOP evaluated under a retrieval model it does
// not implement (e.g. #SUM under Indri).
type ModelMismatchError struct {
	Operator string
	Model    string
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("%s does not support retrieval model %s", e.Operator, e.Model)
}
func (e *ModelMismatchError) Unwrap() error { return ErrModelMismatch }

// IndexAccessError wraps a failure obtaining postings or corpus statistics
// from the IAL. Fatal to the current query's initialize() step; per spec §7
// an IndexAccessError during initialization aborts the whole batch.
type IndexAccessError struct {
	Op  string
	Err error
}

func (e *IndexAccessError) Error() string { return "index access error during " + e.Op + ": " + e.Err.Error() }
func (e *IndexAccessError) Unwrap() error { return ErrIndexAccess }

// protocolViolation panics: get_match without a cached match, or an
// out-of-order occurrence handed to a termBuilder, are programming bugs in
// the engine, not recoverable per-query failures (spec §7 "fail fast").
// PostingList.Append does not panic: it returns an out-of-order docid as an
// error wrapping ErrProtocolViolation.
func protocolViolation(format string, args ...any) {
	panic(&protocolPanic{msg: fmt.Sprintf(format, args...)})
}

type protocolPanic struct{ msg string }

func (p *protocolPanic) Error() string { return ErrProtocolViolation.Error() + ": " + p.msg }
func (p *protocolPanic) Unwrap() error { return ErrProtocolViolation }
