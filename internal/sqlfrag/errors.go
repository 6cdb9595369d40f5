package sqlfrag

import (
	"errors"
	"fmt"
)

// ParseError mirrors pgtofu's internal/parser.ParseError shape: a message
// tied to the offending snippet, so the caller can report which FROM item
// was unparsable. Such an error fails the whole GenerateAllQueryHashPairs
// call; unclassifiable WHERE conjuncts are skipped with a warning instead.
type ParseError struct {
	Snippet string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q", e.Message, e.Snippet)
}

var errNotASelect = errors.New("input is not a single SELECT statement")

func errUnparsableFromItem(item string) error {
	return &ParseError{Snippet: item, Message: "unparsable FROM item"}
}

func errUnparsableConjunct(cond string) error {
	return &ParseError{Snippet: cond, Message: "unparsable WHERE conjunct"}
}
