// Package filter is the seam to the boolean filter-expression language.
// The grammar itself lives behind the Parser interface: text in,
// expression out, or a parse failure with a message. The rest of the
// service only combines expressions and renders them for the upstream.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Expression is a parsed boolean filter over feature attributes.
type Expression interface {
	// CQL renders the expression for the upstream cql_filter parameter.
	CQL() string
}

// Parser turns filter text into an Expression.
type Parser interface {
	Parse(text string) (Expression, error)
}

// And conjoins two expressions. A view filter is a baseline that request
// filters narrow further, so the combination is always logical AND.
func And(a, b Expression) Expression {
	return conjunction{left: a, right: b}
}

type conjunction struct {
	left, right Expression
}

func (c conjunction) CQL() string {
	return fmt.Sprintf("(%s) AND (%s)", c.left.CQL(), c.right.CQL())
}

type predicate struct {
	text string
}

func (p predicate) CQL() string { return p.text }

// cql predicate text we accept verbatim: attribute comparisons, BETWEEN,
// LIKE, IN lists. Anything outside this alphabet is rejected before we
// ever hand it to the upstream.
var safePredicate = regexp.MustCompile(`^[\w\s=><!()\.,%'"-]+$`)

const maxPredicateLen = 500

// CQLParser validates filter text and wraps it as an opaque predicate.
type CQLParser struct{}

func NewCQLParser() CQLParser { return CQLParser{} }

func (CQLParser) Parse(text string) (Expression, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil, errors.New("empty filter expression")
	}
	if len(t) > maxPredicateLen {
		return nil, fmt.Errorf("filter expression exceeds %d characters", maxPredicateLen)
	}
	if !safePredicate.MatchString(t) {
		return nil, fmt.Errorf("filter expression contains disallowed characters: %q", t)
	}
	if err := checkBalanced(t); err != nil {
		return nil, err
	}
	return predicate{text: t}, nil
}

// checkBalanced rejects unbalanced parentheses and unterminated quotes,
// the two malformations that survive the character whitelist.
func checkBalanced(s string) error {
	depth := 0
	inQuote := false
	for _, r := range s {
		if r == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return errors.New("unbalanced parentheses in filter expression")
			}
		}
	}
	if inQuote {
		return errors.New("unterminated string literal in filter expression")
	}
	if depth != 0 {
		return errors.New("unbalanced parentheses in filter expression")
	}
	return nil
}
