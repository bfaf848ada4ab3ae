// Package query implements the downstream read contract over the normalized
// store: projection and predicate reads in bounded chunks, and grouped counts
// computed in parallel over those chunks.
package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPredicate is returned for malformed or unsupported predicates.
var ErrInvalidPredicate = errors.New("invalid predicate")

// Op is a comparison operator.
type Op string

// Supported operators.
const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

var opAliases = map[string]Op{
	"=": OpEq, "eq": OpEq,
	"!=": OpNe, "ne": OpNe,
	"<": OpLt, "lt": OpLt,
	"<=": OpLe, "le": OpLe,
	">": OpGt, "gt": OpGt,
	">=": OpGe, "ge": OpGe,
}

// Predicate compares one column against a literal value.
type Predicate struct {
	Column string
	Op     Op
	Value  string
}

// String renders the predicate in the col:op:value form ParsePredicate accepts.
func (p Predicate) String() string {
	return fmt.Sprintf("%s:%s:%s", p.Column, p.Op, p.Value)
}

// ParsePredicate parses "column:op:value". The operator may be a symbol or
// its two-letter name (eq, ne, lt, le, gt, ge). The value may itself contain
// colons, as time-of-day values do.
func ParsePredicate(s string) (Predicate, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" {
		return Predicate{}, fmt.Errorf("%w: %q: want column:op:value", ErrInvalidPredicate, s)
	}
	op, ok := opAliases[strings.ToLower(parts[1])]
	if !ok {
		return Predicate{}, fmt.Errorf("%w: unsupported operator %q", ErrInvalidPredicate, parts[1])
	}
	return Predicate{Column: parts[0], Op: op, Value: parts[2]}, nil
}

// ParsePredicates parses every entry of raw, skipping blanks.
func ParsePredicates(raw []string) ([]Predicate, error) {
	out := make([]Predicate, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		p, err := ParsePredicate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
