// internal/store/predicate.go
package store

import "fmt"

// Op is a predicate operator. The set is closed.
type Op int

const (
	OpEq Op = iota
	OpRegex
	OpContains
	OpText
	OpAnd
	OpOr
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpRegex:
		return "regex"
	case OpContains:
		return "contains"
	case OpText:
		return "text"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Predicate is a typed filter tree.
//
// Leaf operators use Field and Value: OpEq compares the JSON value at Field,
// OpRegex and OpContains match the string at Field case-insensitively, and
// OpText runs a full-text match of Value over TextFields. OpAnd and OpOr
// combine Children.
type Predicate struct {
	Op       Op
	Field    string
	Value    any
	Children []*Predicate
}

// Eq matches documents whose field equals value.
func Eq(field string, value any) *Predicate {
	return &Predicate{Op: OpEq, Field: field, Value: value}
}

// Regex matches documents whose field matches pattern, ignoring case.
func Regex(field, pattern string) *Predicate {
	return &Predicate{Op: OpRegex, Field: field, Value: pattern}
}

// Contains matches documents whose field contains substr, ignoring case.
func Contains(field, substr string) *Predicate {
	return &Predicate{Op: OpContains, Field: field, Value: substr}
}

// Text is a native full-text match. Only valid on collections with a text index.
func Text(query string) *Predicate {
	return &Predicate{Op: OpText, Value: query}
}

// And combines predicates; nil entries are dropped. And() with nothing left is nil (match all).
func And(preds ...*Predicate) *Predicate {
	return combine(OpAnd, preds)
}

// Or combines predicates; nil entries are dropped.
func Or(preds ...*Predicate) *Predicate {
	return combine(OpOr, preds)
}

func combine(op Op, preds []*Predicate) *Predicate {
	var children []*Predicate
	for _, p := range preds {
		if p != nil {
			children = append(children, p)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	return &Predicate{Op: op, Children: children}
}

// KeywordMatch is the fallback keyword search: a case-insensitive substring
// match of keyword against any of TextFields.
func KeywordMatch(keyword string) *Predicate {
	preds := make([]*Predicate, 0, len(TextFields))
	for _, f := range TextFields {
		preds = append(preds, Contains(f, keyword))
	}
	return Or(preds...)
}
