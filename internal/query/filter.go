// internal/query/filter.go
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	custom_errors "github-integration/internal/errors"
	"github-integration/internal/store"
)

// ParseFilter turns a JSON filter document into a predicate tree.
//
// Grammar:
//
//	{"field": value}                      equality; dot paths reach nested fields
//	{"field": {"$eq": value}}             equality
//	{"field": {"$regex": "pattern"}}      case-insensitive regular expression (see store.ParsePattern)
//	{"field": {"$contains": "text"}}      case-insensitive substring
//	{"$and": [filter, ...]}               all must match
//	{"$or": [filter, ...]}                any must match
//
// A null value also matches documents without the field.
// Keys of one object are ANDed. An empty or blank input yields nil, which matches everything.
func ParseFilter(raw string) (*store.Predicate, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, custom_errors.NewValidationError("filter", "invalid filter JSON format: %v", err)
	}
	if dec.More() {
		return nil, custom_errors.NewValidationError("filter", "invalid filter JSON format: trailing data")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, custom_errors.NewValidationError("filter", "filter must be a JSON object")
	}
	return parseObject(obj)
}

func parseObject(obj map[string]any) (*store.Predicate, error) {
	// Sorted keys keep the tree, and therefore the generated SQL, deterministic.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]*store.Predicate, 0, len(keys))
	for _, key := range keys {
		var (
			p   *store.Predicate
			err error
		)
		switch {
		case key == "$and" || key == "$or":
			p, err = parseLogical(key, obj[key])
		case strings.HasPrefix(key, "$"):
			err = custom_errors.NewValidationError("filter", "unsupported operator %q", key)
		default:
			p, err = parseField(key, obj[key])
		}
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return store.And(preds...), nil
}

func parseLogical(op string, v any) (*store.Predicate, error) {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return nil, custom_errors.NewValidationError("filter", "%s expects a non-empty array of filters", op)
	}
	children := make([]*store.Predicate, 0, len(items))
	matchAll := false
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, custom_errors.NewValidationError("filter", "%s[%d] must be an object", op, i)
		}
		child, err := parseObject(obj)
		if err != nil {
			return nil, err
		}
		// {} matches everything.
		if child == nil {
			matchAll = true
			continue
		}
		children = append(children, child)
	}
	if op == "$or" {
		if matchAll {
			return nil, nil
		}
		return store.Or(children...), nil
	}
	return store.And(children...), nil
}

func parseField(field string, v any) (*store.Predicate, error) {
	if err := validateField(field); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok || !hasOperatorKeys(obj) {
		return store.Eq(field, v), nil
	}

	ops := make([]string, 0, len(obj))
	for k := range obj {
		ops = append(ops, k)
	}
	sort.Strings(ops)

	preds := make([]*store.Predicate, 0, len(ops))
	for _, op := range ops {
		arg := obj[op]
		switch op {
		case "$eq":
			preds = append(preds, store.Eq(field, arg))
		case "$regex":
			pattern, ok := arg.(string)
			if !ok {
				return nil, custom_errors.NewValidationError("filter", "$regex on %q expects a string", field)
			}
			if _, err := store.ParsePattern(pattern); err != nil {
				return nil, custom_errors.NewValidationError("filter", "invalid $regex on %q: %v", field, err)
			}
			preds = append(preds, store.Regex(field, pattern))
		case "$contains":
			substr, ok := arg.(string)
			if !ok {
				return nil, custom_errors.NewValidationError("filter", "$contains on %q expects a string", field)
			}
			preds = append(preds, store.Contains(field, substr))
		default:
			if !strings.HasPrefix(op, "$") {
				return nil, custom_errors.NewValidationError("filter", "cannot mix operators and fields in %q", field)
			}
			return nil, custom_errors.NewValidationError("filter", "unsupported operator %q on %q", op, field)
		}
	}
	return store.And(preds...), nil
}

func hasOperatorKeys(obj map[string]any) bool {
	for k := range obj {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func validateField(field string) error {
	for _, seg := range store.SplitPath(field) {
		if seg == "" {
			return custom_errors.NewValidationError("filter", "invalid field path %q", field)
		}
	}
	return nil
}

// describe renders a predicate for logging.
func describe(p *store.Predicate) string {
	if p == nil {
		return "{}"
	}
	var b bytes.Buffer
	writePredicate(&b, p)
	return b.String()
}

func writePredicate(b *bytes.Buffer, p *store.Predicate) {
	switch p.Op {
	case store.OpAnd, store.OpOr:
		b.WriteString(p.Op.String())
		b.WriteByte('(')
		for i, c := range p.Children {
			if i > 0 {
				b.WriteString(", ")
			}
			writePredicate(b, c)
		}
		b.WriteByte(')')
	case store.OpText:
		fmt.Fprintf(b, "text(%q)", p.Value)
	default:
		fmt.Fprintf(b, "%s %s %v", p.Field, p.Op, p.Value)
	}
}
