// internal/store/postgres/compile.go
package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github-integration/internal/store"
)

// textSearchVector must match the expression of the *_fts_idx indexes in migrations/.
const textSearchVector = `to_tsvector('simple', coalesce(doc->>'name', '') || ' ' || coalesce(doc->>'title', '') || ' ' || ` +
	`coalesce(doc->>'description', '') || ' ' || coalesce(doc->>'login', '') || ' ' || ` +
	`coalesce(doc->>'full_name', '') || ' ' || coalesce(doc->>'body', ''))`

// compiler turns a predicate tree into a SQL boolean expression over the doc column,
// collecting positional arguments as it goes.
type compiler struct {
	args []any
}

func (c *compiler) arg(v any) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

func (c *compiler) where(p *store.Predicate) (string, error) {
	if p == nil {
		return "TRUE", nil
	}
	switch p.Op {
	case store.OpAnd, store.OpOr:
		if len(p.Children) == 0 {
			return "", fmt.Errorf("empty %s predicate", p.Op)
		}
		parts := make([]string, 0, len(p.Children))
		for _, child := range p.Children {
			part, err := c.where(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		sep := " AND "
		if p.Op == store.OpOr {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")", nil

	case store.OpEq:
		path := store.SplitPath(p.Field)
		if p.Value == nil {
			// A missing field equals null.
			return "COALESCE(doc #> " + c.arg(path) + "::text[], 'null'::jsonb) = 'null'::jsonb", nil
		}
		if isScalar(p.Value) {
			// Containment of a scalar leaf is equality and can use the jsonb_path_ops index.
			raw, err := json.Marshal(nest(path, p.Value))
			if err != nil {
				return "", fmt.Errorf("encode %s value: %w", p.Field, err)
			}
			return "doc @> " + c.arg(raw) + "::jsonb", nil
		}
		raw, err := json.Marshal(p.Value)
		if err != nil {
			return "", fmt.Errorf("encode %s value: %w", p.Field, err)
		}
		return "doc #> " + c.arg(path) + "::text[] = " + c.arg(raw) + "::jsonb", nil

	case store.OpRegex:
		pattern, ok := p.Value.(string)
		if !ok {
			return "", fmt.Errorf("regex on %s needs a string pattern", p.Field)
		}
		are, err := toARE(pattern)
		if err != nil {
			return "", err
		}
		return "(doc #>> " + c.arg(store.SplitPath(p.Field)) + "::text[]) ~* " + c.arg(are), nil

	case store.OpContains:
		substr, ok := p.Value.(string)
		if !ok {
			return "", fmt.Errorf("contains on %s needs a string", p.Field)
		}
		return "(doc #>> " + c.arg(store.SplitPath(p.Field)) + "::text[]) ILIKE " + c.arg("%"+escapeLike(substr)+"%"), nil

	case store.OpText:
		query, ok := p.Value.(string)
		if !ok {
			return "", fmt.Errorf("text search needs a string query")
		}
		return textSearchVector + " @@ plainto_tsquery('simple', " + c.arg(query) + ")", nil

	default:
		return "", fmt.Errorf("unsupported operator %s", p.Op)
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}

// nest builds {"a": {"b": v}} for the path [a b].
func nest(path []string, v any) any {
	for i := len(path) - 1; i >= 0; i-- {
		v = map[string]any{path[i]: v}
	}
	return v
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
