// internal/store/postgres/compile_test.go
package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github-integration/internal/store"
)

func TestCompiler_Where(t *testing.T) {
	tests := []struct {
		name     string
		pred     *store.Predicate
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "nil matches all",
			pred:    nil,
			wantSQL: "TRUE",
		},
		{
			name:     "scalar equality uses containment",
			pred:     store.Eq("integration_user_id", int64(7)),
			wantSQL:  "doc @> $1::jsonb",
			wantArgs: []any{[]byte(`{"integration_user_id":7}`)},
		},
		{
			name:     "nested scalar equality",
			pred:     store.Eq("owner.login", "acme"),
			wantSQL:  "doc @> $1::jsonb",
			wantArgs: []any{[]byte(`{"owner":{"login":"acme"}}`)},
		},
		{
			name:     "composite equality compares the value at the path",
			pred:     store.Eq("labels", []any{"bug"}),
			wantSQL:  "doc #> $1::text[] = $2::jsonb",
			wantArgs: []any{[]string{"labels"}, []byte(`["bug"]`)},
		},
		{
			name:     "regex",
			pred:     store.Regex("name", "^rock"),
			wantSQL:  "(doc #>> $1::text[]) ~* $2",
			wantArgs: []any{[]string{"name"}, "^rock"},
		},
		{
			name:     "regex word boundaries use the ARE escape",
			pred:     store.Regex("title", `\bfix\b`),
			wantSQL:  "(doc #>> $1::text[]) ~* $2",
			wantArgs: []any{[]string{"title"}, `\yfix\y`},
		},
		{
			name:     "null equality also matches a missing field",
			pred:     store.Eq("closed_at", nil),
			wantSQL:  "COALESCE(doc #> $1::text[], 'null'::jsonb) = 'null'::jsonb",
			wantArgs: []any{[]string{"closed_at"}},
		},
		{
			name:     "contains escapes LIKE wildcards",
			pred:     store.Contains("title", `50%_off\`),
			wantSQL:  "(doc #>> $1::text[]) ILIKE $2",
			wantArgs: []any{[]string{"title"}, `%50\%\_off\\%`},
		},
		{
			name:     "text search",
			pred:     store.Text("rocket engine"),
			wantSQL:  textSearchVector + " @@ plainto_tsquery('simple', $1)",
			wantArgs: []any{"rocket engine"},
		},
		{
			name:    "and/or nesting numbers arguments in order",
			pred:    store.And(store.Eq("state", "open"), store.Or(store.Contains("name", "a"), store.Contains("body", "b"))),
			wantSQL: "(doc @> $1::jsonb AND ((doc #>> $2::text[]) ILIKE $3 OR (doc #>> $4::text[]) ILIKE $5))",
			wantArgs: []any{
				[]byte(`{"state":"open"}`),
				[]string{"name"}, "%a%",
				[]string{"body"}, "%b%",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &compiler{}

			sql, err := c.where(tt.pred)

			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, c.args)
		})
	}
}

func TestCompiler_Where_Errors(t *testing.T) {
	for name, pred := range map[string]*store.Predicate{
		"empty and":           {Op: store.OpAnd},
		"regex without text":  {Op: store.OpRegex, Field: "name", Value: 5},
		"named regex group":   store.Regex("name", "(?P<w>fix)"),
		"unknown operator":    {Op: store.Op(99)},
		"text without string": {Op: store.OpText, Value: nil},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := (&compiler{}).where(pred)
			assert.Error(t, err)
		})
	}
}

func TestCompiler_ContinuesNumbering(t *testing.T) {
	c := &compiler{}
	first := c.arg([]byte(`{}`))

	sql, err := c.where(store.Eq("state", "open"))

	require.NoError(t, err)
	assert.Equal(t, "$1", first)
	assert.Equal(t, "doc @> $2::jsonb", sql)
}
