// internal/query/filter_test.go
package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "github-integration/internal/errors"
	"github-integration/internal/store"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *store.Predicate
	}{
		{name: "blank", raw: "  ", want: nil},
		{name: "empty object", raw: `{}`, want: nil},
		{name: "equality", raw: `{"state": "open"}`, want: store.Eq("state", "open")},
		{name: "nested path", raw: `{"owner.login": "acme"}`, want: store.Eq("owner.login", "acme")},
		{name: "number", raw: `{"number": 42}`, want: store.Eq("number", float64(42))},
		{name: "null", raw: `{"primary_language": null}`, want: store.Eq("primary_language", nil)},
		{
			name: "object literal is equality",
			raw:  `{"owner": {"login": "acme"}}`,
			want: store.Eq("owner", map[string]any{"login": "acme"}),
		},
		{name: "$eq", raw: `{"state": {"$eq": "closed"}}`, want: store.Eq("state", "closed")},
		{name: "$regex", raw: `{"name": {"$regex": "^rock"}}`, want: store.Regex("name", "^rock")},
		{name: "$regex with word boundaries", raw: `{"title": {"$regex": "\\bfix\\b"}}`, want: store.Regex("title", `\bfix\b`)},
		{name: "$eq null", raw: `{"closed_at": {"$eq": null}}`, want: store.Eq("closed_at", nil)},
		{name: "$contains", raw: `{"title": {"$contains": "fix"}}`, want: store.Contains("title", "fix")},
		{
			name: "several keys are ANDed in key order",
			raw:  `{"state": "open", "locked": false}`,
			want: store.And(store.Eq("locked", false), store.Eq("state", "open")),
		},
		{
			name: "$or of $and",
			raw:  `{"$or": [{"state": "open"}, {"$and": [{"state": "closed"}, {"title": {"$contains": "fix"}}]}]}`,
			want: store.Or(
				store.Eq("state", "open"),
				store.And(store.Eq("state", "closed"), store.Contains("title", "fix")),
			),
		},
		{name: "$or with a match-all branch", raw: `{"$or": [{"state": "open"}, {}]}`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.raw)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilter_Rejects(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"state": "open"} {}`,
		`"state"`,
		`{"$where": "1"}`,
		`{"$or": []}`,
		`{"$and": ["state"]}`,
		`{"name": {"$regex": 5}}`,
		`{"name": {"$regex": "["}}`,
		`{"name": {"$regex": "(?P<w>fix)"}}`,
		`{"name": {"$regex": "fix.*?done"}}`,
		`{"name": {"$regex": "(?m)^fix"}}`,
		`{"name": {"$regex": "a{300}"}}`,
		`{"name": {"$contains": true}}`,
		`{"name": {"$eq": "a", "login": "b"}}`,
		`{"owner..login": "acme"}`,
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseFilter(raw)

			require.Error(t, err)
			assert.True(t, custom_errors.IsValidation(err))
		})
	}
}
