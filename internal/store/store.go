// internal/store/store.go
package store

import (
	"context"
	"errors"
	"strings"

	"github-integration/internal/model"
)

var (
	// ErrNotFound is returned by FindOne when no document matches.
	ErrNotFound = errors.New("document not found")

	// ErrUnknownCollection is returned for a collection the store does not manage.
	ErrUnknownCollection = errors.New("unknown collection")
)

// TextFields are the text-bearing document fields covered by keyword search
// and by native full-text indexes.
var TextFields = []string{"name", "title", "description", "login", "full_name", "body"}

// SortOrder is the direction of a sort.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// FindOptions controls paging and ordering of Find.
// A zero Limit means no limit. Without SortBy, documents come back in insertion order.
type FindOptions struct {
	Skip      int64
	Limit     int64
	SortBy    string
	SortOrder SortOrder
}

// Store is a collection-oriented document store. It knows nothing about GitHub.
// A nil predicate matches every document in the collection.
type Store interface {
	InsertOne(ctx context.Context, collection string, doc model.Document) (string, error)
	InsertMany(ctx context.Context, collection string, docs []model.Document) (int64, error)
	FindOne(ctx context.Context, collection string, filter *Predicate) (model.Document, error)
	Find(ctx context.Context, collection string, filter *Predicate, opts FindOptions) ([]model.Document, error)
	Count(ctx context.Context, collection string, filter *Predicate) (int64, error)
	UpdateOne(ctx context.Context, collection string, filter *Predicate, set model.Document) (bool, error)
	DeleteMany(ctx context.Context, collection string, filter *Predicate) (int64, error)

	// HasTextIndex reports whether the collection supports native full-text predicates.
	HasTextIndex(ctx context.Context, collection string) (bool, error)

	Close()
}

// SplitPath turns a dotted field path such as "owner.login" into its segments.
func SplitPath(field string) []string {
	return strings.Split(field, ".")
}
