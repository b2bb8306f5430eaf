// internal/store/memstore/memstore.go
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github-integration/internal/model"
	"github-integration/internal/store"
)

// Store is an in-memory store.Store. Documents are normalised through JSON on
// the way in, so numbers compare as float64 exactly like decoded JSONB.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]model.Document
	textIndexed map[string]bool
}

// Option configures a Store.
type Option func(*Store)

// WithTextIndex marks collections as having a native full-text index.
func WithTextIndex(collections ...string) Option {
	return func(s *Store) {
		for _, c := range collections {
			s.textIndexed[c] = true
		}
	}
}

// New creates an empty Store managing the integration collection and the seven entity collections.
func New(opts ...Option) *Store {
	s := &Store{
		collections: map[string][]model.Document{model.CollectionIntegration: nil},
		textIndexed: map[string]bool{},
	}
	for _, c := range model.EntityCollections() {
		s.collections[c] = nil
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) InsertOne(ctx context.Context, collection string, doc model.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		return "", fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	stored, err := prepare(doc)
	if err != nil {
		return "", err
	}
	s.collections[collection] = append(s.collections[collection], stored)
	return stored[model.FieldID].(string), nil
}

func (s *Store) InsertMany(ctx context.Context, collection string, docs []model.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		return 0, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	prepared := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		stored, err := prepare(d)
		if err != nil {
			return 0, err
		}
		prepared = append(prepared, stored)
	}
	s.collections[collection] = append(s.collections[collection], prepared...)
	return int64(len(prepared)), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter *store.Predicate) (model.Document, error) {
	docs, err := s.Find(ctx, collection, filter, store.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, store.ErrNotFound
	}
	return docs[0], nil
}

func (s *Store) Find(ctx context.Context, collection string, filter *store.Predicate, opts store.FindOptions) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.match(collection, filter)
	if err != nil {
		return nil, err
	}

	if opts.SortBy != "" {
		path := store.SplitPath(opts.SortBy)
		sort.SliceStable(matched, func(i, j int) bool {
			a, aok := lookup(matched[i], path)
			b, bok := lookup(matched[j], path)
			if aok != bok {
				return aok
			}
			c := compareValues(a, aok, b, bok)
			if opts.SortOrder == store.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	start := opts.Skip
	if start > int64(len(matched)) {
		start = int64(len(matched))
	}
	end := int64(len(matched))
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	out := make([]model.Document, 0, end-start)
	for _, d := range matched[start:end] {
		out = append(out, clone(d))
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, collection string, filter *store.Predicate) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched, err := s.match(collection, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *Store) UpdateOne(ctx context.Context, collection string, filter *store.Predicate, set model.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return false, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	normalised, err := normalise(set)
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		ok, err := matches(filter, d)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		for k, v := range normalised {
			if k == model.FieldID {
				continue
			}
			d[k] = v
		}
		return true, nil
	}
	return false, nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter *store.Predicate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	kept := docs[:0:0]
	var deleted int64
	for _, d := range docs {
		ok, err := matches(filter, d)
		if err != nil {
			return 0, err
		}
		if ok {
			deleted++
			continue
		}
		kept = append(kept, d)
	}
	s.collections[collection] = kept
	return deleted, nil
}

func (s *Store) HasTextIndex(ctx context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.collections[collection]; !ok {
		return false, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	return s.textIndexed[collection], nil
}

func (s *Store) Close() {}

// match must be called with the read lock held.
func (s *Store) match(collection string, filter *store.Predicate) ([]model.Document, error) {
	docs, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownCollection, collection)
	}
	var out []model.Document
	for _, d := range docs {
		ok, err := matches(filter, d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func matches(p *store.Predicate, doc model.Document) (bool, error) {
	if p == nil {
		return true, nil
	}
	switch p.Op {
	case store.OpAnd:
		for _, c := range p.Children {
			ok, err := matches(c, doc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case store.OpOr:
		for _, c := range p.Children {
			ok, err := matches(c, doc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case store.OpEq:
		want, err := normaliseValue(p.Value)
		if err != nil {
			return false, err
		}
		got, ok := lookup(doc, store.SplitPath(p.Field))
		if !ok {
			// A missing field equals null.
			return want == nil, nil
		}
		return jsonEqual(got, want), nil
	case store.OpRegex:
		pattern, _ := p.Value.(string)
		if _, err := store.ParsePattern(pattern); err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		text, ok := textAt(doc, p.Field)
		return ok && re.MatchString(text), nil
	case store.OpContains:
		substr, _ := p.Value.(string)
		text, ok := textAt(doc, p.Field)
		return ok && strings.Contains(strings.ToLower(text), strings.ToLower(substr)), nil
	case store.OpText:
		query, _ := p.Value.(string)
		return textMatch(doc, query), nil
	default:
		return false, fmt.Errorf("unsupported operator %s", p.Op)
	}
}

// textMatch requires every query word to appear as a word in one of the text fields.
func textMatch(doc model.Document, query string) bool {
	words := tokenize(query)
	if len(words) == 0 {
		return false
	}
	present := map[string]bool{}
	for _, f := range store.TextFields {
		text, ok := textAt(doc, f)
		if !ok {
			continue
		}
		for _, w := range tokenize(text) {
			present[w] = true
		}
	}
	for _, w := range words {
		if !present[w] {
			return false
		}
	}
	return true
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func lookup(doc model.Document, path []string) (any, bool) {
	var cur any = map[string]any(doc)
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// textAt renders the value at field as text; null and missing values have no text.
func textAt(doc model.Document, field string) (string, bool) {
	v, ok := lookup(doc, store.SplitPath(field))
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}

// compareValues orders missing values after everything else, then by JSON type
// rank (null < string < number < bool < array < object), then by value.
func compareValues(a any, aok bool, b any, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case string:
		return strings.Compare(av, b.(string))
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	}
	return 0
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 1
	case float64:
		return 2
	case bool:
		return 3
	case []any:
		return 4
	default:
		return 5
	}
}

func jsonEqual(a, b any) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ra) == string(rb)
}

func prepare(doc model.Document) (model.Document, error) {
	stored, err := normalise(doc)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = model.Document{}
	}
	stored[model.FieldID] = uuid.NewString()
	return stored, nil
}

func normalise(doc model.Document) (model.Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var out model.Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func normaliseValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func clone(doc model.Document) model.Document {
	out, err := normalise(doc)
	if err != nil {
		return doc
	}
	return out
}
