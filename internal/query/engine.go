// internal/query/engine.go
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	custom_errors "github-integration/internal/errors"
	"github-integration/internal/model"
	"github-integration/internal/store"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	// SearchLimit caps the matches returned per collection by GlobalSearch.
	SearchLimit = 50

	minKeywordLength = 2

	sortAsc  = "asc"
	sortDesc = "desc"
)

// AllowedCollections returns the collections open to reads, in canonical order.
func AllowedCollections() []string {
	return model.EntityCollections()
}

func isAllowed(collection string) bool {
	for _, c := range AllowedCollections() {
		if c == collection {
			return true
		}
	}
	return false
}

// PageRequest selects one page of a collection.
type PageRequest struct {
	Collection string
	Page       int
	Limit      int
	SortBy     string
	// SortOrder is "asc" or "desc"; empty means "asc".
	SortOrder string
	// Filter is a JSON filter document, see ParseFilter.
	Filter string
	// Search is a keyword matched as a substring against the text fields.
	Search string
	// UserID restricts results to documents mirrored for one identity.
	UserID *int64
}

type Pagination struct {
	CurrentPage  int   `json:"current_page"`
	TotalPages   int   `json:"total_pages"`
	TotalItems   int64 `json:"total_items"`
	ItemsPerPage int   `json:"items_per_page"`
	HasNext      bool  `json:"has_next"`
	HasPrevious  bool  `json:"has_previous"`
}

type Meta struct {
	Collection     string  `json:"collection"`
	FiltersApplied bool    `json:"filters_applied"`
	SearchApplied  bool    `json:"search_applied"`
	SortBy         *string `json:"sort_by"`
	SortOrder      string  `json:"sort_order"`
}

// PageResult is one page of documents with its pagination summary.
type PageResult struct {
	Data       []model.Document `json:"data"`
	Pagination Pagination       `json:"pagination"`
	Meta       Meta             `json:"meta"`
}

// SearchResult holds the matches of a keyword in every collection.
type SearchResult struct {
	Keyword             string                      `json:"keyword"`
	TotalResults        int                         `json:"total_results"`
	Results             map[string][]model.Document `json:"results"`
	CollectionsSearched []string                    `json:"collections_searched"`
}

// Engine serves read-only queries over the mirrored collections.
type Engine struct {
	store  store.Store
	logger *slog.Logger
}

func NewEngine(s store.Store, logger *slog.Logger) *Engine {
	return &Engine{store: s, logger: logger}
}

// GetPage returns one page of a collection. Out of range page and limit values
// are clamped; a disallowed collection, unknown sort order or malformed filter is
// rejected with a *ValidationError before the store is queried.
func (e *Engine) GetPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	if !isAllowed(req.Collection) {
		return nil, custom_errors.NewValidationError("collection",
			"collection '%s' not allowed. Allowed collections: %s", req.Collection, strings.Join(AllowedCollections(), ", "))
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}

	sortOrder := strings.ToLower(strings.TrimSpace(req.SortOrder))
	if sortOrder == "" {
		sortOrder = sortAsc
	}
	if sortOrder != sortAsc && sortOrder != sortDesc {
		return nil, custom_errors.NewValidationError("sort_order", "must be %q or %q, got %q", sortAsc, sortDesc, req.SortOrder)
	}

	filter, err := ParseFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	var keyword *store.Predicate
	if req.Search != "" {
		keyword = store.KeywordMatch(req.Search)
	}
	var scope *store.Predicate
	if req.UserID != nil {
		scope = store.Eq(model.FieldIntegrationUserID, *req.UserID)
	}
	predicate := store.And(filter, keyword, scope)

	logger := e.logger.With("collection", req.Collection)
	logger.Debug("Querying collection", "page", page, "limit", limit, "filter", describe(predicate))

	total, err := e.store.Count(ctx, req.Collection, predicate)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", req.Collection, err)
	}

	opts := store.FindOptions{
		Skip:   int64(page-1) * int64(limit),
		Limit:  int64(limit),
		SortBy: req.SortBy,
	}
	if sortOrder == sortDesc {
		opts.SortOrder = store.Descending
	}
	docs, err := e.store.Find(ctx, req.Collection, predicate, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", req.Collection, err)
	}
	if docs == nil {
		docs = []model.Document{}
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	var sortBy *string
	if req.SortBy != "" {
		sortBy = &req.SortBy
	}
	return &PageResult{
		Data: docs,
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalItems:   total,
			ItemsPerPage: limit,
			HasNext:      page < totalPages,
			HasPrevious:  page > 1,
		},
		Meta: Meta{
			Collection:     req.Collection,
			FiltersApplied: predicate != nil,
			SearchApplied:  req.Search != "",
			SortBy:         sortBy,
			SortOrder:      sortOrder,
		},
	}, nil
}

// GlobalSearch matches keyword in every allowed collection, at most SearchLimit
// documents each. Collections with a native text index use it; the others fall
// back to the substring match over the text fields.
func (e *Engine) GlobalSearch(ctx context.Context, keyword string) (*SearchResult, error) {
	trimmed := strings.TrimSpace(keyword)
	if utf8.RuneCountInString(trimmed) < minKeywordLength {
		return nil, custom_errors.NewValidationError("q", "search keyword must be at least %d characters long", minKeywordLength)
	}

	collections := AllowedCollections()
	result := &SearchResult{
		Keyword:             keyword,
		Results:             make(map[string][]model.Document, len(collections)),
		CollectionsSearched: collections,
	}
	for _, collection := range collections {
		indexed, err := e.store.HasTextIndex(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("check text index on %s: %w", collection, err)
		}
		predicate := store.KeywordMatch(trimmed)
		if indexed {
			predicate = store.Text(trimmed)
		}

		docs, err := e.store.Find(ctx, collection, predicate, store.FindOptions{Limit: SearchLimit})
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", collection, err)
		}
		if docs == nil {
			docs = []model.Document{}
		}
		e.logger.Debug("Searched collection", "collection", collection, "native_text", indexed, "matches", len(docs))
		result.Results[collection] = docs
		result.TotalResults += len(docs)
	}
	return result, nil
}
